package photon

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"runtime"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestPulseLogRoundTrip(t *testing.T) {
	pulses := []PulseRecord{
		{Index: 0, Bit: 1, Basis: BasisZ, Intensity: 0.5},
		{Index: 1, Bit: 0, Basis: BasisX, Intensity: 0.1},
		{Index: 2, Bit: 1, Basis: BasisX, Intensity: 0},
	}
	var buf bytes.Buffer
	if err := WritePulses(&buf, pulses); err != nil {
		t.Fatalf("WritePulses: %v", err)
	}
	got, err := ReadPulses(&buf)
	if err != nil {
		t.Fatalf("ReadPulses: %v", err)
	}
	if !reflect.DeepEqual(got, pulses) {
		t.Errorf("pulses mangled in transit: got %v, want %v", got, pulses)
	}
}

func TestDetectionLogRoundTrip(t *testing.T) {
	dets := []DetectionRecord{
		{Detected: true, Basis: BasisX, Bit: 1},
		{},
		{Detected: true, Basis: BasisZ, Bit: 0},
	}
	var buf bytes.Buffer
	if err := WriteDetections(&buf, dets); err != nil {
		t.Fatalf("WriteDetections: %v", err)
	}
	got, err := ReadDetections(&buf)
	if err != nil {
		t.Fatalf("ReadDetections: %v", err)
	}
	if !reflect.DeepEqual(got, dets) {
		t.Errorf("detections mangled in transit: got %v, want %v", got, dets)
	}
}

func TestEmptyLog(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDetections(&buf, nil); err != nil {
		t.Fatalf("WriteDetections: %v", err)
	}
	got, err := ReadDetections(&buf)
	if err != nil {
		t.Fatalf("ReadDetections: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d detections from an empty log", len(got))
	}
}

func TestLogKindMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteDetections(&buf, []DetectionRecord{{Detected: true}}); err != nil {
		t.Fatalf("WriteDetections: %v", err)
	}
	if _, err := ReadPulses(&buf); err == nil {
		t.Fatalf("reading a detection log as pulses did not fail")
	}
}

func TestCorruptLogs(t *testing.T) {
	valid := func() []byte {
		var buf bytes.Buffer
		if err := WritePulses(&buf, []PulseRecord{{Index: 0, Bit: 1, Intensity: 0.5}}); err != nil {
			t.Fatalf("WritePulses: %v", err)
		}
		return buf.Bytes()
	}
	tcs := []struct {
		name   string
		mangle func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-3] }},
		{"huge frame", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b, 1<<30)
			return b
		}},
		{"empty", func([]byte) []byte { return nil }},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ReadPulses(bytes.NewReader(tc.mangle(valid()))); err == nil {
				t.Errorf("reading a corrupt log did not fail")
			}
		})
	}
}

func TestHugeRecordCount(t *testing.T) {
	var buf bytes.Buffer
	if err := writeFrame(&buf, marshalHeader(pulseLog, math.MaxInt32)); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	before := stats.TotalAlloc
	_, err := ReadPulses(bytes.NewReader(buf.Bytes()))
	runtime.ReadMemStats(&stats)
	if err == nil {
		t.Errorf("reading a log with no records did not fail")
	}
	if grew := stats.TotalAlloc - before; grew > 16<<20 {
		t.Errorf("ReadPulses allocated %d bytes for a %d byte log", grew, buf.Len())
	}
}

func TestOutOfRangeFields(t *testing.T) {
	field := func(num protowire.Number, v uint64) []byte {
		b := protowire.AppendTag(nil, num, protowire.VarintType)
		return protowire.AppendVarint(b, v)
	}
	tcs := []struct {
		name   string
		decode func() error
	}{
		{"detection bit", func() error {
			_, err := unmarshalDetection(append(field(1, 1), field(3, 257)...))
			return err
		}},
		{"detection basis", func() error {
			_, err := unmarshalDetection(append(field(1, 1), field(2, 256)...))
			return err
		}},
		{"pulse bit", func() error {
			_, err := unmarshalPulse(field(2, 257))
			return err
		}},
		{"pulse basis", func() error {
			_, err := unmarshalPulse(field(3, 1<<8|1))
			return err
		}},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.decode(); err == nil {
				t.Errorf("decoding an out of range value did not fail")
			}
		})
	}
}

func TestUnknownFieldsSkipped(t *testing.T) {
	rec := marshalDetection(DetectionRecord{Detected: true, Basis: BasisX, Bit: 1})
	// field 9, length-delimited, 2 bytes
	rec = append(rec, 9<<3|2, 2, 0xAB, 0xCD)
	got, err := unmarshalDetection(rec)
	if err != nil {
		t.Fatalf("unmarshalDetection: %v", err)
	}
	if want := (DetectionRecord{Detected: true, Basis: BasisX, Bit: 1}); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
