package photon

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Record logs are a sequence of frames: record-length | record. The first
// record is a header naming the log kind and the number of records that
// follow; every subsequent record is protobuf wire-encoded.
//
//	header:    1: kind (varint), 2: count (varint)
//	pulse:     1: index (varint), 2: bit (varint), 3: basis (varint), 4: intensity (fixed64, IEEE 754)
//	detection: 1: detected (varint), 2: basis (varint), 3: bit (varint)

type logKind uint64

const (
	pulseLog     logKind = 1
	detectionLog logKind = 2
)

func (k logKind) String() string {
	switch k {
	case pulseLog:
		return "pulse"
	case detectionLog:
		return "detection"
	}
	return fmt.Sprintf("logKind(%d)", uint64(k))
}

// maxFrame bounds the size of a single record so a corrupt length prefix
// can't trigger an enormous allocation.
const maxFrame = 1 << 16

// maxPrealloc caps the capacity reserved from a header's record count.
const maxPrealloc = 1 << 16

// WritePulses writes pulses to w as a framed pulse log.
func WritePulses(w io.Writer, pulses []PulseRecord) error {
	bw := bufio.NewWriter(w)
	if err := writeFrame(bw, marshalHeader(pulseLog, len(pulses))); err != nil {
		return fmt.Errorf("writing pulse log header: %w", err)
	}
	for _, p := range pulses {
		if err := writeFrame(bw, marshalPulse(p)); err != nil {
			return fmt.Errorf("writing pulse %d: %w", p.Index, err)
		}
	}
	return bw.Flush()
}

// ReadPulses reads a framed pulse log written by WritePulses.
func ReadPulses(r io.Reader) ([]PulseRecord, error) {
	br := bufio.NewReader(r)
	n, err := readHeader(br, pulseLog)
	if err != nil {
		return nil, err
	}
	pulses := make([]PulseRecord, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		frame, err := readFrame(br)
		if err != nil {
			return nil, fmt.Errorf("reading pulse %d of %d: %w", i, n, err)
		}
		p, err := unmarshalPulse(frame)
		if err != nil {
			return nil, fmt.Errorf("decoding pulse %d: %w", i, err)
		}
		pulses = append(pulses, p)
	}
	return pulses, nil
}

// WriteDetections writes detections to w as a framed detection log.
func WriteDetections(w io.Writer, dets []DetectionRecord) error {
	bw := bufio.NewWriter(w)
	if err := writeFrame(bw, marshalHeader(detectionLog, len(dets))); err != nil {
		return fmt.Errorf("writing detection log header: %w", err)
	}
	for i, d := range dets {
		if err := writeFrame(bw, marshalDetection(d)); err != nil {
			return fmt.Errorf("writing detection %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// ReadDetections reads a framed detection log written by WriteDetections.
func ReadDetections(r io.Reader) ([]DetectionRecord, error) {
	br := bufio.NewReader(r)
	n, err := readHeader(br, detectionLog)
	if err != nil {
		return nil, err
	}
	dets := make([]DetectionRecord, 0, min(n, maxPrealloc))
	for i := 0; i < n; i++ {
		frame, err := readFrame(br)
		if err != nil {
			return nil, fmt.Errorf("reading detection %d of %d: %w", i, n, err)
		}
		d, err := unmarshalDetection(frame)
		if err != nil {
			return nil, fmt.Errorf("decoding detection %d: %w", i, err)
		}
		dets = append(dets, d)
	}
	return dets, nil
}

func writeFrame(w io.Writer, rec []byte) error {
	if err := binary.Write(w, binary.LittleEndian, int32(len(rec))); err != nil {
		return err
	}
	_, err := w.Write(rec)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var n int32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if n < 0 || n > maxFrame {
		return nil, fmt.Errorf("invalid frame length %d", n)
	}
	rec := make([]byte, n)
	if _, err := io.ReadFull(r, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func readHeader(r io.Reader, want logKind) (int, error) {
	frame, err := readFrame(r)
	if err != nil {
		return 0, fmt.Errorf("reading %v log header: %w", want, err)
	}
	var kind logKind
	var count uint64
	err = consumeFields(frame, func(num protowire.Number, v uint64) {
		switch num {
		case 1:
			kind = logKind(v)
		case 2:
			count = v
		}
	})
	if err != nil {
		return 0, fmt.Errorf("decoding %v log header: %w", want, err)
	}
	if kind != want {
		return 0, fmt.Errorf("expected %v log, found %v log", want, kind)
	}
	if count > math.MaxInt32 {
		return 0, fmt.Errorf("implausible record count %d", count)
	}
	return int(count), nil
}

func marshalHeader(kind logKind, count int) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(kind))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(count))
	return b
}

func marshalPulse(p PulseRecord) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Index))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Bit))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Basis))
	b = protowire.AppendTag(b, 4, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(p.Intensity))
	return b
}

func unmarshalPulse(b []byte) (PulseRecord, error) {
	var p PulseRecord
	var bit, basis uint64
	err := consumeFields(b, func(num protowire.Number, v uint64) {
		switch num {
		case 1:
			p.Index = int(v)
		case 2:
			bit = v
		case 3:
			basis = v
		case 4:
			p.Intensity = math.Float64frombits(v)
		}
	})
	if err != nil {
		return PulseRecord{}, err
	}
	if bit > 1 || basis > uint64(BasisX) {
		return PulseRecord{}, fmt.Errorf("pulse %d: bit %d / basis %d out of range", p.Index, bit, basis)
	}
	p.Bit, p.Basis = uint8(bit), Basis(basis)
	return p, nil
}

func marshalDetection(d DetectionRecord) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(d.Detected))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Basis))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.Bit))
	return b
}

func unmarshalDetection(b []byte) (DetectionRecord, error) {
	var d DetectionRecord
	var bit, basis uint64
	err := consumeFields(b, func(num protowire.Number, v uint64) {
		switch num {
		case 1:
			d.Detected = protowire.DecodeBool(v)
		case 2:
			basis = v
		case 3:
			bit = v
		}
	})
	if err != nil {
		return DetectionRecord{}, err
	}
	if bit > 1 || basis > uint64(BasisX) {
		return DetectionRecord{}, fmt.Errorf("bit %d / basis %d out of range", bit, basis)
	}
	d.Bit, d.Basis = uint8(bit), Basis(basis)
	return d, nil
}

// consumeFields walks the scalar fields of a wire-encoded record, handing
// varint and fixed64 values to set. Fields of other wire types are skipped.
func consumeFields(b []byte, set func(num protowire.Number, v uint64)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			set(num, v)
			b = b[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			set(num, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}
