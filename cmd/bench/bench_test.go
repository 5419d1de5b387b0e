package main

import (
	"fmt"
	"sort"
	"testing"
)

func TestApplyCartesian(t *testing.T) {
	args := [][]interface{}{{1, 2}, {"a"}, {0.1, 0.2, 0.3}}
	var got []string
	applyCartesian(func(x []interface{}) {
		got = append(got, fmt.Sprint(x...))
	}, args)
	want := []string{"1a0.1", "1a0.2", "1a0.3", "2a0.1", "2a0.2", "2a0.3"}
	sort.Strings(got)
	if len(got) != len(want) {
		t.Fatalf("got %d combinations %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("combination %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBench(t *testing.T) {
	exp := &Experiment{
		Pulses:        5000,
		DistanceKm:    1,
		Mu:            0.5,
		Nu:            0.1,
		PSignal:       0.8,
		PDecoy:        0.1,
		Misalignment:  0.01,
		DarkCountProb: 1e-6,
		FEc:           1.1,
	}
	if err := bench(exp); err != nil {
		t.Fatalf("bench() = %v", err)
	}
	if !exp.Succeeded || exp.KeyBits > exp.RawKeyBits || exp.RawKeyBits > exp.Sifted {
		t.Errorf("implausible experiment %+v", exp)
	}

	bad := &Experiment{Pulses: 10, Mu: 0.1, Nu: 0.5, PSignal: 0.8, PDecoy: 0.1, FEc: 1.1}
	if err := bench(bad); err == nil {
		t.Error("bench() with decoy above signal succeeded, want error")
	}
}

func TestBenchVacuumOnly(t *testing.T) {
	exp := &Experiment{
		Pulses:        5000,
		DistanceKm:    1,
		Mu:            0.5,
		Nu:            0,
		PSignal:       0.8,
		PDecoy:        0.1,
		Misalignment:  0.01,
		DarkCountProb: 1e-6,
		FEc:           1.1,
	}
	if cfg := intensities(exp); len(cfg.Decoys) != 1 || cfg.Validate() != nil {
		t.Fatalf("intensities(%+v) = %+v, want a single valid vacuum decoy", exp, cfg)
	}
	if err := bench(exp); err != nil {
		t.Fatalf("bench() = %v", err)
	}
	if !exp.Succeeded || exp.KeyBits > exp.RawKeyBits {
		t.Errorf("implausible experiment %+v", exp)
	}
}
