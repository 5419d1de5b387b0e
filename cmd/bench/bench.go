// bench.go runs a simulated decoy-state BB84 session for each entry in the
// cartesian product of a collection of channel and intensity parameters, e.g.
// fiber length and signal intensity, and outputs a CSV of the resulting
// statistics for each combination, e.g. single-photon bounds and key length.
package main

import (
	"fmt"
	"html/template"
	"log"
	"os"
	"strings"

	"github.com/alan-christopher/decoy-bb84/bb84"
	"github.com/alan-christopher/decoy-bb84/bb84/photon"
	"github.com/alan-christopher/decoy-bb84/internal/logging"
	flag "github.com/spf13/pflag"
	"golang.org/x/exp/rand"
)

var (
	pulses   = flag.IntSlice("pulses", []int{int(1e5)}, "The number of pulses to send per session.")
	distance = flag.Float64Slice("distance", []float64{0, 10, 25, 50}, "The fiber lengths, in km.")
	mu       = flag.Float64Slice("mu", []float64{bb84.DefaultSignalIntensity}, "The mean photons per pulse of the signal intensity.")
	nu       = flag.Float64Slice("nu", []float64{bb84.DefaultDecoyIntensities[0]}, "The mean photons per pulse of the weak decoy intensity. 0 runs with the vacuum decoy alone.")
	pSignal  = flag.Float64Slice("pSignal", []float64{0.8}, "The proportion of signal pulses.")
	pDecoy   = flag.Float64Slice("pDecoy", []float64{0.1}, "The proportion of weak decoy pulses. The remainder are vacuum pulses.")
	misalign = flag.Float64Slice("misalignment", []float64{photon.DefaultMisalignment},
		"The probability of a bit flip when bases align.")
	dark = flag.Float64Slice("dark", []float64{photon.DefaultDarkCountProb}, "The per-pulse dark count probability.")
	fEc  = flag.Float64Slice("fEc", []float64{bb84.DefaultErrorCorrectionFactor}, "The error correction inefficiency factor.")

	seed     = flag.Uint64("seed", 42, "Seeds the sender's choices; the channel uses seed+1.")
	logLevel = flag.String("log_level", "error", "Post-processing log level, logged to stderr.")
)

var (
	inputs  = []string{"pulses", "distance", "mu", "nu", "pSignal", "pDecoy", "misalignment", "dark", "fEc"}
	columns = []string{"Pulses", "DistanceKm", "Mu", "Nu", "PSignal", "PDecoy", "Misalignment",
		"DarkCountProb", "FEc", "Sifted", "RawKeyBits", "KeyBits", "QBER", "Y1", "E1", "Rate",
		"Reliable", "Succeeded"}
)

// An Experiment packages together the result of benchmarking a single
// parameterization for easy formatting.
type Experiment struct {
	// Fields corresponding to experiment parameters
	Pulses          int
	DistanceKm      float64
	Mu, Nu          float64
	PSignal, PDecoy float64
	Misalignment    float64
	DarkCountProb   float64
	FEc             float64

	// Fields corresponding to experiment results
	Sifted     int
	RawKeyBits int
	KeyBits    int
	QBER       float64
	Y1, E1     float64
	Rate       float64
	Reliable   bool
	Succeeded  bool
}

func main() {
	flag.Parse()
	fmt.Println(header())
	tmpl := template.Must(template.New("line").Parse(lineTmpl()))
	var args [][]interface{}
	for _, inp := range inputs {
		args = append(args, lookupInput(inp))
	}
	applyCartesian(func(args []interface{}) {
		exp := &Experiment{
			Pulses:        args[inpIndex("pulses")].(int),
			DistanceKm:    args[inpIndex("distance")].(float64),
			Mu:            args[inpIndex("mu")].(float64),
			Nu:            args[inpIndex("nu")].(float64),
			PSignal:       args[inpIndex("pSignal")].(float64),
			PDecoy:        args[inpIndex("pDecoy")].(float64),
			Misalignment:  args[inpIndex("misalignment")].(float64),
			DarkCountProb: args[inpIndex("dark")].(float64),
			FEc:           args[inpIndex("fEc")].(float64),
		}
		if err := bench(exp); err != nil {
			log.Printf("Benching %+v: %v", exp, err)
		}
		if err := tmpl.Execute(os.Stdout, exp); err != nil {
			log.Fatalf("BUG: could not fill in line template: %v", err)
		}
	}, args)
}

func inpIndex(v string) int {
	for i, inp := range inputs {
		if inp == v {
			return i
		}
	}
	return -1
}

// intensities pairs the swept decoy with a vacuum decoy. A swept decoy of 0 is
// the vacuum decoy itself and takes all non-signal pulses.
func intensities(exp *Experiment) bb84.IntensityConfig {
	if exp.Nu == 0 {
		return bb84.IntensityConfig{
			Signal:        exp.Mu,
			Decoys:        []float64{0},
			Probabilities: map[string]float64{"signal": exp.PSignal, "decoy_1": 1 - exp.PSignal},
		}
	}
	return bb84.IntensityConfig{
		Signal: exp.Mu,
		Decoys: []float64{exp.Nu, 0},
		Probabilities: map[string]float64{
			"signal":  exp.PSignal,
			"decoy_1": exp.PDecoy,
			"decoy_2": 1 - exp.PSignal - exp.PDecoy,
		},
	}
}

func bench(exp *Experiment) error {
	ch, err := photon.NewSimulated(photon.SimulatedOpts{
		DistanceKm:    exp.DistanceKm,
		DarkCountProb: exp.DarkCountProb,
		Misalignment:  exp.Misalignment,
		Src:           rand.NewSource(*seed + 1),
	})
	if err != nil {
		return err
	}
	s, err := bb84.NewSession(bb84.SessionOpts{
		Opts: bb84.Opts{
			Intensities: intensities(exp),
			ErrorCorrectionFactor: exp.FEc,
			Logger:                logging.NewLogger(*logLevel),
		},
		Channel:   ch,
		Src:       rand.NewSource(*seed),
		KeyLength: exp.Pulses,
	})
	if err != nil {
		return err
	}
	r, _, err := s.Run()
	if err != nil {
		return err
	}
	exp.Sifted = r.Sifted
	exp.RawKeyBits = r.RawKey.Size()
	exp.KeyBits = r.FinalKey.Size()
	exp.QBER = r.Stats.PerIntensity[exp.Mu].QBER
	exp.Y1, exp.E1 = r.Estimate.Y1, r.Estimate.E1
	exp.Rate = r.Rate
	exp.Reliable = r.Reliable()
	exp.Succeeded = true
	return nil
}

func header() string {
	return strings.Join(columns, ", ")
}

func lineTmpl() string {
	var els []string
	for _, c := range columns {
		els = append(els, "{{."+c+"}}")
	}
	return strings.Join(els, ", ") + "\n"
}

func lookupInput(name string) []interface{} {
	var r []interface{}
	if v, err := flag.CommandLine.GetIntSlice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else if v, err := flag.CommandLine.GetFloat64Slice(name); err == nil {
		for _, val := range v {
			r = append(r, val)
		}
	} else {
		log.Fatalf("Unknown type for input %s", name)
	}
	return r
}

func applyCartesian(f func([]interface{}), args [][]interface{}) {
	for i := range args {
		if len(args[i]) == 1 {
			continue
		}
		l := make([][]interface{}, len(args))
		r := make([][]interface{}, len(args))
		copy(l, args)
		copy(r, args)
		l[i] = args[i][:1]
		r[i] = args[i][1:]
		applyCartesian(f, l)
		applyCartesian(f, r)
		return
	}
	x := make([]interface{}, 0, len(args))
	for _, a := range args {
		x = append(x, a[0])
	}
	f(x)
}
