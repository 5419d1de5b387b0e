// postprocess runs decoy-state BB84 post-processing and prints the resulting
// keys and statistics as JSON. Pulses are either simulated over a lossy fiber
// or read from framed pulse and detection logs.
//
// It also accepts the positional form
//
//	postprocess <key_length> <distance_km> <params_file>
//
// The printed keys are truncations of the raw key, not the output of error
// correction and privacy amplification, and are not secure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/alan-christopher/decoy-bb84/bb84"
	"github.com/alan-christopher/decoy-bb84/bb84/photon"
	"github.com/alan-christopher/decoy-bb84/internal/config"
	"github.com/alan-christopher/decoy-bb84/internal/logging"
	"github.com/alan-christopher/decoy-bb84/internal/publish"
	"github.com/alan-christopher/decoy-bb84/internal/storage"
	flag "github.com/spf13/pflag"
	"golang.org/x/exp/rand"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("postprocess: %v", err)
	}
}

type options struct {
	configPath    string
	keyLength     int
	distanceKm    float64
	seed          uint64
	pulsesIn      string
	detectionsIn  string
	pulsesOut     string
	detectionsOut string
	envFiles      []string

	fs *flag.FlagSet
}

func parseArgs(args []string) (*options, error) {
	o := &options{fs: flag.NewFlagSet("postprocess", flag.ContinueOnError)}
	fs := o.fs
	fs.StringVar(&o.configPath, "config", "", "YAML or JSON parameters file. Defaults apply when empty.")
	fs.IntVar(&o.keyLength, "key_length", 0, "The number of pulses to send. Overrides required_key_length.")
	fs.Float64Var(&o.distanceKm, "distance", 0, "The fiber length in km. Overrides distance_km.")
	fs.Uint64Var(&o.seed, "seed", 0, "Seeds the sender's choices. Overrides seed.")
	fs.StringVar(&o.pulsesIn, "pulses", "", "A framed pulse log to post-process instead of simulating.")
	fs.StringVar(&o.detectionsIn, "detections", "", "A framed detection log, aligned with --pulses.")
	fs.StringVar(&o.pulsesOut, "write_pulses", "", "Where to write the pulse log of this run.")
	fs.StringVar(&o.detectionsOut, "write_detections", "", "Where to write the detection log of this run.")
	fs.StringSliceVar(&o.envFiles, "env_file", nil, "Files to read QKD_* variables from. Defaults to .env.")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch fs.NArg() {
	case 0:
	case 3:
		if err := fs.Set("key_length", fs.Arg(0)); err != nil {
			return nil, fmt.Errorf("key length %q: %w", fs.Arg(0), err)
		}
		if err := fs.Set("distance", fs.Arg(1)); err != nil {
			return nil, fmt.Errorf("distance %q: %w", fs.Arg(1), err)
		}
		o.configPath = fs.Arg(2)
	default:
		return nil, errors.New("usage: postprocess [flags] [<key_length> <distance_km> <params_file>]")
	}
	if (o.pulsesIn == "") != (o.detectionsIn == "") {
		return nil, errors.New("--pulses and --detections must be given together")
	}
	return o, nil
}

func (o *options) config() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.fs.Changed("key_length") {
		cfg.RequiredKeyLength = o.keyLength
	}
	if o.fs.Changed("distance") {
		cfg.DistanceKm = o.distanceKm
	}
	if o.fs.Changed("seed") {
		cfg.Seed = o.seed
	}
	if err := config.ApplyEnv(cfg, o.envFiles...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseArgs(args)
	if err != nil {
		return err
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel)
	started := time.Now()

	var r bb84.Report
	var tr bb84.Transcript
	if o.pulsesIn != "" {
		r, tr, err = replay(cfg, logger, o.pulsesIn, o.detectionsIn)
	} else {
		r, tr, err = simulate(cfg, logger)
	}
	if err != nil {
		return err
	}
	if err := writeTranscript(tr, o.pulsesOut, o.detectionsOut); err != nil {
		return err
	}
	if err := json.NewEncoder(stdout).Encode(newResult(r)); err != nil {
		return err
	}
	return record(ctx, cfg, logger, storage.NewRun(r, started, len(tr.Pulses), cfg.DistanceKm))
}

func simulate(cfg *config.Config, logger *slog.Logger) (bb84.Report, bb84.Transcript, error) {
	ch, err := photon.NewSimulated(cfg.SimulatedOpts())
	if err != nil {
		return bb84.Report{}, bb84.Transcript{}, err
	}
	logger.Debug("simulated channel", "distance_km", cfg.DistanceKm, "transmittance", ch.Transmittance())
	s, err := bb84.NewSession(bb84.SessionOpts{
		Opts:      cfg.Opts(logger),
		Channel:   ch,
		Src:       rand.NewSource(cfg.Seed),
		KeyLength: cfg.RequiredKeyLength,
	})
	if err != nil {
		return bb84.Report{}, bb84.Transcript{}, err
	}
	return s.Run()
}

func replay(cfg *config.Config, logger *slog.Logger, pulsesPath, detectionsPath string) (bb84.Report, bb84.Transcript, error) {
	var tr bb84.Transcript
	if err := readFile(pulsesPath, func(r io.Reader) (err error) {
		tr.Pulses, err = photon.ReadPulses(r)
		return err
	}); err != nil {
		return bb84.Report{}, tr, err
	}
	if err := readFile(detectionsPath, func(r io.Reader) (err error) {
		tr.Detections, err = photon.ReadDetections(r)
		return err
	}); err != nil {
		return bb84.Report{}, tr, err
	}
	p, err := bb84.NewPostProcessor(cfg.Opts(logger))
	if err != nil {
		return bb84.Report{}, tr, err
	}
	r, err := p.Process(tr.Pulses, tr.Detections)
	return r, tr, err
}

func readFile(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := read(f); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}

func writeTranscript(tr bb84.Transcript, pulsesPath, detectionsPath string) error {
	if pulsesPath != "" {
		if err := writeFile(pulsesPath, func(w io.Writer) error { return photon.WritePulses(w, tr.Pulses) }); err != nil {
			return err
		}
	}
	if detectionsPath != "" {
		if err := writeFile(detectionsPath, func(w io.Writer) error { return photon.WriteDetections(w, tr.Detections) }); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// record stores and publishes the run when configured to.
func record(ctx context.Context, cfg *config.Config, logger *slog.Logger, run storage.Run) error {
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("initializing %s storage: %w", cfg.Storage.Driver, err)
		}
		if err := store.SaveRun(ctx, run); err != nil {
			return err
		}
		logger.Info("run stored", "run_id", run.ID, "driver", cfg.Storage.Driver)
	}

	pub, err := publish.NewPublisher(cfg.Publish)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
		if err := pub.Publish(ctx, run); err != nil {
			return err
		}
		logger.Info("run published", "run_id", run.ID, "topic", cfg.Publish.Topic)
	}
	return nil
}
