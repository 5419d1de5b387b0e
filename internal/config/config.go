package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/exp/rand"
	"gopkg.in/yaml.v3"

	"github.com/alan-christopher/decoy-bb84/bb84"
	"github.com/alan-christopher/decoy-bb84/bb84/photon"
)

type Config struct {
	LogLevel              string             `json:"log_level" yaml:"log_level"`
	Seed                  uint64             `json:"seed" yaml:"seed"`
	SignalIntensity       float64            `json:"signal_intensity" yaml:"signal_intensity"`
	DecoyIntensities      []float64          `json:"decoy_intensities" yaml:"decoy_intensities"`
	StateProbabilities    map[string]float64 `json:"state_probabilities" yaml:"state_probabilities"`
	ErrorCorrectionFactor float64            `json:"error_correction_factor" yaml:"error_correction_factor"`
	RequiredKeyLength     int                `json:"required_key_length" yaml:"required_key_length"`
	DistanceKm            float64            `json:"distance_km" yaml:"distance_km"`
	Channel               ChannelConfig      `json:"channel" yaml:"channel"`
	Storage               StorageConfig      `json:"storage" yaml:"storage"`
	Publish               PublishConfig      `json:"publish" yaml:"publish"`
}

type ChannelConfig struct {
	AttenuationDBPerKm   float64 `json:"attenuation_db_per_km" yaml:"attenuation_db_per_km"`
	DetectorEfficiency   float64 `json:"detector_efficiency" yaml:"detector_efficiency"`
	DarkCountProbability float64 `json:"dark_count_probability" yaml:"dark_count_probability"`
	Misalignment         float64 `json:"misalignment" yaml:"misalignment"`
	RepetitionRateHz     float64 `json:"repetition_rate_hz" yaml:"repetition_rate_hz"`
	FiberRefractiveIndex float64 `json:"fiber_refractive_index" yaml:"fiber_refractive_index"`
	Seed                 uint64  `json:"seed" yaml:"seed"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type PublishConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:              "info",
		Seed:                  42,
		SignalIntensity:       bb84.DefaultSignalIntensity,
		DecoyIntensities:      append([]float64(nil), bb84.DefaultDecoyIntensities...),
		StateProbabilities:    defaultProbabilities(),
		ErrorCorrectionFactor: bb84.DefaultErrorCorrectionFactor,
		RequiredKeyLength:     10000,
		Channel: ChannelConfig{
			AttenuationDBPerKm:   photon.DefaultAttenuation,
			DetectorEfficiency:   photon.DefaultDetectorEff,
			DarkCountProbability: photon.DefaultDarkCountProb,
			Misalignment:         photon.DefaultMisalignment,
			RepetitionRateHz:     photon.DefaultRepetitionRate,
			FiberRefractiveIndex: photon.DefaultRefractiveIndex,
			Seed:                 photon.DefaultSimulatedSrcSeed,
		},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:qkd.db?_pragma=busy_timeout(5000)"},
	}
}

func defaultProbabilities() map[string]float64 {
	p := make(map[string]float64, len(bb84.DefaultStateProbabilities))
	for k, v := range bb84.DefaultStateProbabilities {
		p[k] = v
	}
	return p
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	// Decoding merges into maps; start empty so a file's probabilities replace
	// the defaults rather than extend them.
	cfg.StateProbabilities = nil

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, decodeErr)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StateProbabilities == nil {
		cfg.StateProbabilities = defaultProbabilities()
	}
	if cfg.ErrorCorrectionFactor <= 0 {
		cfg.ErrorCorrectionFactor = bb84.DefaultErrorCorrectionFactor
	}
	if cfg.Channel.AttenuationDBPerKm <= 0 {
		cfg.Channel.AttenuationDBPerKm = photon.DefaultAttenuation
	}
	if cfg.Channel.DetectorEfficiency <= 0 {
		cfg.Channel.DetectorEfficiency = photon.DefaultDetectorEff
	}
	if cfg.Channel.RepetitionRateHz <= 0 {
		cfg.Channel.RepetitionRateHz = photon.DefaultRepetitionRate
	}
	if cfg.Channel.FiberRefractiveIndex <= 0 {
		cfg.Channel.FiberRefractiveIndex = photon.DefaultRefractiveIndex
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
}

func Validate(cfg *Config) error {
	if err := cfg.Intensities().Validate(); err != nil {
		return err
	}
	if cfg.RequiredKeyLength <= 0 {
		return errors.New("required_key_length must be > 0")
	}
	if cfg.ErrorCorrectionFactor < 1 {
		return errors.New("error_correction_factor must be >= 1")
	}
	if cfg.DistanceKm < 0 {
		return errors.New("distance_km must be >= 0")
	}
	ch := cfg.Channel
	if ch.DetectorEfficiency > 1 {
		return errors.New("channel.detector_efficiency must be <= 1")
	}
	if ch.DarkCountProbability < 0 || ch.DarkCountProbability > 1 {
		return errors.New("channel.dark_count_probability must be in [0, 1]")
	}
	if ch.Misalignment < 0 || ch.Misalignment > 0.5 {
		return errors.New("channel.misalignment must be in [0, 0.5]")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q unsupported", cfg.Storage.Driver)
		}
	}
	if cfg.Publish.Enabled && (len(cfg.Publish.Brokers) == 0 || cfg.Publish.Topic == "") {
		return errors.New("publish requires brokers, topic")
	}
	return nil
}

// ApplyEnv loads envFiles (.env when none are named) into the process
// environment, then overrides cfg from the QKD_* variables. Variables already
// set in the environment take precedence over the files. A missing default
// .env is ignored; a named file that cannot be read is an error.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return fmt.Errorf("loading env files: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv("QKD_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("QKD_STORAGE_DRIVER")); v != "" {
		cfg.Storage.Driver = v
		cfg.Storage.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("QKD_STORAGE_DSN")); v != "" {
		cfg.Storage.DSN = v
		cfg.Storage.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("QKD_KAFKA_BROKERS")); v != "" {
		cfg.Publish.Brokers = splitList(v)
		cfg.Publish.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("QKD_KAFKA_TOPIC")); v != "" {
		cfg.Publish.Topic = v
	}
	return Validate(cfg)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Intensities returns the pulse intensity configuration.
func (c *Config) Intensities() bb84.IntensityConfig {
	return bb84.IntensityConfig{
		Signal:        c.SignalIntensity,
		Decoys:        c.DecoyIntensities,
		Probabilities: c.StateProbabilities,
	}
}

// Opts returns post-processing options logging to log.
func (c *Config) Opts(log *slog.Logger) bb84.Opts {
	return bb84.Opts{
		Intensities:           c.Intensities(),
		ErrorCorrectionFactor: c.ErrorCorrectionFactor,
		Logger:                log,
	}
}

// SimulatedOpts returns the options for a simulated channel of length
// DistanceKm.
func (c *Config) SimulatedOpts() photon.SimulatedOpts {
	return photon.SimulatedOpts{
		DistanceKm:         c.DistanceKm,
		AttenuationDBPerKm: c.Channel.AttenuationDBPerKm,
		DetectorEfficiency: c.Channel.DetectorEfficiency,
		DarkCountProb:      c.Channel.DarkCountProbability,
		Misalignment:       c.Channel.Misalignment,
		RepetitionRateHz:   c.Channel.RepetitionRateHz,
		RefractiveIndex:    c.Channel.FiberRefractiveIndex,
		Src:                rand.NewSource(c.Channel.Seed),
	}
}
