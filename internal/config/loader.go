package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"embedder": {"rest", "mock"},
	"synth":    {"xtts", "openai", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("embedder", cfg.Providers.Embedder.Name)
	validateProviderName("synth", cfg.Providers.Synth.Name)

	if cfg.Providers.Timeout < 0 {
		errs = append(errs, fmt.Errorf("providers.timeout must not be negative, got %s", cfg.Providers.Timeout))
	}

	// Storage
	if cfg.Storage.EmbeddingDimensions < 0 {
		errs = append(errs, fmt.Errorf("storage.embedding_dimensions must not be negative, got %d", cfg.Storage.EmbeddingDimensions))
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; using in-memory stores, versions are lost on restart")
	}

	// Decision thresholds
	d := cfg.Decision
	if d.MergeThreshold < 0 || d.MergeThreshold > 1 {
		errs = append(errs, fmt.Errorf("decision.merge_threshold %.3f is out of range [0, 1]", d.MergeThreshold))
	}
	if d.NewVersionThreshold < 0 || d.NewVersionThreshold > 1 {
		errs = append(errs, fmt.Errorf("decision.new_version_threshold %.3f is out of range [0, 1]", d.NewVersionThreshold))
	}
	if d.MergeThreshold != 0 && d.NewVersionThreshold != 0 && d.NewVersionThreshold >= d.MergeThreshold {
		errs = append(errs, fmt.Errorf("decision.new_version_threshold %.3f must be below decision.merge_threshold %.3f", d.NewVersionThreshold, d.MergeThreshold))
	}
	if d.TopK < 0 {
		errs = append(errs, fmt.Errorf("decision.top_k must not be negative, got %d", d.TopK))
	}

	// Quality
	if cfg.Quality.MinDurationSeconds < 0 {
		errs = append(errs, fmt.Errorf("quality.min_duration_seconds must not be negative, got %.2f", cfg.Quality.MinDurationSeconds))
	}

	// Confidence weights
	c := cfg.Confidence
	sum := c.SimilarityWeight + c.DeviceWeight + c.SNRWeight
	if sum != 0 && (sum < 0.99 || sum > 1.01) {
		errs = append(errs, fmt.Errorf("confidence weights must sum to 1, got %.3f", sum))
	}
	if c.DeviceFloor < 0 || c.DeviceFloor > 1 {
		errs = append(errs, fmt.Errorf("confidence.device_floor %.3f is out of range [0, 1]", c.DeviceFloor))
	}

	// Playback
	p := cfg.Playback
	if p.ExactEpsilonYears < 0 {
		errs = append(errs, fmt.Errorf("playback.exact_epsilon_years must not be negative, got %.3f", p.ExactEpsilonYears))
	}
	if p.GapPenaltyCap < 0 || p.GapPenaltyCap > 1 {
		errs = append(errs, fmt.Errorf("playback.gap_penalty_cap %.3f is out of range [0, 1]", p.GapPenaltyCap))
	}
	if p.PredictionCeiling < 0 || p.PredictionCeiling > 1 {
		errs = append(errs, fmt.Errorf("playback.prediction_ceiling %.3f is out of range [0, 1]", p.PredictionCeiling))
	}
	if p.DampingTauYears < 0 {
		errs = append(errs, fmt.Errorf("playback.damping_tau_years must not be negative, got %.3f", p.DampingTauYears))
	}

	// Rate limit
	if cfg.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_second must not be negative, got %.2f", cfg.RateLimit.RequestsPerSecond))
	}
	if cfg.RateLimit.Burst < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.burst must not be negative, got %d", cfg.RateLimit.Burst))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
