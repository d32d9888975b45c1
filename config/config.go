// Package config holds the process-wide invocation defaults. Defaults is an
// immutable value constructed once at startup (from the environment, a YAML
// file, or both) and passed explicitly into consumers; there is no ambient
// global state. Per-instance and per-call overrides are merged functionally
// on top of it by the invoke package.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consulted by FromEnv. Each maps to one Defaults field.
const (
	EnvRequestTimeout     = "OMNDX_REQUEST_TIMEOUT"
	EnvMaxRetries         = "OMNDX_MAX_RETRIES"
	EnvBackoffBase        = "OMNDX_BACKOFF_BASE"
	EnvRequireRealBackend = "OMNDX_REQUIRE_REAL_BACKEND"
)

// Defaults captures the process-wide invocation policy inputs. Values mirror
// the orchestrator defaults of the original deployment: 30s request timeout,
// 3 retries, 500ms backoff base, fail-open on missing credentials.
type Defaults struct {
	// Timeout bounds a single call attempt, not the whole retry loop.
	Timeout time.Duration
	// MaxRetries is the number of retries after the first attempt; 0 means
	// exactly one attempt.
	MaxRetries int
	// BackoffBase is the base delay of the exponential retry backoff.
	BackoffBase time.Duration
	// RequireRealBackend makes backend resolution fail instead of silently
	// degrading to the fake backend when credentials are missing.
	RequireRealBackend bool
}

// New returns the built-in defaults.
func New() Defaults {
	return Defaults{
		Timeout:     30 * time.Second,
		MaxRetries:  3,
		BackoffBase: 500 * time.Millisecond,
	}
}

// FromEnv reads the OMNDX_* environment variables once and returns the
// resulting defaults. Unset or malformed values keep the built-in default for
// that field; environment parsing never fails.
func FromEnv() Defaults {
	return New().withEnv()
}

// fileDefaults is the YAML shape of a config file. Durations are strings in
// time.ParseDuration syntax ("5s", "250ms"); absent fields keep defaults.
type fileDefaults struct {
	Timeout            string `yaml:"timeout"`
	MaxRetries         *int   `yaml:"max_retries"`
	BackoffBase        string `yaml:"backoff_base"`
	RequireRealBackend *bool  `yaml:"require_real_backend"`
}

// Load reads defaults from a YAML file, then applies any OMNDX_* environment
// overrides on top (environment wins). Unknown YAML keys are rejected so a
// typo in a config file surfaces instead of silently using defaults.
func Load(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var f fileDefaults
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Defaults{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	d := New()
	if f.Timeout != "" {
		dur, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return Defaults{}, fmt.Errorf("parse config %s: timeout: %w", path, err)
		}
		d.Timeout = dur
	}
	if f.MaxRetries != nil {
		if *f.MaxRetries < 0 {
			return Defaults{}, fmt.Errorf("parse config %s: max_retries must be >= 0", path)
		}
		d.MaxRetries = *f.MaxRetries
	}
	if f.BackoffBase != "" {
		dur, err := time.ParseDuration(f.BackoffBase)
		if err != nil {
			return Defaults{}, fmt.Errorf("parse config %s: backoff_base: %w", path, err)
		}
		d.BackoffBase = dur
	}
	if f.RequireRealBackend != nil {
		d.RequireRealBackend = *f.RequireRealBackend
	}
	return d.withEnv(), nil
}

func (d Defaults) withEnv() Defaults {
	if v := os.Getenv(EnvRequestTimeout); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur > 0 {
			d.Timeout = dur
		}
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			d.MaxRetries = n
		}
	}
	if v := os.Getenv(EnvBackoffBase); v != "" {
		if dur, err := time.ParseDuration(v); err == nil && dur >= 0 {
			d.BackoffBase = dur
		}
	}
	if v := os.Getenv(EnvRequireRealBackend); v != "" {
		d.RequireRealBackend = v == "1" || v == "true"
	}
	return d
}
