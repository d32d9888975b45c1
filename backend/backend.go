package backend

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/wjabrac/omndx/logging"
)

// Provider is the single call surface a real generation backend must expose.
// Implementations live in backend/openai and backend/anthropic; they perform
// exactly one request per Complete call and return classified *Fault errors.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends one blocking generation request.
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderFactory builds a Provider from validated real-mode settings. The
// root omndx package wires a default factory that picks the SDK by model name.
type ProviderFactory func(s ProviderSettings) (Provider, error)

// Kind tags the resolved backend variant.
type Kind int

const (
	// KindFake is the deterministic stub dispatcher.
	KindFake Kind = iota
	// KindReal is a provider-backed generation backend.
	KindReal
)

// String returns the string representation of the backend kind.
func (k Kind) String() string {
	if k == KindReal {
		return "real"
	}
	return "fake"
}

// Options configure backend resolution.
type Options struct {
	// RequireRealBackend forces resolution to fail instead of silently
	// substituting the fake backend when credentials are missing. When nil,
	// the OMNDX_REQUIRE_REAL_BACKEND environment switch decides.
	RequireRealBackend *bool

	// Logger receives the construction-time fallback warning. Defaults to
	// the process slog logger.
	Logger logging.Logger

	// ProviderFactory builds the real backend. Required for real mode.
	ProviderFactory ProviderFactory
}

// Resolved is an immutable backend selected once at construction. It holds
// the chosen call path as a tagged variant; Invoke dispatches by matching on
// the tag rather than via dynamic dispatch. A Resolved is owned by one
// adapter instance and performs exactly one call attempt per Invoke with no
// retry or timeout logic of its own (that belongs to the invoke package).
type Resolved struct {
	kind      Kind
	modelName string
	fake      *fakeDispatcher
	provider  Provider
}

// Kind reports which call path was selected at construction.
func (r *Resolved) Kind() Kind { return r.kind }

// ModelName returns the configured model name ("fake-list" in fake mode).
func (r *Resolved) ModelName() string { return r.modelName }

// Resolve validates cfg and constructs the backend. Validation order follows
// the failure contract: key-set check first, then mode selection on
// model_name. A missing API key in real mode degrades to the fake backend
// with a single warning unless a real backend is required.
func Resolve(cfg Config, optFns ...func(o *Options)) (*Resolved, error) {
	opts := Options{Logger: logging.NewDefaultSlogLogger()}
	for _, fn := range optFns {
		fn(&opts)
	}

	modelName, err := cfg.stringValue(KeyModelName)
	if err != nil {
		return nil, err
	}
	if err := validateKeys(cfg, modelName == FakeModelName); err != nil {
		return nil, err
	}

	apiKey, err := cfg.stringValue(KeyAPIKey)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		apiKey = envAPIKey()
	}

	requireReal := os.Getenv("OMNDX_REQUIRE_REAL_BACKEND") == "1" ||
		os.Getenv("OMNDX_REQUIRE_REAL_BACKEND") == "true"
	if opts.RequireRealBackend != nil {
		requireReal = *opts.RequireRealBackend
	}

	if requireReal && (modelName == FakeModelName || apiKey == "") {
		return nil, configErrorf("real backend required but unavailable (model=%q, api key present=%t)",
			modelName, apiKey != "")
	}

	if modelName == FakeModelName {
		// An explicit fake backend never touches credentials; rejecting the
		// key keeps test configs from silently carrying real secrets.
		if _, ok := cfg[KeyAPIKey]; ok {
			return nil, configErrorf("api_key is not allowed with model %q", FakeModelName)
		}
		return resolveFake(cfg)
	}
	if apiKey == "" || modelName == "" {
		// Fail-open default: degrade to the fake backend rather than error.
		// Reported once, at construction, as a warning.
		opts.Logger.Warn("no usable real backend, substituting fake backend",
			"model", modelName,
			"hint", "set api_key or OPENAI_API_KEY / ANTHROPIC_API_KEY")
		if err := validateKeys(cfg, true); err != nil {
			return nil, err
		}
		return resolveFake(cfg)
	}

	return resolveReal(cfg, modelName, apiKey, opts)
}

func resolveFake(cfg Config) (*Resolved, error) {
	responses, err := cfg.stringSliceValue(KeyResponses)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		responses = []string{"fake-response"}
	}
	mode, err := cfg.stringValue(KeyResponsesMode)
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeCycle
	}
	if mode != ModeCycle && mode != ModePop {
		return nil, configErrorf("responses_mode must be %q or %q, got %q", ModeCycle, ModePop, mode)
	}
	return &Resolved{
		kind:      KindFake,
		modelName: FakeModelName,
		fake:      &fakeDispatcher{responses: responses, mode: mode},
	}, nil
}

func resolveReal(cfg Config, modelName, apiKey string, opts Options) (*Resolved, error) {
	if opts.ProviderFactory == nil {
		return nil, configErrorf("no provider factory configured for real backend %q", modelName)
	}
	endpoint, err := cfg.stringValue(KeyEndpoint)
	if err != nil {
		return nil, err
	}
	temperature, err := cfg.floatValue(KeyTemperature)
	if err != nil {
		return nil, err
	}
	provider, err := opts.ProviderFactory(ProviderSettings{
		ModelName:   modelName,
		APIKey:      apiKey,
		Endpoint:    endpoint,
		Temperature: temperature,
	})
	if err != nil {
		return nil, configErrorf("provider construction failed: %v", err)
	}
	return &Resolved{kind: KindReal, modelName: modelName, provider: provider}, nil
}

func envAPIKey() string {
	if k := os.Getenv("OPENAI_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("ANTHROPIC_API_KEY")
}

// Invoke performs exactly one call attempt. Failures are returned as *Fault
// carrying the raw cause and a retry classification; context errors pass
// through untouched so the invocation wrapper can distinguish timeout from
// caller cancellation.
func (r *Resolved) Invoke(ctx context.Context, prompt string) (string, error) {
	switch r.kind {
	case KindFake:
		return r.fake.next()
	default:
		out, err := r.provider.Complete(ctx, prompt)
		if err != nil {
			return "", asFault(err)
		}
		return out, nil
	}
}

// asFault ensures every provider failure carries a classification. Context
// errors are left bare; unclassified errors default to transient.
func asFault(err error) error {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewTransientFault(err)
}

// fakeDispatcher serves the configured response sequence. The position
// counter is shared by concurrent invocations, so access is serialized to
// guarantee pop mode consumes each response exactly once.
type fakeDispatcher struct {
	mu        sync.Mutex
	responses []string
	mode      string
	pos       int
}

func (d *fakeDispatcher) next() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == ModePop {
		if d.pos >= len(d.responses) {
			return "", NewFatalFault(ErrResponsesExhausted)
		}
		resp := d.responses[d.pos]
		d.pos++
		return resp, nil
	}
	resp := d.responses[d.pos%len(d.responses)]
	d.pos++
	return resp, nil
}
