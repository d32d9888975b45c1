// Package omndx provides a high-level façade over the resilient invocation
// core: backend resolution, the retrying invocation wrapper and the fallback
// memory store. Most applications interact with this package by:
//  1. Creating an Agent via New() with a backend configuration
//  2. Calling Generate for text generation (with optional per-call policy overrides)
//  3. Using Remember / Recall for short-term memory
//
// All defaults are safe for local development and testing: without an API key
// the backend degrades to a deterministic fake (with one warning), and the
// memory store runs in lexical fallback mode unless an embedder is supplied.
package omndx

import (
	"context"
	"strings"

	"github.com/wjabrac/omndx/backend"
	"github.com/wjabrac/omndx/backend/anthropic"
	"github.com/wjabrac/omndx/backend/openai"
	"github.com/wjabrac/omndx/config"
	"github.com/wjabrac/omndx/invoke"
	"github.com/wjabrac/omndx/logging"
	"github.com/wjabrac/omndx/memory"
)

// Options configure an Agent instance.
type Options struct {
	// Defaults are the process-wide policy inputs. Nil reads the OMNDX_*
	// environment once via config.FromEnv.
	Defaults *config.Defaults

	// Policy replaces the instance-level invocation policy derived from
	// Defaults. Per-call overrides on Generate still take precedence.
	Policy *invoke.Policy

	// Memory overrides the default lexical-fallback store, e.g. to attach an
	// embedder for semantic search.
	Memory *memory.Store

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// ProviderFactory overrides how real backends are constructed. The
	// default picks the Anthropic SDK for claude* model names and the OpenAI
	// SDK otherwise.
	ProviderFactory backend.ProviderFactory
}

// Agent composes a resolved backend, the retrying invoker and a memory store.
type Agent struct {
	resolved *backend.Resolved
	invoker  *invoke.Invoker
	memory   *memory.Store
}

// New validates cfg, resolves the backend once and returns a ready Agent.
// Construction fails with *backend.ConfigError on invalid configuration or
// when a real backend is required but unavailable.
func New(cfg backend.Config, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	defaults := config.FromEnv()
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}
	factory := opts.ProviderFactory
	if factory == nil {
		factory = DefaultProviderFactory
	}

	resolved, err := backend.Resolve(cfg, func(o *backend.Options) {
		o.Logger = opts.Logger
		o.RequireRealBackend = &defaults.RequireRealBackend
		o.ProviderFactory = factory
	})
	if err != nil {
		return nil, err
	}

	mem := opts.Memory
	if mem == nil {
		mem = memory.NewStore(func(o *memory.Options) { o.Logger = opts.Logger })
	}

	invoker := invoke.New(resolved, defaults, func(o *invoke.Options) {
		o.Logger = opts.Logger
		o.Policy = opts.Policy
	})

	return &Agent{resolved: resolved, invoker: invoker, memory: mem}, nil
}

// DefaultProviderFactory selects the SDK by model name: claude* models go to
// the Anthropic Messages API, everything else to OpenAI chat completions.
func DefaultProviderFactory(s backend.ProviderSettings) (backend.Provider, error) {
	if strings.HasPrefix(strings.ToLower(s.ModelName), "claude") {
		return anthropic.New(s)
	}
	return openai.New(s)
}

// Generate produces text for prompt through the retrying invocation wrapper.
// It fails with *invoke.BackendError once attempts are exhausted or a fatal
// fault occurs, or with ctx.Err() on cancellation.
func (a *Agent) Generate(ctx context.Context, prompt string, overrides ...func(p *invoke.Policy)) (string, error) {
	return a.invoker.Generate(ctx, prompt, overrides...)
}

// Remember appends a text record with opaque metadata to the memory store.
func (a *Agent) Remember(ctx context.Context, text string, metadata map[string]any) (memory.Record, error) {
	return a.memory.Insert(ctx, text, metadata)
}

// Recall returns up to k stored records, most relevant to query first.
func (a *Agent) Recall(ctx context.Context, query string, k int) ([]memory.Record, error) {
	return a.memory.Query(ctx, query, k)
}

// ClearMemory drops all stored records.
func (a *Agent) ClearMemory() error {
	return a.memory.Clear()
}

// IsSemanticEnabled reports whether the memory store's vector index was
// available at construction.
func (a *Agent) IsSemanticEnabled() bool {
	return a.memory.IsSemanticEnabled()
}

// Backend exposes the resolved backend, mainly for inspection in tests.
func (a *Agent) Backend() *backend.Resolved {
	return a.resolved
}
