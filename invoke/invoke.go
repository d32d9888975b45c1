// Package invoke wraps every backend call with a per-attempt timeout, a
// jittered exponential retry policy and a uniform failure contract. It is
// the sole translation boundary: per-attempt backend faults never reach
// callers, who only ever handle *BackendError (or a context error on
// cancellation).
package invoke

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/wjabrac/omndx/backend"
	"github.com/wjabrac/omndx/config"
	"github.com/wjabrac/omndx/logging"
)

// Policy bounds one Generate call. Zero values are valid: Timeout 0 disables
// the per-attempt deadline, MaxRetries 0 means exactly one attempt.
//
// The timeout applies per attempt, not to the whole call; callers needing a
// hard deadline must cancel the supplied context.
type Policy struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
}

// PolicyFromDefaults derives an instance policy from process-wide defaults.
func PolicyFromDefaults(d config.Defaults) Policy {
	return Policy{
		Timeout:     d.Timeout,
		MaxRetries:  d.MaxRetries,
		BackoffBase: d.BackoffBase,
	}
}

// Per-call policy overrides for Generate.

// WithTimeout overrides the per-attempt timeout for one call.
func WithTimeout(d time.Duration) func(*Policy) {
	return func(p *Policy) { p.Timeout = d }
}

// WithMaxRetries overrides the retry budget for one call.
func WithMaxRetries(n int) func(*Policy) {
	return func(p *Policy) { p.MaxRetries = n }
}

// WithBackoffBase overrides the backoff base delay for one call.
func WithBackoffBase(d time.Duration) func(*Policy) {
	return func(p *Policy) { p.BackoffBase = d }
}

// BackendError is the single terminal error type surfaced by Generate. It
// wraps the last per-attempt fault and records how many attempts were made.
type BackendError struct {
	Cause    error
	Attempts int
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("backend call failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

// Unwrap exposes the last fault for errors.Is / errors.As.
func (e *BackendError) Unwrap() error { return e.Cause }

// Options configure an Invoker.
type Options struct {
	// Policy is the instance-level policy; it sits between process defaults
	// and per-call overrides in precedence.
	Policy *Policy
	// Logger receives retry diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Invoker drives retries against one resolved backend. Each Generate call
// runs an independent sequential retry loop; an Invoker is safe for
// concurrent use because the policy and backend are read-only.
type Invoker struct {
	backend *backend.Resolved
	policy  Policy
	logger  logging.Logger
}

// New creates an Invoker over a resolved backend. The instance policy
// defaults to the supplied process defaults and can be replaced via Options.
func New(b *backend.Resolved, defaults config.Defaults, optFns ...func(o *Options)) *Invoker {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	policy := PolicyFromDefaults(defaults)
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Invoker{backend: b, policy: policy, logger: opts.Logger}
}

// Policy returns the instance-level policy.
func (i *Invoker) Policy() Policy { return i.policy }

// Generate runs up to 1+MaxRetries attempts against the backend. Per-call
// overrides are merged onto a copy of the instance policy; shared state is
// never mutated. On success the text is returned immediately. A fatal fault
// or an exhausted retry budget yields *BackendError; cancellation of ctx
// during an attempt or a backoff sleep yields ctx.Err() instead.
func (i *Invoker) Generate(ctx context.Context, prompt string, overrides ...func(*Policy)) (string, error) {
	policy := i.policy
	for _, fn := range overrides {
		fn(&policy)
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}

	attempt := 0
	for {
		out, err := i.attempt(ctx, prompt, policy.Timeout)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			// Caller cancellation is a distinct outcome, not a backend failure.
			return "", ctx.Err()
		}
		if !retryable(err) {
			i.logger.Warn("backend call fatal",
				"attempts", attempt+1, "error", err)
			return "", &BackendError{Cause: err, Attempts: attempt + 1}
		}
		if attempt >= policy.MaxRetries {
			i.logger.Warn("backend call attempts exhausted",
				"attempts", attempt+1, "error", err)
			return "", &BackendError{Cause: err, Attempts: attempt + 1}
		}
		delay := backoffDelay(policy.BackoffBase, attempt)
		i.logger.Debug("backend call retry",
			"attempt", attempt+1, "delay", delay, "error", err)
		if serr := sleep(ctx, delay); serr != nil {
			return "", serr
		}
		attempt++
	}
}

// attempt bounds one backend call with the per-attempt timeout.
func (i *Invoker) attempt(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return i.backend.Invoke(ctx, prompt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return i.backend.Invoke(attemptCtx, prompt)
}

// retryable reports whether the attempt failure is worth another try. An
// attempt deadline counts as transient; fault classification decides the rest.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var fault *backend.Fault
	if errors.As(err, &fault) {
		return fault.Transient()
	}
	return false
}

// backoffDelay computes base * 2^attempt scaled by a jitter multiplier drawn
// independently per attempt from [0.5, 1.5), so concurrent callers do not
// synchronize their retries.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	jitter := 0.5 + rand.Float64()
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)) * jitter)
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
