// Package backend normalizes access to a text-generation backend behind one
// call surface. Resolve validates the raw configuration once, selects either
// the deterministic fake dispatcher or a provider-backed real backend, and
// returns an immutable Resolved value. Invoke performs exactly one call
// attempt; retries, timeouts and the terminal error contract belong to the
// invoke package.
//
// Failure taxonomy: ConfigError at construction (never retried), *Fault per
// attempt (transient or fatal, driving the retry decision upstream).
package backend
