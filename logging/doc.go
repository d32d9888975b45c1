// Package logging provides a minimal logging interface and adapters for omndx.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the backend adapter, invoker and memory store use for
// diagnostics. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.New(&logging.Config{Level: logging.LogLevelDebug, Format: "text"})
//	agent, err := omndx.New(cfg, func(o *omndx.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
