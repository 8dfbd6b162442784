// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the logging methods (Debug, Info, Warn, Error)
// that the bus, engine, agents and server use. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping a plain *slog.Logger
//   - StructuredLogger with component/session/agent scoping
//   - NoOpLogger for silent operation (tests, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text"})
//	eng := engine.New(registry, func(o *engine.Options) {
//	    o.Logger = logger.WithComponent("engine")
//	})
package logging
