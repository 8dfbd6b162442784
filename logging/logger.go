package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a case-insensitive level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface used across the module.
// Args are slog style key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// StructuredLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type StructuredLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	sessionID string
	agentID   string
	attrs     map[string]any
}

// LoggerConfig configures construction of a StructuredLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a StructuredLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	return &StructuredLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component, attrs: map[string]any{}}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *StructuredLogger) clone() *StructuredLogger {
	nl := *l
	nl.attrs = make(map[string]any, len(l.attrs))
	for k, v := range l.attrs {
		nl.attrs[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *StructuredLogger) WithContext(key string, value any) *StructuredLogger {
	nl := l.clone()
	nl.attrs[key] = value
	return nl
}

// WithComponent sets the logical component (bus, engine, admin, server...).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession attaches a session identifier.
func (l *StructuredLogger) WithSession(sid string) *StructuredLogger {
	nl := l.clone()
	nl.sessionID = sid
	return nl
}

// WithAgent attaches an agent identifier.
func (l *StructuredLogger) WithAgent(id string) *StructuredLogger {
	nl := l.clone()
	nl.agentID = id
	return nl
}

func (l *StructuredLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.attrs)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", l.sessionID))
	}
	if l.agentID != "" {
		attrs = append(attrs, slog.String("agent_id", l.agentID))
	}
	for k, v := range l.attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *StructuredLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(l.buildAttrs()...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *StructuredLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *StructuredLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *StructuredLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *StructuredLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogModelCall records model call latency and success.
func (l *StructuredLogger) LogModelCall(provider string, dur time.Duration, err error) {
	if err != nil {
		l.Error("model call failed", "provider", provider, "duration", dur, "error", err.Error())
		return
	}
	l.Debug("model call completed", "provider", provider, "duration", dur)
}

// LogAgentRun records the outcome of one agent execution.
func (l *StructuredLogger) LogAgentRun(agentID, status string, dur time.Duration, err error) {
	if err != nil {
		l.Error("agent execution failed", "agent", agentID, "duration", dur, "error", err.Error())
		return
	}
	l.Info("agent execution completed", "agent", agentID, "status", status, "duration", dur)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// With returns a logger carrying the given key/value pairs. StructuredLogger
// and SlogAdapter keep their attributes; other implementations are wrapped.
func With(l Logger, args ...any) Logger {
	switch t := l.(type) {
	case nil:
		return NoOpLogger{}
	case NoOpLogger:
		return t
	case *SlogAdapter:
		return &SlogAdapter{Logger: t.Logger.With(args...)}
	case *StructuredLogger:
		nl := t.clone()
		for i := 0; i+1 < len(args); i += 2 {
			k, ok := args[i].(string)
			if !ok {
				continue
			}
			v := args[i+1]
			s, isString := v.(string)

			switch {
			case k == "component" && isString:
				nl = nl.WithComponent(s)
			case k == "session_id" && isString:
				nl = nl.WithSession(s)
			case (k == "agent" || k == "agent_id") && isString:
				nl = nl.WithAgent(s)
			default:
				nl = nl.WithContext(k, v)
			}
		}
		return nl
	default:
		return &prefixed{Logger: l, args: args}
	}
}

// ModelCall logs one model call through l. A StructuredLogger records it
// with LogModelCall.
func ModelCall(l Logger, provider string, dur time.Duration, err error) {
	if sl, ok := l.(*StructuredLogger); ok {
		sl.LogModelCall(provider, dur, err)
		return
	}

	if err != nil {
		l.Error("model call failed", "provider", provider, "duration", dur, "error", err.Error())
		return
	}
	l.Debug("model call completed", "provider", provider, "duration", dur)
}

// AgentRun logs the outcome of one agent execution through l. A
// StructuredLogger records it with LogAgentRun.
func AgentRun(l Logger, agentID, status string, dur time.Duration, err error) {
	if sl, ok := l.(*StructuredLogger); ok {
		sl.LogAgentRun(agentID, status, dur, err)
		return
	}

	if err != nil {
		l.Error("agent execution failed", "agent", agentID, "duration", dur, "error", err.Error())
		return
	}
	l.Info("agent execution completed", "agent", agentID, "status", status, "duration", dur)
}

type prefixed struct {
	Logger
	args []any
}

func (p *prefixed) Debug(msg string, args ...any) { p.Logger.Debug(msg, p.merge(args)...) }
func (p *prefixed) Info(msg string, args ...any)  { p.Logger.Info(msg, p.merge(args)...) }
func (p *prefixed) Warn(msg string, args ...any)  { p.Logger.Warn(msg, p.merge(args)...) }
func (p *prefixed) Error(msg string, args ...any) { p.Logger.Error(msg, p.merge(args)...) }

func (p *prefixed) merge(args []any) []any {
	out := make([]any, 0, len(p.args)+len(args))
	out = append(out, p.args...)
	return append(out, args...)
}
