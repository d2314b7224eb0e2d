// Package logging provides a tiny abstraction over slog so engine code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a GameLogger with contextual helpers
// (session, turn, stage) and domain specific logging for provider calls.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger is the minimal logging interface consumed by the engine. Users can
// provide their own implementation or use the built-in slog adapter.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement Logger.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from an existing *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger { return &SlogAdapter{Logger: logger} }

// NewDefaultLogger creates a JSON slog Logger writing to stdout at info level.
func NewDefaultLogger() Logger {
	return NewJSONLogger(os.Stdout, slog.LevelInfo)
}

// NewJSONLogger creates a JSON slog Logger with the given output and level.
func NewJSONLogger(w io.Writer, level slog.Level) Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return &SlogAdapter{Logger: slog.New(handler)}
}

// NoOpLogger discards all log messages. Useful for tests or when logging is
// disabled.
type NoOpLogger struct{}

// Debug discards the message.
func (NoOpLogger) Debug(string, ...any) {}

// Info discards the message.
func (NoOpLogger) Info(string, ...any) {}

// Warn discards the message.
func (NoOpLogger) Warn(string, ...any) {}

// Error discards the message.
func (NoOpLogger) Error(string, ...any) {}

// GameLogger wraps a Logger with session/turn context and convenience
// methods for the engine's recurring log shapes. With* methods return cheap
// copies so contexts never leak between sessions.
type GameLogger struct {
	logger    Logger
	sessionID string
	sequence  uint64
	stage     string
}

// NewGameLogger wraps the given Logger; a nil logger falls back to NoOp.
func NewGameLogger(l Logger) *GameLogger {
	if l == nil {
		l = NoOpLogger{}
	}
	return &GameLogger{logger: l}
}

// WithSession returns a copy bound to a session id.
func (g *GameLogger) WithSession(sessionID string) *GameLogger {
	ng := *g
	ng.sessionID = sessionID
	return &ng
}

// WithTurn returns a copy bound to a turn sequence number.
func (g *GameLogger) WithTurn(seq uint64) *GameLogger {
	ng := *g
	ng.sequence = seq
	return &ng
}

// WithStage returns a copy bound to a pipeline stage name.
func (g *GameLogger) WithStage(stage string) *GameLogger {
	ng := *g
	ng.stage = stage
	return &ng
}

func (g *GameLogger) attrs(args []any) []any {
	out := make([]any, 0, len(args)+6)
	if g.sessionID != "" {
		out = append(out, "session_id", g.sessionID)
	}
	if g.sequence != 0 {
		out = append(out, "sequence", g.sequence)
	}
	if g.stage != "" {
		out = append(out, "stage", g.stage)
	}
	return append(out, args...)
}

// Debug logs at debug level with the bound context attached.
func (g *GameLogger) Debug(msg string, args ...any) { g.logger.Debug(msg, g.attrs(args)...) }

// Info logs at info level with the bound context attached.
func (g *GameLogger) Info(msg string, args ...any) { g.logger.Info(msg, g.attrs(args)...) }

// Warn logs at warn level with the bound context attached.
func (g *GameLogger) Warn(msg string, args ...any) { g.logger.Warn(msg, g.attrs(args)...) }

// Error logs at error level with the bound context attached.
func (g *GameLogger) Error(msg string, args ...any) { g.logger.Error(msg, g.attrs(args)...) }

// LogProviderCall records latency and outcome of one LLM capability call.
func (g *GameLogger) LogProviderCall(op string, dur time.Duration, err error) {
	args := g.attrs([]any{"op", op, "duration", dur})
	if err != nil {
		g.logger.Error("provider call failed", append(args, "error", err.Error())...)
		return
	}
	g.logger.Debug("provider call completed", args...)
}

// LogStage records one pipeline stage execution for diagnostics.
func (g *GameLogger) LogStage(stage string, attempts int, dur time.Duration, err error) {
	args := g.attrs([]any{"stage", stage, "attempts", attempts, "duration", dur})
	if err != nil {
		g.logger.Warn("stage fell back", append(args, "error", err.Error())...)
		return
	}
	g.logger.Debug("stage completed", args...)
}

// ctxKey is the context key type for logger propagation.
type ctxKey struct{}

// IntoContext stores a GameLogger in the context.
func IntoContext(ctx context.Context, l *GameLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the GameLogger stored in ctx, or a NoOp-backed one.
func FromContext(ctx context.Context) *GameLogger {
	if l, ok := ctx.Value(ctxKey{}).(*GameLogger); ok {
		return l
	}
	return NewGameLogger(nil)
}
