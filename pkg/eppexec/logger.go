package eppexec

import (
	"context"
	"log/slog"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
)

// LoggerExecutor emits a structured log line per accepted envelope via
// log/slog, the structured-logging convention the rest of this module uses.
type LoggerExecutor struct {
	logger *slog.Logger
}

// NewLoggerExecutor wraps logger. A nil logger uses slog.Default().
func NewLoggerExecutor(logger *slog.Logger) *LoggerExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggerExecutor{logger: logger}
}

// Name implements Executor.
func (e *LoggerExecutor) Name() string { return "logger" }

// Execute implements Executor.
func (e *LoggerExecutor) Execute(_ context.Context, env *eppenvelope.Envelope) Result {
	e.logger.Info("envelope accepted",
		"envelope_id", env.EnvelopeID,
		"sender", env.Sender,
		"scope", env.Scope,
	)
	return Result{
		Success:      true,
		ExecutorName: e.Name(),
		ResultData:   map[string]any{"logged": true},
	}
}
