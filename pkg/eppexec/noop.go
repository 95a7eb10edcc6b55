package eppexec

import (
	"context"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
)

// NoopExecutor acknowledges every envelope without side effects. It is the
// default for configurations that only want admission gating.
type NoopExecutor struct{}

// Name implements Executor.
func (NoopExecutor) Name() string { return "noop" }

// Execute implements Executor.
func (NoopExecutor) Execute(_ context.Context, env *eppenvelope.Envelope) Result {
	return Result{
		Success:      true,
		ExecutorName: "noop",
		ResultData:   map[string]any{"envelope_id": env.EnvelopeID},
	}
}
