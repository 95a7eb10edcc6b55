// Package eppexec implements the executor capability (C9): the single
// method an accepted envelope is handed to, per spec §4.9. Executor
// failures never turn an accepted receipt into a rejection; they are
// reported out-of-band via logging.
package eppexec

import (
	"context"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
)

// Result is the outcome an executor reports after running. Success or
// failure here is informational only — the admission decision already
// happened.
type Result struct {
	Success      bool           `json:"success"`
	ExecutorName string         `json:"executor_name"`
	ResultData   map[string]any `json:"result_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Executor is the capability interface the admission pipeline's final gate
// accepts any value honoring.
type Executor interface {
	Execute(ctx context.Context, env *eppenvelope.Envelope) Result
	// Name identifies the executor for the accepted receipt's "executor"
	// field (spec §4.8).
	Name() string
}
