package eppexec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
)

// FileQueueExecutor writes one owner-only-permission JSON file per
// accepted envelope into queueDir, named
// YYYYMMDD_HHMMSS_<envelope_id>.json (spec §6 persisted state layouts).
type FileQueueExecutor struct {
	queueDir string
	now      func() time.Time
}

// NewFileQueueExecutor returns a FileQueueExecutor writing into queueDir,
// creating the directory (owner-only) if it does not exist.
func NewFileQueueExecutor(queueDir string) (*FileQueueExecutor, error) {
	if err := os.MkdirAll(queueDir, 0700); err != nil {
		return nil, fmt.Errorf("eppexec: create queue dir: %w", err)
	}
	return &FileQueueExecutor{queueDir: queueDir, now: time.Now}, nil
}

// Name implements Executor.
func (e *FileQueueExecutor) Name() string { return "file_queue" }

// Execute implements Executor.
func (e *FileQueueExecutor) Execute(_ context.Context, env *eppenvelope.Envelope) Result {
	filename := fmt.Sprintf("%s_%s.json", e.now().UTC().Format("20060102_150405"), env.EnvelopeID)
	path := filepath.Join(e.queueDir, filename)

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return Result{Success: false, ExecutorName: e.Name(), ErrorMessage: err.Error()}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return Result{Success: false, ExecutorName: e.Name(), ErrorMessage: err.Error()}
	}

	return Result{
		Success:      true,
		ExecutorName: e.Name(),
		ResultData:   map[string]any{"queue_file": filename},
	}
}
