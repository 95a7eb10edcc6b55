package eppexec_test

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppenvelope"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppexec"
)

func testEnvelope() *eppenvelope.Envelope {
	return &eppenvelope.Envelope{
		EnvelopeID: "11111111-1111-1111-1111-111111111111",
		Sender:     "aa",
		Scope:      "test",
		Payload:    eppenvelope.Payload{Prompt: "hi"},
	}
}

func TestNoopExecutorAlwaysSucceeds(t *testing.T) {
	var e eppexec.NoopExecutor
	res := e.Execute(context.Background(), testEnvelope())
	require.True(t, res.Success)
	require.Equal(t, "noop", res.ExecutorName)
}

func TestFileQueueExecutorWritesOwnerOnlyFile(t *testing.T) {
	dir := t.TempDir()
	e, err := eppexec.NewFileQueueExecutor(dir)
	require.NoError(t, err)

	res := e.Execute(context.Background(), testEnvelope())
	require.True(t, res.Success)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasSuffix(entries[0].Name(), "_11111111-1111-1111-1111-111111111111.json"))

	info, err := os.Stat(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoggerExecutorLogsAcceptedEnvelope(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	e := eppexec.NewLoggerExecutor(logger)

	res := e.Execute(context.Background(), testEnvelope())
	require.True(t, res.Success)
	require.Contains(t, buf.String(), "envelope accepted")
	require.Contains(t, buf.String(), "11111111-1111-1111-1111-111111111111")
}
