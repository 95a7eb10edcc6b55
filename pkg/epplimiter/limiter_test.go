package epplimiter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliptic1/external-prompt-protocol/pkg/epplimiter"
)

func intPtr(n int) *int { return &n }

func TestNoLimitsAlwaysAccept(t *testing.T) {
	l := epplimiter.NewInMemoryLimiter()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		require.NoError(t, l.CheckAndRecord(ctx, "alice", nil, nil))
	}
}

func TestHourlyCapRejectsAfterLimit(t *testing.T) {
	l := epplimiter.NewInMemoryLimiter()
	ctx := context.Background()
	maxPerHour := 2

	require.NoError(t, l.CheckAndRecord(ctx, "alice", &maxPerHour, nil))
	require.NoError(t, l.CheckAndRecord(ctx, "alice", &maxPerHour, nil))

	err := l.CheckAndRecord(ctx, "alice", &maxPerHour, nil)
	require.Error(t, err)
	var rej *epplimiter.RejectedError
	require.ErrorAs(t, err, &rej)
}

func TestDailyCapRejectsAfterLimit(t *testing.T) {
	l := epplimiter.NewInMemoryLimiter()
	ctx := context.Background()
	maxPerDay := 1

	require.NoError(t, l.CheckAndRecord(ctx, "bob", nil, &maxPerDay))
	err := l.CheckAndRecord(ctx, "bob", nil, &maxPerDay)
	require.Error(t, err)
}

func TestDistinctSendersIndependent(t *testing.T) {
	l := epplimiter.NewInMemoryLimiter()
	ctx := context.Background()
	maxPerHour := 1

	require.NoError(t, l.CheckAndRecord(ctx, "alice", &maxPerHour, nil))
	require.NoError(t, l.CheckAndRecord(ctx, "bob", &maxPerHour, nil))
}
