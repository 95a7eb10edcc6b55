// Package epplimiter implements the rate limiter (C6): an exact,
// sliding-window admission cap per sender, per spec §4.6. Unlike a token
// bucket, the limiter must answer precisely "how many acceptances fell in
// the last hour/day", so it keeps an ordered instant log per sender rather
// than a refilling counter.
package epplimiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Window is the 24h retention horizon entries are trimmed to (spec §4.6
// step 1); the hourly check then looks at the most recent 3600s subset of
// that log.
const Window = 24 * time.Hour

const hourlyWindow = time.Hour

// RejectedError reports which cap a sender exceeded.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return e.Reason }

// Limiter checks and records per-sender acceptance instants.
type Limiter interface {
	// CheckAndRecord applies spec §4.6's five steps atomically per sender.
	// A nil cap means "no limit for that window".
	CheckAndRecord(ctx context.Context, sender string, maxPerHour, maxPerDay *int) error
}

type senderLog struct {
	mu      sync.Mutex
	instants []time.Time
}

// InMemoryLimiter is the default, process-local sliding-window limiter.
type InMemoryLimiter struct {
	mu      sync.Mutex
	senders map[string]*senderLog
	now     func() time.Time
}

// NewInMemoryLimiter returns an empty InMemoryLimiter.
func NewInMemoryLimiter() *InMemoryLimiter {
	return &InMemoryLimiter{
		senders: make(map[string]*senderLog),
		now:     time.Now,
	}
}

func (l *InMemoryLimiter) logFor(sender string) *senderLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.senders[sender]
	if !ok {
		sl = &senderLog{}
		l.senders[sender] = sl
	}
	return sl
}

// CheckAndRecord implements Limiter. It locks only the log for the given
// sender, so calls for distinct senders proceed in parallel (spec §5).
func (l *InMemoryLimiter) CheckAndRecord(_ context.Context, sender string, maxPerHour, maxPerDay *int) error {
	sl := l.logFor(sender)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	now := l.now()

	// Step 1: drop entries older than 24h.
	cutoff := now.Add(-Window)
	kept := sl.instants[:0]
	for _, t := range sl.instants {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	sl.instants = kept

	// Step 2: compute hourly and daily counts.
	hourCutoff := now.Add(-hourlyWindow)
	h := 0
	for _, t := range sl.instants {
		if t.After(hourCutoff) {
			h++
		}
	}
	d := len(sl.instants)

	// Steps 3-4: reject if either cap is met or exceeded.
	if maxPerHour != nil && h >= *maxPerHour {
		return &RejectedError{Reason: fmt.Sprintf("Hourly rate limit exceeded (%d/%d)", h, *maxPerHour)}
	}
	if maxPerDay != nil && d >= *maxPerDay {
		return &RejectedError{Reason: fmt.Sprintf("Daily rate limit exceeded (%d/%d)", d, *maxPerDay)}
	}

	// Step 5: accept and record.
	sl.instants = append(sl.instants, now)
	return nil
}
