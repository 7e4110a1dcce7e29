// Package governor enforces the per-day action caps and supplies the pacing
// delays the orchestrator waits out between actions.
package governor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/example/outreachbot/internal/models"
)

// CounterSource reads persisted daily counters. The ledger implements it.
type CounterSource interface {
	Counters(ctx context.Context, day string) (models.DailyCounters, error)
}

type Limits struct {
	MaxConnectionsPerDay int
	MaxMessagesPerDay    int
	MinDelay             time.Duration
	MaxDelay             time.Duration
	BreakAfterActions    int
	BreakDuration        time.Duration
	ActiveStart          string
	ActiveEnd            string
}

type Governor struct {
	src    CounterSource
	limits Limits
	now    func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func New(src CounterSource, limits Limits) *Governor {
	return &Governor{
		src:    src,
		limits: limits,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock replaces the clock; used by tests and by callers pinning a run
// to one calendar day.
func (g *Governor) WithClock(now func() time.Time) *Governor {
	g.now = now
	return g
}

// WithRand replaces the random source used by NextDelay.
func (g *Governor) WithRand(r *rand.Rand) *Governor {
	g.mu.Lock()
	g.rng = r
	g.mu.Unlock()
	return g
}

// Today is the local calendar day counters are scoped to.
func (g *Governor) Today() string {
	return g.now().Format("2006-01-02")
}

func (g *Governor) Now() time.Time { return g.now() }

func (g *Governor) limit(kind models.ActionKind) int {
	if kind.Quota() == models.ActionConnect {
		return g.limits.MaxConnectionsPerDay
	}
	return g.limits.MaxMessagesPerDay
}

// CanPerform reports whether another action of kind fits today's quota. The
// counters are read from the ledger on every call.
func (g *Governor) CanPerform(ctx context.Context, kind models.ActionKind) (bool, error) {
	c, err := g.src.Counters(ctx, g.Today())
	if err != nil {
		return false, fmt.Errorf("can perform %s: %w", kind, err)
	}
	return c.Count(kind) < g.limit(kind), nil
}

// Remaining returns how many actions of kind are still allowed today.
func (g *Governor) Remaining(ctx context.Context, kind models.ActionKind) (int, error) {
	c, err := g.src.Counters(ctx, g.Today())
	if err != nil {
		return 0, err
	}
	left := g.limit(kind) - c.Count(kind)
	if left < 0 {
		left = 0
	}
	return left, nil
}

// NextDelay returns a uniformly random pause in [MinDelay, MaxDelay]. It does
// not sleep.
func (g *Governor) NextDelay() time.Duration {
	lo, hi := g.limits.MinDelay, g.limits.MaxDelay
	if hi <= lo {
		return lo
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return lo + time.Duration(g.rng.Int63n(int64(hi-lo)+1))
}

// BreakDue reports the long pause owed after executed actions reach a
// multiple of BreakAfterActions.
func (g *Governor) BreakDue(executed int) (time.Duration, bool) {
	if g.limits.BreakAfterActions <= 0 || executed <= 0 {
		return 0, false
	}
	if executed%g.limits.BreakAfterActions != 0 {
		return 0, false
	}
	return g.limits.BreakDuration, true
}

// InActiveWindow checks whether the current local time falls inside the
// configured HH:MM window. A window that wraps midnight is supported; an
// unset or unparseable window always reports true.
func (g *Governor) InActiveWindow() bool {
	return inWindow(g.now(), g.limits.ActiveStart, g.limits.ActiveEnd)
}

func inWindow(now time.Time, start, end string) bool {
	s, err1 := time.Parse("15:04", start)
	e, err2 := time.Parse("15:04", end)
	if err1 != nil || err2 != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	sm := s.Hour()*60 + s.Minute()
	em := e.Hour()*60 + e.Minute()
	if sm <= em {
		return cur >= sm && cur <= em
	}
	return cur >= sm || cur <= em
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
