package pool

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/echowing/smsgw/internal/modem"
)

// ErrNoCapacity is returned by a non-blocking Acquire when no session is
// currently eligible (spec.md §7 NoCapacity).
var ErrNoCapacity = errors.New("pool: no capacity")

// backoffSchedule is the discrete wait-and-retry schedule of spec.md §4.5:
// 60, 180, 300, 420, 540 seconds, then a constant 60s thereafter.
var backoffSchedule = []time.Duration{
	60 * time.Second,
	180 * time.Second,
	300 * time.Second,
	420 * time.Second,
	540 * time.Second,
}

func backoffWait(attempt int) time.Duration {
	if attempt < len(backoffSchedule) {
		return backoffSchedule[attempt]
	}
	return 60 * time.Second
}

// Lease is an exclusive, owning borrow of a modem session (spec.md §3
// ModemLease). Release must be called exactly once; it is safe to call more
// than once, the extra calls are no-ops (spec.md §9: destructor-based
// release becomes an explicit release()).
type Lease struct {
	session  SessionHandle
	once     sync.Once
}

// Session returns the leased modem session.
func (l *Lease) Session() SessionHandle {
	return l.session
}

// Release clears in_use and stamps last_used on the underlying session.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.session.MarkInUse(false)
	})
}

// Acquire selects the single best eligible session and returns an owning
// Lease, or ErrNoCapacity if none are eligible (spec.md §4.5 Lease
// arbitration). Non-blocking.
func (p *Pool) Acquire() (*Lease, error) {
	p.mu.Lock()
	snapshot := make([]SessionHandle, 0, len(p.sessions))
	for _, s := range p.sessions {
		snapshot = append(snapshot, s)
	}
	p.mu.Unlock()

	candidates := make([]SessionHandle, 0, len(snapshot))
	for _, s := range snapshot {
		if s.Faulted() {
			continue
		}
		candidates = append(candidates, s)
	}

	best := selectBest(candidates)
	if best == nil {
		return nil, ErrNoCapacity
	}
	best.MarkInUse(true)
	return &Lease{session: best}, nil
}

// AcquireWait blocks until a session becomes available or the context is
// cancelled, retrying non-blocking Acquire calls on the discrete backoff
// schedule of spec.md §4.5. It has no give-up condition of its own.
// Cancellation releases the wait immediately.
func (p *Pool) AcquireWait(ctx context.Context) (*Lease, error) {
	attempt := 0
	for {
		lease, err := p.Acquire()
		if err == nil {
			return lease, nil
		}

		wait := backoffWait(attempt)
		attempt++

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// selectBest ranks eligible sessions by the scoring formula of spec.md
// §4.5:
//
//	score = signal/99 + min((now-last_used)/3600, 1.0) - 0.1*error_count
//
// Ties (equal score) break toward the longer-idle session.
func selectBest(candidates []SessionHandle) SessionHandle {
	var best SessionHandle
	var bestScore float64
	var bestIdle time.Duration
	now := time.Now()

	for _, s := range candidates {
		if !s.Eligible() {
			continue
		}
		st := s.State()
		idle := now.Sub(st.LastUsed)
		if st.LastUsed.IsZero() {
			idle = time.Hour // never used: treat as fully idle, matches the min(...,1.0) cap
		}
		score := scoreOf(st, idle)

		if best == nil || score > bestScore || (score == bestScore && idle > bestIdle) {
			best = s
			bestScore = score
			bestIdle = idle
		}
	}
	return best
}

func scoreOf(st modem.State, idle time.Duration) float64 {
	idleFactor := idle.Hours()
	if idleFactor > 1.0 {
		idleFactor = 1.0
	}
	if idleFactor < 0 {
		idleFactor = 0
	}
	return float64(st.Signal)/99.0 + idleFactor - 0.1*float64(st.ErrorCount)
}
