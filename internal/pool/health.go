package pool

import (
	"context"
	"time"

	"github.com/echowing/smsgw/internal/modem"
)

// healthInterval is the supervisory health-check cadence (spec.md §4.5
// Health loop).
const healthInterval = 30 * time.Second

// RunHealthLoop calls HealthCheck on every live session every 30s until ctx
// is cancelled. Sessions that transition to Faulted are evicted from the
// pool. Intended to run in its own goroutine, started by the orchestrator
// after pool initialization and cancelled as part of shutdown.
func (p *Pool) RunHealthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.healthCheckAll(ctx)
		}
	}
}

func (p *Pool) healthCheckAll(ctx context.Context) {
	p.mu.Lock()
	snapshot := make(map[string]SessionHandle, len(p.sessions))
	for port, s := range p.sessions {
		snapshot[port] = s
	}
	p.mu.Unlock()

	for port, s := range snapshot {
		if err := s.HealthCheck(ctx); err != nil {
			p.logger.Warn("pool: health check failed, evicting", "port", port, "error", err)
		}
	}

	p.evictFaulted()
}

func (p *Pool) evictFaulted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for port, s := range p.sessions {
		if s.Faulted() {
			s.Close()
			delete(p.sessions, port)
		}
	}
}
