// Package pool implements the Modem Pool component (spec.md §4.5): glob
// discovery of candidate serial ports, bounded-time parallel initialization,
// SIM-identity deduplication, scoring-based lease arbitration and a
// supervisory health loop.
package pool

import (
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/echowing/smsgw/internal/modem"
)

// Config parameterizes discovery and initialization.
type Config struct {
	Patterns    []string      // glob patterns, e.g. /dev/ttyUSB*
	BaudRate    int
	InitTimeout time.Duration // per-port probe budget, default 30s
	UsbVPid     []string      // VID:PID pairs eligible for usbreset before probing
	Logger      *slog.Logger
}

func (c *Config) setDefaults() {
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pool owns the set of live modem sessions and arbitrates exclusive leases
// over them (spec.md §4.5). The session map is guarded by a single mutex;
// reads during acquire copy the session set under the lock and release it
// before touching a session (spec.md §5).
type Pool struct {
	mu       sync.Mutex
	sessions map[string]SessionHandle // keyed by port
	cfg      Config
	logger   *slog.Logger
}

// New constructs an empty pool. Call Initialize to discover and probe ports.
func New(cfg Config) *Pool {
	cfg.setDefaults()
	return &Pool{
		sessions: make(map[string]SessionHandle),
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// NewWithSessions constructs a pool already populated with the given
// sessions, bypassing discovery. Exercised by this package's own tests and
// by other packages' tests that need a pool preloaded with a fake
// SessionHandle rather than a real serial-backed session.
func NewWithSessions(cfg Config, sessions map[string]SessionHandle) *Pool {
	p := New(cfg)
	for port, s := range sessions {
		p.sessions[port] = s
	}
	return p
}

// discoverPorts expands cfg.Patterns, sorts and deduplicates the result
// (spec.md §4.5 Discovery).
func discoverPorts(patterns []string) []string {
	seen := make(map[string]bool)
	var ports []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				ports = append(ports, m)
			}
		}
	}
	sort.Strings(ports)
	return ports
}

// Initialize discovers candidate ports, probes each within a bounded time
// budget, and retains the sessions that come up Ready. A port that fails to
// open or configure is logged and omitted, never fatal to the pool as a
// whole (spec.md §4.5 Parallel initialization). SIM-sharing sessions are
// then deduplicated, keeping the stronger signal (spec.md §4.5 SIM
// deduplication, literal scenario 6).
func (p *Pool) Initialize(ctx context.Context) error {
	resetConfiguredAdapters(p.cfg.UsbVPid, p.logger)

	ports := discoverPorts(p.cfg.Patterns)
	if len(ports) == 0 {
		p.logger.Warn("pool: no candidate ports found", "patterns", p.cfg.Patterns)
		return nil
	}

	var mu sync.Mutex
	sessions := make(map[string]SessionHandle, len(ports))

	g, gctx := errgroup.WithContext(ctx)
	for _, port := range ports {
		port := port
		g.Go(func() error {
			s, err := probe(gctx, port, p.cfg)
			if err != nil {
				p.logger.Warn("pool: probe failed, skipping port", "port", port, "error", err)
				return nil
			}
			mu.Lock()
			sessions[port] = s
			mu.Unlock()
			return nil
		})
	}
	// probe failures are logged and swallowed inside each goroutine, which
	// always returns nil, so g.Wait returns nil; a cancelled ctx shows up
	// only as failed probes.
	if err := g.Wait(); err != nil {
		return err
	}

	p.mu.Lock()
	p.sessions = sessions
	p.mu.Unlock()

	p.dedupeBySIM()
	return nil
}

// probe performs a single port's open+configure within cfg.InitTimeout.
func probe(ctx context.Context, port string, cfg Config) (*modem.Session, error) {
	pctx, cancel := context.WithTimeout(ctx, cfg.InitTimeout)
	defer cancel()

	s, err := modem.Open(pctx, modem.Config{Port: port, BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, err
	}
	if err := s.Configure(pctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// dedupeBySIM closes every session but the strongest-signal one for each
// IMSI seen more than once (spec.md §4.5, literal scenario 6).
func (p *Pool) dedupeBySIM() {
	p.mu.Lock()
	defer p.mu.Unlock()

	bestForIMSI := make(map[string]SessionHandle)
	for _, s := range p.sessions {
		imsi := s.Descriptor().IMSI
		if imsi == "" {
			continue
		}
		cur, ok := bestForIMSI[imsi]
		if !ok || s.State().Signal > cur.State().Signal {
			bestForIMSI[imsi] = s
		}
	}
	for port, s := range p.sessions {
		imsi := s.Descriptor().IMSI
		if imsi == "" {
			continue
		}
		if bestForIMSI[imsi] != s {
			s.Close()
			delete(p.sessions, port)
		}
	}
}

// resetConfiguredAdapters shells out to usbreset for each VID:PID pair, best
// effort. It is a no-op (logged at debug) when the utility is absent, per
// spec.md §9's open question on this point.
func resetConfiguredAdapters(vidPids []string, logger *slog.Logger) {
	if len(vidPids) == 0 {
		return
	}
	path, err := exec.LookPath("usbreset")
	if err != nil {
		logger.Debug("pool: usbreset not available, skipping adapter reset")
		return
	}
	for _, vp := range vidPids {
		cmd := exec.Command(path, vp)
		if err := cmd.Run(); err != nil {
			logger.Warn("pool: usbreset failed", "vid_pid", vp, "error", err)
		}
	}
}

// Len reports the number of live sessions currently held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Close shuts down every session concurrently and clears the set (spec.md
// §4.5 Shutdown). Safe to call once; subsequent acquirers see an empty pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]SessionHandle)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s SessionHandle) {
			defer wg.Done()
			s.Close()
		}(s)
	}
	wg.Wait()
	return nil
}
