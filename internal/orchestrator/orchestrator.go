// Package orchestrator implements the Lifecycle Orchestrator component
// (spec.md §4.8): it composes the modem pool, consumer pipeline and schema
// publisher, runs the strictly-ordered startup and reverse-ordered shutdown
// sequences, and supervises the background health-check task. No globals:
// every collaborator is a value constructed and threaded through explicitly
// (spec.md §9 "replace [singletons] with a single constructed orchestrator
// value").
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/echowing/smsgw/internal/bus"
	"github.com/echowing/smsgw/internal/config"
	"github.com/echowing/smsgw/internal/journal"
	"github.com/echowing/smsgw/internal/pool"
	"github.com/echowing/smsgw/internal/schema"
)

// Orchestrator owns the full set of collaborators for one process lifetime.
type Orchestrator struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pool.Pool
	pipeline  *bus.Pipeline
	journal   *journal.Journal
	publisher *schema.Publisher

	cancel     context.CancelFunc
	healthDone chan struct{}
	pipelineDone chan struct{}

	shutdownOnce sync.Once
}

// Deps holds the out-of-scope external collaborators the orchestrator needs
// but does not construct itself (spec.md §1): the bus consumer and the
// discovery-store KV client.
type Deps struct {
	Consumer bus.Consumer
	KVStore  schema.KVStore
}

// New composes the orchestrator from configuration and the out-of-scope
// external collaborators. It does not start anything; call Start.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	j, err := journal.Open(cfg.Name + ".journal.sqlite")
	if err != nil {
		return nil, errors.Wrap(err, "orchestrator: open journal")
	}

	p := pool.New(pool.Config{
		Patterns:    cfg.Modem.Patterns,
		BaudRate:    cfg.Modem.BaudRate,
		InitTimeout: cfg.Modem.TimeOut(),
		UsbVPid:     cfg.Modem.UsbVPid,
		Logger:      logger.With("component", "pool"),
	})

	pipeline := bus.New(deps.Consumer, p, j, bus.Config{
		DefaultCountryCode: cfg.Modem.CountryCode,
		Logger:             logger.With("component", "pipeline"),
	})

	publisher := schema.New(deps.KVStore, cfg.Consul.Base, cfg.Name)

	return &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		pool:      p,
		pipeline:  pipeline,
		journal:   j,
		publisher: publisher,
	}, nil
}

// Start runs the strictly-ordered startup sequence of spec.md §4.8: init
// pool → start health loop → start consumer → publish schema. Returns an
// error if pool initialization yields zero modems, a startup failure
// (spec.md §6 exit behavior).
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.logger.Info("orchestrator: initializing modem pool")
	if err := o.pool.Initialize(runCtx); err != nil {
		cancel()
		return errors.Wrap(err, "orchestrator: pool init")
	}
	if o.pool.Len() == 0 {
		cancel()
		return errors.New("orchestrator: no modems available after discovery")
	}

	o.healthDone = make(chan struct{})
	go func() {
		defer close(o.healthDone)
		o.pool.RunHealthLoop(runCtx)
	}()

	o.pipelineDone = make(chan struct{})
	go func() {
		defer close(o.pipelineDone)
		o.pipeline.Run(runCtx)
	}()

	o.logger.Info("orchestrator: publishing schema")
	if err := o.publisher.Publish(runCtx, o.cfg.Pulsar.Main, time.Now().Unix()); err != nil {
		o.logger.Warn("orchestrator: schema publish failed, continuing", "error", err)
	}

	return nil
}

// Shutdown runs the reverse-ordered shutdown sequence of spec.md §4.8:
// retract schema → stop consumer (drain in-flight or negative-ack) → cancel
// health loop → close pool. Idempotent.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var shutdownErr error
	o.shutdownOnce.Do(func() {
		o.logger.Info("orchestrator: shutting down")

		if err := o.publisher.Retract(ctx); err != nil {
			o.logger.Warn("orchestrator: schema retract failed", "error", err)
		}

		if o.cancel != nil {
			o.cancel()
		}
		waitOrTimeout(o.pipelineDone, 30*time.Second)
		waitOrTimeout(o.healthDone, 5*time.Second)

		if err := o.pool.Close(); err != nil {
			shutdownErr = errors.Wrap(err, "orchestrator: pool close")
		}
		if err := o.journal.Close(); err != nil {
			o.logger.Warn("orchestrator: journal close failed", "error", err)
		}
	})
	return shutdownErr
}

func waitOrTimeout(done chan struct{}, timeout time.Duration) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
