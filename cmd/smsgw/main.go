package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echowing/smsgw/internal/bus"
	"github.com/echowing/smsgw/internal/config"
	"github.com/echowing/smsgw/internal/orchestrator"
	"github.com/echowing/smsgw/internal/schema"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	consumer, err := newConsumer(cfg)
	if err != nil {
		logger.Error("failed to construct bus consumer", "error", err)
		os.Exit(1)
	}

	kv := schema.NewConsulKV(cfg.Consul.Scheme, cfg.Consul.Host, cfg.Consul.Port, cfg.Consul.Token)

	orch, err := orchestrator.New(cfg, orchestrator.Deps{Consumer: consumer, KVStore: kv}, logger)
	if err != nil {
		logger.Error("failed to construct orchestrator", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sms gateway", "service", cfg.Name)
	if err := orch.Start(ctx); err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newConsumer is out of scope (spec.md §1): no bus client library appears
// anywhere in this project's dependency corpus, so there is nothing to wire
// a concrete bus.Consumer to. A real deployment supplies one here.
func newConsumer(cfg *config.Config) (bus.Consumer, error) {
	return nil, errNoConsumerConfigured
}

var errNoConsumerConfigured = &notConfiguredError{"no bus.Consumer implementation is wired; supply one in newConsumer"}

type notConfiguredError struct{ msg string }

func (e *notConfiguredError) Error() string { return e.msg }
