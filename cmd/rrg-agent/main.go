// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sarvex/rrg/action/catalog"
	"github.com/sarvex/rrg/action/sysinfo"
	"github.com/sarvex/rrg/lib/budget"
	"github.com/sarvex/rrg/lib/clock"
	"github.com/sarvex/rrg/lib/config"
	"github.com/sarvex/rrg/lib/journal"
	"github.com/sarvex/rrg/lib/process"
	"github.com/sarvex/rrg/lib/version"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
	"github.com/sarvex/rrg/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "path to the YAML configuration file (overrides RRG_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("rrg-agent")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// loadConfig resolves the configuration source: an explicit --config
// path wins, otherwise RRG_CONFIG or the built-in defaults apply.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// serve wires the agent together and runs the receive loop until the
// context is cancelled or the daemon connection fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clk := clock.Real()

	registry, err := catalog.Build(cfg.Actions.Enabled)
	if err != nil {
		return err
	}

	budgets, err := budget.NewTable(cfg.Session.FallbackBudget(), budget.DefaultProfiles(), cfg.Actions.Budgets)
	if err != nil {
		return err
	}

	dispatcherConfig := session.DispatcherConfig{
		Catalog:           registry,
		Budgets:           budgets,
		HeartbeatInterval: time.Duration(cfg.Session.HeartbeatInterval),
		HeartbeatTimeout:  time.Duration(cfg.Session.HeartbeatTimeout),
		PollInterval:      time.Duration(cfg.Session.PollInterval),
		Clock:             clk,
		Logger:            logger,
	}

	if cfg.Journal.Path != "" {
		if err := cfg.EnsurePaths(); err != nil {
			return err
		}
		j, err := journal.Open(journal.Config{
			Path:   cfg.Journal.Path,
			Clock:  clk,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		defer j.Close()
		if err := recoverJournal(ctx, j, time.Duration(cfg.Journal.Retention), logger); err != nil {
			return err
		}
		go pruneLoop(ctx, j, clk, time.Duration(cfg.Journal.Retention), logger)
		dispatcherConfig.Journal = j
	}

	conn, err := transport.Dial(cfg.Transport.Socket, time.Duration(cfg.Transport.DialTimeout), logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	dispatcherConfig.Sender = conn

	dispatcher, err := session.NewDispatcher(dispatcherConfig)
	if err != nil {
		return err
	}

	if err := conn.SendStartup(protocol.StartupInfo{
		AgentVersion:   version.Info(),
		BootTimeUnixMS: sysinfo.BootTimeUnixMS(),
		Actions:        registry.Names(),
	}); err != nil {
		return fmt.Errorf("startup announcement: %w", err)
	}

	logger.Info("agent running",
		"socket", cfg.Transport.Socket,
		"actions", registry.Len(),
		"version", version.Short(),
	)

	go dispatcher.Watch(ctx)

	var workers sync.WaitGroup
	receiveErr := receiveLoop(ctx, conn, dispatcher, cfg.Session.MaxConcurrent, &workers)

	// Revoke anything still running, then wait for the handlers to
	// observe cancellation and emit their terminal statuses.
	logger.Info("shutting down", "in_flight", dispatcher.InFlight())
	dispatcher.CancelAll(errors.New("agent shutting down"))
	workers.Wait()

	if receiveErr != nil && !errors.Is(receiveErr, context.Canceled) {
		return fmt.Errorf("transport receive: %w", receiveErr)
	}
	logger.Info("agent stopped")
	return nil
}

// receiveLoop reads daemon frames and hands requests to worker
// goroutines. At most maxConcurrent handlers run at once; excess
// requests queue on the slot channel in arrival order. Cancel frames
// act on the dispatcher directly so a revocation is never stuck
// behind a full queue.
func receiveLoop(ctx context.Context, conn *transport.Conn, dispatcher *session.Dispatcher, maxConcurrent int, workers *sync.WaitGroup) error {
	slots := make(chan struct{}, maxConcurrent)
	for {
		inbound, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		switch {
		case inbound.Request != nil:
			request := *inbound.Request
			workers.Add(1)
			go func() {
				defer workers.Done()
				// Queued requests still run after ctx is cancelled:
				// the session sees the dead context immediately and
				// terminates with a cancelled status instead of
				// vanishing without one.
				slots <- struct{}{}
				defer func() { <-slots }()
				dispatcher.Handle(ctx, request)
			}()
		case inbound.Cancel != nil:
			dispatcher.Cancel(inbound.Cancel.SessionID, errors.New("cancelled by controller"))
		}
	}
}

// recoverJournal closes out rows left open by a previous run and
// prunes entries past the retention window.
func recoverJournal(ctx context.Context, j *journal.Journal, retention time.Duration, logger *slog.Logger) error {
	swept, err := j.SweepUnfinished(ctx, "agent terminated mid-request")
	if err != nil {
		return fmt.Errorf("journal recovery: %w", err)
	}
	for _, row := range swept {
		logger.Warn("request lost to agent restart",
			"session_id", row.SessionID,
			"action", row.Action,
			"received_unix_ms", row.ReceivedUnixMS,
		)
	}
	pruned, err := j.Prune(ctx, retention)
	if err != nil {
		return fmt.Errorf("journal prune: %w", err)
	}
	if pruned > 0 {
		logger.Info("journal pruned", "rows", pruned)
	}
	return nil
}

// pruneLoop deletes expired journal rows once a day. Startup pruning
// already ran, so the first tick is a day out.
func pruneLoop(ctx context.Context, j *journal.Journal, clk clock.Clock, retention time.Duration, logger *slog.Logger) {
	ticker := clk.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := j.Prune(ctx, retention)
			if err != nil {
				logger.Error("journal prune failed", "error", err)
				continue
			}
			if pruned > 0 {
				logger.Info("journal pruned", "rows", pruned)
			}
		}
	}
}
