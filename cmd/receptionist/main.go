package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mesieou/skedy-ai-sub002/internal/dotenv"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/bridge"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/config"
	"github.com/mesieou/skedy-ai-sub002/pkg/agent/session"
	"github.com/mesieou/skedy-ai-sub002/pkg/gateway"
	"github.com/mesieou/skedy-ai-sub002/pkg/notify"
	"github.com/mesieou/skedy-ai-sub002/pkg/store"
	"github.com/mesieou/skedy-ai-sub002/pkg/telemetry"
)

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pg.Close()
	if err := store.Migrate(ctx, pg.Pool()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	durable, err := store.NewRedisSessionStore(ctx, store.RedisSessionStoreParams{
		URL: cfg.RedisURL,
		TTL: cfg.SessionTTL,
	})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer durable.Close()

	reporter := &telemetry.LogReporter{Logger: logger}

	var notifier store.NotificationSender
	if cfg.StripeAPIKey != "" {
		notifier, err = notify.NewStripeNotifier(cfg.StripeAPIKey, logger)
		if err != nil {
			return fmt.Errorf("stripe notifier: %w", err)
		}
	} else {
		logger.Warn("SKEDY_STRIPE_API_KEY not set, payment links disabled")
	}

	var gate session.Gate
	switch cfg.ToolPolicy {
	case "stage":
		gate = session.NewStagePolicy(pg, pg, logger)
	default:
		gate = session.NewRequestPolicy(pg, pg, logger)
	}

	registry := session.NewRegistry(durable, logger)
	registry.RemovalGrace = cfg.RemovalGrace

	dispatcher := session.NewDispatcher(gate, reporter, logger)
	handlers := &session.Handlers{
		Services:       pg,
		Quotes:         &store.RateQuoteEngine{},
		Bookings:       pg,
		Customers:      pg,
		Notifier:       notifier,
		Gate:           gate,
		Reporter:       reporter,
		MatchThreshold: cfg.MatchThreshold,
		Logger:         logger,
	}
	handlers.RegisterAll(dispatcher)

	pool, err := session.NewCredentialPool(cfg.OpenAIKeys)
	if err != nil {
		return fmt.Errorf("credential pool: %w", err)
	}

	receptionist, err := agent.New(agent.Params{
		Businesses: pg,
		Services:   pg,
		Catalog:    pg,
		Prompts:    pg,
		Durable:    durable,
		Registry:   registry,
		Gate:       gate,
		Dispatcher: dispatcher,
		Pool:       pool,
		Bridge: bridge.Config{
			RealtimeURL:      cfg.RealtimeURL,
			Model:            cfg.Model,
			Voice:            cfg.Voice,
			HandshakeTimeout: cfg.HandshakeTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		},
		Reporter: reporter,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("build receptionist: %w", err)
	}

	ready := func() bool {
		return pg.Pool().Ping(context.Background()) == nil
	}
	gw := gateway.New(cfg, receptionist, ready, logger)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting receptionist",
		"addr", cfg.Addr,
		"model", cfg.Model,
		"tool_policy", cfg.ToolPolicy,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer drainCancel()
	if err := registry.Drain(drainCtx); err != nil {
		logger.Warn("session drain incomplete", "error", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("receptionist stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "receptionist: %v\n", err)
		return 1
	}

	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(stderr, "receptionist: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
