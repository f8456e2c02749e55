package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/iast-gateway/internal/ast"
	"github.com/dohr-michael/iast-gateway/internal/config"
	"github.com/dohr-michael/iast-gateway/internal/emulator"
	"github.com/dohr-michael/iast-gateway/internal/emulator/stub"
	"github.com/dohr-michael/iast-gateway/internal/events"
	"github.com/dohr-michael/iast-gateway/internal/execution"
	"github.com/dohr-michael/iast-gateway/internal/gateway"
	"github.com/dohr-michael/iast-gateway/internal/heartbeat"
	"github.com/dohr-michael/iast-gateway/internal/persistence"
	"github.com/dohr-michael/iast-gateway/internal/scheduler"
	"github.com/dohr-michael/iast-gateway/internal/secrets"
	"github.com/dohr-michael/iast-gateway/internal/session"
)

// NewGatewayCommand returns the gateway subcommand.
func NewGatewayCommand() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Start the iastd terminal-automation gateway",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runGateway,
	}
}

func runGateway(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.WithDefaults()
	}

	logLevel := resolveLogLevel(cfg.Events.LogLevel)
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	if err := os.MkdirAll(config.IastPath(), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", config.IastPath(), err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Event bus
	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	// Execution-result persistence
	store, err := persistence.OpenSQLiteStore(cfg.Persistence.DSN)
	if err != nil {
		return fmt.Errorf("open persistence store: %w", err)
	}
	defer store.Close()

	// AST registry — populated from the compiled-in factories; the
	// declarative catalog in configs/asts.yaml is only loaded to log drift
	// against them.
	asts := ast.NewRegistry()
	if err := asts.Register(ast.NewPolicyLogAST); err != nil {
		return fmt.Errorf("register ast: %w", err)
	}
	if entries, err := ast.LoadCatalogFile(filepath.Join("configs", "asts.yaml")); err != nil {
		slog.Warn("ast catalog not loaded", "error", err)
	} else {
		for _, mismatch := range ast.ValidateCatalog(asts, entries) {
			slog.Warn("ast catalog drift", "error", mismatch)
		}
	}

	// Emulator factory. The 3270 wire client is out of scope here; the stub
	// emulator stands in until a real network facade is plugged in.
	newEmulator := func() emulator.Facade { return stub.New(stub.DefaultScript()) }

	// Session registry
	registry := session.New(
		cfg.Session.MaxSessions,
		time.Duration(cfg.Session.GracePeriodSeconds)*time.Second,
		bus,
		newEmulator,
	)

	// Execution engine
	runner := &execution.Runner{
		Registry:    asts,
		Store:       store,
		Bus:         bus,
		NewEmulator: newEmulator,
	}

	// Credential store, for the scheduler's unattended runs
	if err := secrets.GenerateIdentity(cfg.Secrets.KeyPath); err != nil {
		return fmt.Errorf("generate age identity: %w", err)
	}
	identity, err := secrets.LoadIdentity(cfg.Secrets.KeyPath)
	if err != nil {
		return fmt.Errorf("load age identity: %w", err)
	}
	credentials := secrets.NewCredentialStore(cfg.Secrets.VaultPath, identity, identity.Recipient())

	// Scheduler — cron/interval-triggered unattended AST runs
	var sched *scheduler.Scheduler
	if cfg.Scheduler.IsEnabled() {
		scheduleStore, err := scheduler.OpenScheduleStore(filepath.Join(config.IastPath(), "schedules.db"))
		if err != nil {
			return fmt.Errorf("open schedule store: %w", err)
		}
		defer scheduleStore.Close()

		sched = scheduler.New(scheduler.Config{
			Runner:      runner,
			Bus:         bus,
			Credentials: credentials,
			Store:       scheduleStore,
		})
		sched.Start()
		defer sched.Stop()
	}

	// Heartbeat writer
	hbWriter := heartbeat.NewWriter(filepath.Join(config.IastPath(), "heartbeat.json"))
	hbWriter.Start()
	defer hbWriter.Stop()

	server := gateway.NewServer(bus, registry, asts, runner, sched, cfg.Gateway.Host, cfg.Gateway.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func resolveLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
