package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rivet-dev/actor-core/internal/actor"
	"github.com/rivet-dev/actor-core/internal/builtin"
	"github.com/rivet-dev/actor-core/internal/config"
	"github.com/rivet-dev/actor-core/internal/httpapi"
	"github.com/rivet-dev/actor-core/internal/logging"
	"github.com/rivet-dev/actor-core/internal/manager"
	"github.com/rivet-dev/actor-core/internal/persist"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "rivet-runner",
		Short: "Actor runner — manager gateway and resident actor runtime in one process",
		Long: `rivet-runner serves both the manager HTTP surface (actor directory,
runner bookkeeping) and the actor HTTP surface (connect/action/raw
endpoints) out of a single process, with a pluggable memory or SQL
storage backend.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())
	config.RegisterFlags(root, cfg)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rivet-runner %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.Build(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	runnerID := cfg.RunnerID
	if runnerID == "" {
		runnerID = uuid.NewString()
	}
	advertiseAddr := cfg.AdvertiseAddr
	if advertiseAddr == "" {
		advertiseAddr = "http://localhost" + cfg.HTTPAddr
	}

	logger.Info("starting rivet runner",
		zap.String("version", version),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("runner_id", runnerID),
		zap.String("advertise_addr", advertiseAddr),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Storage ---
	storageDriver, directoryDriver, closeStorage, err := openStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer closeStorage()

	store := persist.NewStore(storageDriver)

	// --- 2. Actor definitions ---
	definitions := map[string]*actor.Definition{
		"counter": builtin.CounterDefinition(),
	}
	actorNames := make([]string, 0, len(definitions))
	for name := range definitions {
		actorNames = append(actorNames, name)
	}

	lookup := func(actorID string) (*actor.Definition, bool) {
		name, ok, err := directoryDriver.LookupByID(context.Background(), actorID)
		if err != nil || !ok {
			return nil, false
		}
		def, ok := definitions[name]
		return def, ok
	}

	// --- 3. Runtime ---
	timeouts := actor.DefaultTimeouts()
	runtime, err := actor.NewRuntime(store, timeouts, lookup, logger)
	if err != nil {
		return fmt.Errorf("failed to build actor runtime: %w", err)
	}
	if err := runtime.Start(ctx); err != nil {
		return fmt.Errorf("failed to start actor runtime: %w", err)
	}
	defer runtime.Shutdown(context.Background())

	// --- 4. Manager gateway ---
	directory := manager.NewDirectory(directoryDriver)
	runnerHeartbeatTimeout := time.Duration(cfg.RunnerHeartbeatTimeout) * time.Second
	if runnerHeartbeatTimeout <= 0 {
		runnerHeartbeatTimeout = manager.DefaultRunnerHeartbeatTimeout
	}
	runners := manager.NewRunnerRegistry(runnerHeartbeatTimeout, logger)

	sweepStop := make(chan struct{})
	go runners.SweepLoop(sweepStop)
	defer close(sweepStop)

	// This process always owns every actor it resolves locally, so register
	// itself once up front rather than waiting on a remote heartbeat call.
	runners.Heartbeat(runnerID, advertiseAddr, nil)

	gateway := manager.NewGateway(directory, runners, runtime, runnerID, logger)

	// --- 5. HTTP server ---
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Gateway:        gateway,
		ActorNames:     actorNames,
		ClientEndpoint: cfg.ClientEndpoint,
		AuthToken:      cfg.AuthToken,
		Logger:         logger,
	})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down rivet runner")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("rivet runner stopped")
	return nil
}

// openStorage builds the StorageDriver/DirectoryDriver pair cfg.DBDriver
// names. Both "memory" and SQL drivers implement persist.DirectoryDriver as
// well as persist.StorageDriver, so one instance backs both roles.
func openStorage(cfg *config.Config, logger *zap.Logger) (persist.StorageDriver, persist.DirectoryDriver, func(), error) {
	if cfg.DBDriver == "memory" {
		driver := persist.NewMemoryDriver()
		return driver, driver, func() {}, nil
	}

	driver, err := persist.NewSQLDriver(persist.SQLConfig{
		Driver:   cfg.DBDriver,
		DSN:      cfg.DBDSN,
		Logger:   logger,
		LogLevel: logging.GORMLevel(cfg.LogLevel),
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return driver, driver, func() {}, nil
}
