package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/marmos91/dittovfs/pkg/jobs"
	"github.com/marmos91/dittovfs/pkg/lifecycle"
	"github.com/marmos91/dittovfs/pkg/multipart"
	"github.com/marmos91/dittovfs/pkg/syncer"
	"github.com/marmos91/dittovfs/pkg/transfer"
	"golang.org/x/sync/errgroup"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  dittovfs [flags]          run the server
  dittovfs init [-force]    write a default config file

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		runInit(os.Args[2:])
		return
	}

	configPath := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittovfs/config.yaml)")
	logLevel := flag.String("log-level", "", "Override log level (DEBUG, INFO, WARN, ERROR)")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		log.Fatalf("Failed to configure logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Server error: %v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path, err := config.InitConfig(*force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration written to %s\n", path)
}

func run(ctx context.Context, cfg *config.Config) error {
	logger.Info("DittoVFS - virtual file system over remote storage")
	logger.Info("Log level: %s, store: %s", cfg.Logging.Level, cfg.Store.Type)

	catalog, err := config.CreateStore(ctx, &cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logger.Warn("Failed to close catalog store: %v", err)
		}
	}()

	cipher, err := config.CreateCipher(&cfg.Credentials)
	if err != nil {
		return err
	}

	registry, err := config.InitializeRegistry()
	if err != nil {
		return err
	}

	signer, err := lifecycle.NewStateSigner(cfg.OAuth.StateSecret, cfg.OAuth.StateTTL)
	if err != nil {
		return err
	}

	metricsResult := config.InitializeMetrics(cfg)

	// The queue handler needs the engine, the engine needs the manager, and the
	// manager needs the queue: build the queue around a late-bound engine.
	var engine *syncer.Engine
	queue := jobs.NewQueue(func(ctx context.Context, job jobs.Job) error {
		switch job.Kind {
		case jobs.KindSyncProvider:
			opts := syncer.DefaultSyncOptions()
			opts.JobID = job.ID
			opts.UserID = job.UserID
			opts.PruneDeleted = job.PruneDeleted
			_, err := engine.SyncProvider(ctx, job.ProviderID, opts)
			return err
		default:
			return fmt.Errorf("unknown job kind %q", job.Kind)
		}
	}, cfg.Sync.QueueWorkers, cfg.Sync.QueueSize)

	manager := lifecycle.NewManager(catalog, registry, cipher, signer,
		lifecycle.WithJobQueue(queue),
		lifecycle.WithCallbackURL(cfg.OAuth.CallbackURL),
	)
	engine = syncer.NewEngine(catalog, manager,
		syncer.WithMetrics(metricsResult.SyncMetrics),
		syncer.WithPageSize(cfg.Sync.PageSize),
		syncer.WithProgressInterval(cfg.Sync.ProgressInterval),
	)
	manager.SetSyncRunner(engine)

	orchestrator := multipart.NewOrchestrator(manager,
		multipart.WithSessionTTL(cfg.Multipart.SessionTTL),
	)
	router := transfer.NewRouter(catalog, manager, metricsResult.TransferMetrics)

	mux := http.NewServeMux()
	mux.Handle("GET /download/{fileID}", transfer.DownloadHandler(router))
	mux.Handle("GET /oauth/callback", lifecycle.CallbackHandler(manager))

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Jobs outlive the signal; Stop drains them within the shutdown timeout.
	queue.Start(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening on %s", cfg.Server.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if metricsResult.Server != nil {
		g.Go(func() error {
			return metricsResult.Server.Start(gctx)
		})
	}

	g.Go(func() error {
		sweepSessions(gctx, orchestrator, cfg.Multipart.SweepInterval)
		return nil
	})

	// Shutdown: stop accepting requests, drain the queue, then abort every
	// remaining multipart session.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, initiating graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
		if err := queue.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("job queue shutdown: %w", err))
		}
		// Sessions live in memory and die with the process; abort them all.
		orchestrator.Sweep(shutdownCtx, time.Now().Add(cfg.Multipart.SessionTTL+time.Second))
		return errors.Join(errs...)
	})

	return g.Wait()
}

// sweepSessions aborts idle multipart sessions until ctx is done.
func sweepSessions(ctx context.Context, o *multipart.Orchestrator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			o.Sweep(ctx, now)
		}
	}
}
