package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fleetworks/punchd/internal/capture"
	"github.com/fleetworks/punchd/internal/config"
	"github.com/fleetworks/punchd/internal/handlers"
	"github.com/fleetworks/punchd/internal/journal"
	"github.com/fleetworks/punchd/internal/publisher"
	"github.com/fleetworks/punchd/internal/ratelimit"
	"github.com/fleetworks/punchd/internal/server"
	"github.com/fleetworks/punchd/internal/service"
	"github.com/fleetworks/punchd/pkg/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return runServe(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cfg *config.Config) error {
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("punchd"))
	logging.SetDefault(logger)

	slog.Info("starting punchd",
		slog.Int("port", cfg.Server.Port),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("log_level", cfg.Logging.Level),
	)

	captures, err := capture.NewStore(cfg.Data.RawDir())
	if err != nil {
		return fmt.Errorf("open capture store: %w", err)
	}

	j, err := journal.Open(journal.Config{
		RecordPath:  cfg.Data.RecordPath(),
		TabularPath: cfg.Data.TabularPath(),
	})
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	// Rate limiter: advisory, so a missing redis degrades to no-op.
	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if cfg.Redis.Enabled && cfg.RateLimit.Enabled {
		rl, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		if err != nil {
			slog.Warn("redis rate limiter unavailable, continuing without",
				slog.String("error", err.Error()))
		} else {
			limiter = rl
			slog.Info("rate limiting enabled",
				slog.Int("requests", cfg.RateLimit.Requests),
				slog.String("window", cfg.RateLimit.Window.String()),
			)
		}
	}
	defer limiter.Close()

	// Downstream fan-out: best-effort, a missing broker is a warning.
	var pub *publisher.Publisher
	if cfg.NATS.Enabled {
		pub, err = publisher.New(publisher.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logger.Logger)
		if err != nil {
			slog.Warn("NATS unavailable, continuing without fan-out",
				slog.String("error", err.Error()))
			pub = nil
		} else {
			slog.Info("downstream fan-out enabled", slog.String("url", cfg.NATS.URL))
			defer pub.Close()
		}
	}

	var svcPublisher service.Publisher
	if pub != nil {
		svcPublisher = pub
	}
	coordinator := service.New(captures, j, svcPublisher, logger.Logger)
	reader := journal.NewReader(journal.Config{RecordPath: cfg.Data.RecordPath()})

	router := server.NewRouter(
		handlers.NewPushHandler(coordinator, limiter, logger),
		handlers.NewDiagHandler(captures, reader, logger),
		handlers.NewExportHandler(reader, logger),
		cfg.Auth.APIKey,
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	slog.Info("stopped")
	return nil
}
