package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"popsies-quiz-service/internal/app"
	"popsies-quiz-service/internal/config"
	"popsies-quiz-service/internal/telemetry"
	transport "popsies-quiz-service/internal/transport/http"
)

const sweepBatch = 100

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, d.logger); err != nil {
			return err
		}
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			d.logger.Warn("flush traces", zap.Error(err))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      transport.NewRouter(d.service, d.logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.logger.Info("starting quiz service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if interval := config.TTLDuration(cfg.Session.SweepInterval, 0); interval > 0 {
		idleTTL := config.TTLDuration(cfg.Session.IdleTTL, 30*time.Minute)
		g.Go(func() error {
			runSweeper(gctx, d.service, d.logger, interval, idleTTL)
			return nil
		})
	}
	return g.Wait()
}

// runSweeper cancels idle Waiting sessions until ctx ends.
func runSweeper(ctx context.Context, service *app.SessionService, logger *zap.Logger, interval, idleTTL time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := service.CancelIdleSessions(ctx, idleTTL, sweepBatch); err != nil && ctx.Err() == nil {
				logger.Warn("idle session sweep failed", zap.Error(err))
			}
		}
	}
}
