package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"popsies-quiz-service/internal/config"
)

// NewSweepCmd cancels Waiting sessions that were never started, once.
func NewSweepCmd(configPath *string) *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Cancel idle sessions that never started",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			d, err := buildDeps(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			if olderThan <= 0 {
				olderThan = config.TTLDuration(cfg.Session.IdleTTL, 30*time.Minute)
			}
			n, err := d.service.CancelIdleSessions(cmd.Context(), olderThan, limit)
			if err != nil {
				return err
			}
			d.logger.Info("sweep finished", zap.Int("cancelled", n), zap.Duration("older_than", olderThan))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "idle age before a waiting session is cancelled (defaults to session.idleTTL)")
	cmd.Flags().IntVar(&limit, "limit", sweepBatch, "maximum sessions to cancel in one run")
	return cmd
}
