package cmd

import (
	"context"
	"log"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/logger"
	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/outreach"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Write export log snapshots the tracker is missing back into the tracker",
	Run: func(cmd *cobra.Command, _ []string) {
		replay(cmd)
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().Bool("dry-run", false, "only list the jobs that would be written")
}

func replay(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	ctx := context.Background()

	st, err := openState(ctx, config, metrics.New(prometheus.NewRegistry()), logger)
	if err != nil {
		logger.Fatal("opening state", zap.Error(err), zap.String("state_dir", config.StateDir))
	}
	defer st.Close()

	pending, err := behind(ctx, st.sink, st.history)
	if err != nil {
		logger.Fatal("comparing tracker with export log", zap.Error(err))
	}

	slices.SortFunc(pending, func(a, b *outreach.JobRecord) int {
		return strings.Compare(a.JobID, b.JobID)
	})

	logger.Info("jobs behind the export log", zap.Int("count", len(pending)))

	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		for _, job := range pending {
			logger.Info("would replay", zap.String("job_id", job.JobID), zap.String("state", job.State.String()))
		}
		return
	}

	failed := 0
	for _, job := range pending {
		if err := st.sync.Upsert(ctx, job); err != nil {
			failed++
			logger.Error("replaying job", zap.String("job_id", job.JobID), zap.Error(err))
			continue
		}
		logger.Debug("replayed", zap.String("job_id", job.JobID), zap.String("state", job.State.String()))
	}

	logger.Info("replay finished", zap.Int("replayed", len(pending)-failed), zap.Int("failed", failed))
	if failed > 0 {
		logger.Fatal("tracker is still behind", zap.Int("failed", failed))
	}
}
