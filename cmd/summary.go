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

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Report the tracked jobs per state",
	Run: func(cmd *cobra.Command, _ []string) {
		summary(cmd)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringP("state", "s", "", "list the jobs in the given state")
}

func summary(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	var only outreach.State
	if name, _ := cmd.Flags().GetString("state"); name != "" {
		only, err = outreach.ParseState(strings.ToUpper(name))
		if err != nil {
			logger.Fatal("parsing state flag", zap.Error(err))
		}
	}

	ctx := context.Background()

	st, err := openState(ctx, config, metrics.New(prometheus.NewRegistry()), logger)
	if err != nil {
		logger.Fatal("opening state", zap.Error(err), zap.String("state_dir", config.StateDir))
	}
	defer st.Close()

	rows, err := st.sink.List(ctx)
	if err != nil {
		logger.Fatal("listing tracker rows", zap.Error(err))
	}

	counts := make(map[outreach.State]int)
	for _, row := range rows {
		counts[row.State]++
	}

	fields := []zap.Field{zap.Int("total", len(rows))}
	for _, s := range outreach.States {
		if counts[s] > 0 {
			fields = append(fields, zap.Int(strings.ToLower(s.String()), counts[s]))
		}
	}

	pending, err := behind(ctx, st.sink, st.history)
	if err != nil {
		logger.Fatal("comparing tracker with export log", zap.Error(err))
	}
	ids := make([]string, 0, len(pending))
	for _, job := range pending {
		ids = append(ids, job.JobID)
	}
	slices.Sort(ids)
	fields = append(fields, zap.Strings("sync_pending", ids))

	logger.Info("tracker summary", fields...)

	if only == "" {
		return
	}

	for _, row := range rows {
		if row.State != only {
			continue
		}
		fields := []zap.Field{
			zap.String("job_id", row.JobID),
			zap.String("company", row.Company),
			zap.String("title", row.Title),
			zap.Int("attempts", row.Attempts),
		}
		if row.Recruiter != nil {
			fields = append(fields, zap.String("recruiter", row.Recruiter.Name), zap.String("contact", row.Recruiter.ContactChannel))
		}
		if row.LastError != "" {
			fields = append(fields, zap.String("last_error", row.LastError))
		}
		logger.Info("job", fields...)
	}
}
