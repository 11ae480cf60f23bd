package cmd

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/logger"
	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/outreach"
)

var followUpCmd = &cobra.Command{
	Use:   "followup",
	Short: "Send the follow-up message to recruiters contacted a while ago",
	Run: func(cmd *cobra.Command, _ []string) {
		followUp(cmd)
	},
}

func init() {
	rootCmd.AddCommand(followUpCmd)

	followUpCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before sending a message")
	followUpCmd.Flags().Int("days-wait", 0, "days since the first message before following up")
}

// noLookup stands in when no source is configured. Follow-up rows already
// carry their recruiter.
type noLookup struct{}

func (noLookup) Resolve(context.Context, *outreach.JobRecord) (*outreach.Recruiter, error) {
	return nil, errors.New("recruiter lookup is not used by follow-ups")
}

func followUp(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if days, _ := cmd.Flags().GetInt("days-wait"); days > 0 {
		config.FollowUp.DaysWait = days
	}
	if yes, _ := cmd.Flags().GetBool("auto-approve"); yes {
		config.AutoApprove = true
	}
	// lookup sources are not needed, the rows carry their recruiter
	config.Lookup.Primary = nil

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New(prometheus.NewRegistry())

	st, err := openState(ctx, config, m, logger)
	if err != nil {
		logger.Fatal("opening state", zap.Error(err), zap.String("state_dir", config.StateDir))
	}
	defer st.Close()

	rows, err := st.sink.List(ctx)
	if err != nil {
		logger.Fatal("listing tracker rows", zap.Error(err))
	}

	machine, closeChannel, err := newMachine(ctx, config, uuid.New().String(), st, m, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}
	defer closeChannel()

	stopOnSignal(machine, logger)

	sum := machine.FollowUp(ctx, rows)
	report(ctx, config, sum, logger)
}
