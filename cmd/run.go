package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/filtering"
	"github.com/spigell/recruiter-outreach/internal/intake"
	"github.com/spigell/recruiter-outreach/internal/logger"
	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/notify"
	"github.com/spigell/recruiter-outreach/internal/outreach"
	"github.com/spigell/recruiter-outreach/internal/pipeline"
	"github.com/spigell/recruiter-outreach/internal/tracker"
	"github.com/spigell/recruiter-outreach/internal/utils"
)

const (
	PromptYes      = "Yes"
	PromptNo       = "No"
	PromptYesToAll = "Yes to all"
	PromptStop     = "Stop"

	previewLength = 400
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Resolve recruiters for applied jobs, message them and track the result",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("input", "i", "", "applied jobs stream (.jsonl, .json, .txt with urls or - for stdin)")
	runCmd.Flags().BoolP("include-tracked", "f", false, "keep jobs already finished in the tracker in the filter step (they are still never reprocessed)")
	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before sending a message")
	runCmd.Flags().StringP("exclude-file", "e", "", "file with jobs to exclude, declined jobs are appended to it")
	runCmd.Flags().Int("workers", 0, "records processed at the same time")

	viper.BindPFlag("input", runCmd.Flags().Lookup("input"))
	viper.BindPFlag("auto-approve", runCmd.Flags().Lookup("auto-approve"))
	viper.BindPFlag("exclude-file", runCmd.Flags().Lookup("exclude-file"))
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		config.Workers = workers
	}

	runID := uuid.New().String()
	logger.Info("starting the recruiter-outreach", zap.String("version", version), zap.String("run_id", runID))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	if config.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, config.MetricsAddr, registry, logger); err != nil {
				logger.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	records, err := intake.Load(config.Input)
	if err != nil {
		logger.Fatal("reading applied jobs", zap.Error(err), zap.String("input", config.Input))
	}

	logger.Info("read applied jobs", zap.Int("count", len(records)))

	if config.Lookup.Primary == nil {
		logger.Fatal("lookup.primary is required to resolve recruiters")
	}

	st, err := openState(ctx, config, m, logger)
	if err != nil {
		logger.Fatal("opening state", zap.Error(err), zap.String("state_dir", config.StateDir))
	}
	defer st.Close()

	filters := prepareFilters(cmd, config, st.sink, logger)
	records, err = filters.RunFilters(ctx, records)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	if len(records) == 0 {
		logger.Info("exiting", zap.String("reason", "no jobs left after filters"))
		return
	}

	machine, closeChannel, err := newMachine(ctx, config, runID, st, m, logger)
	if err != nil {
		logger.Fatal("building the pipeline", zap.Error(err))
	}
	defer closeChannel()

	stopOnSignal(machine, logger)

	sum := machine.Run(ctx, records)
	report(ctx, config, sum, logger)
}

func newMachine(ctx context.Context, config *Config, runID string, st *state, m *metrics.Metrics, log *zap.Logger) (*pipeline.Machine, func(), error) {
	var resolver pipeline.Resolver = noLookup{}
	if config.Lookup.Primary != nil {
		r, err := newResolver(ctx, config, m, log)
		if err != nil {
			return nil, nil, err
		}
		resolver = r
	}

	composer, err := newComposer(config)
	if err != nil {
		return nil, nil, err
	}

	channel, closer, err := newChannel(ctx, config, log)
	if err != nil {
		return nil, nil, err
	}

	closeChannel := func() {
		if err := closer(); err != nil {
			log.Warn("closing delivery channel", zap.Error(err))
		}
	}

	contacted, err := st.sink.List(ctx)
	if err != nil {
		log.Warn("listing tracker rows, recruiters messaged earlier are only known from the export log", zap.Error(err))
	}

	var approver pipeline.Approver
	if !config.AutoApprove {
		approver = &promptApprover{excludeFile: config.ExcludeFile, logger: log}
	}

	machine, err := pipeline.New(&pipeline.Config{
		RunID:       runID,
		TemplateID:  config.TemplateID,
		Workers:     config.Workers,
		MaxMessages: config.MaxMessagesPerRun,
		FollowUp:    config.FollowUp,
	}, &pipeline.Deps{
		Resolver:  resolver,
		Composer:  composer,
		Channel:   channel,
		Tracker:   st.sync,
		Export:    st.export,
		Approver:  approver,
		History:   st.history,
		Contacted: contacted,
		Policy:    newPolicy(config),
		Logger:    log,
		Metrics:   m,
	})
	if err != nil {
		closeChannel()
		return nil, nil, err
	}

	return machine, closeChannel, nil
}

// stopOnSignal stops the machine on the first interrupt. Records in flight
// finish their current step.
func stopOnSignal(machine *pipeline.Machine, log *zap.Logger) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-signals
		log.Warn("stopping the run", zap.String("signal", sig.String()))
		machine.Stop()
		signal.Stop(signals)
	}()
}

func report(ctx context.Context, config *Config, sum *pipeline.Summary, log *zap.Logger) {
	log.Info("run finished", sum.Fields()...)

	for id, reason := range sum.Failed {
		log.Warn("job failed", zap.String(logger.FieldJobID, id), zap.String("error", reason))
	}

	if len(sum.SyncPending) > 0 {
		log.Warn("messages were sent but the tracker is behind",
			zap.Strings("sync_pending", sum.SyncPending),
			zap.String("hint", "run the replay command once the tracker is reachable"),
		)
	}

	if config.Notify.SNS == nil {
		return
	}

	publisher, err := notify.NewSNS(ctx, *config.Notify.SNS, log.Named("notify"))
	if err != nil {
		log.Error("building sns publisher", zap.Error(err))
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := publisher.Notify(notifyCtx, sum); err != nil {
		log.Error("publishing run summary", zap.Error(err))
	}
}

func prepareFilters(cmd *cobra.Command, config *Config, sink tracker.Sink, logger *zap.Logger) *filtering.Filtering {
	steps := []filtering.Filter{
		prepareTrackedFilter(cmd, sink, logger),
		filtering.NewExcludedCompanies(config.ExcludeCompanies, logger),
		filtering.NewExcludeFile(config.ExcludeFile, logger),
	}

	return filtering.New(steps, logger)
}

func prepareTrackedFilter(cmd *cobra.Command, sink tracker.Sink, logger *zap.Logger) filtering.Filter {
	ignore := false
	if cmd != nil {
		flag := cmd.Flag("include-tracked")
		if flag != nil && strings.EqualFold(flag.Value.String(), "true") {
			ignore = true
		}
	}

	cfg := &filtering.AlreadyTrackedConfig{Ignore: ignore}
	deps := &filtering.AlreadyTrackedDeps{
		Tracker: sink,
		Logger:  logger,
	}

	return filtering.NewAlreadyTracked(cfg, deps)
}

// promptApprover asks on the terminal before every message. Declined jobs are
// appended to the exclude file when one is configured.
type promptApprover struct {
	excludeFile string
	logger      *zap.Logger
}

func (p *promptApprover) Approve(_ context.Context, job *outreach.JobRecord, msg *outreach.OutreachMessage) (pipeline.Decision, error) {
	p.logger.Info("message ready",
		zap.String(logger.FieldJobID, job.JobID),
		zap.String(logger.FieldCompany, job.Company),
		zap.String("title", job.Title),
		zap.String("recruiter", job.Recruiter.Name),
		zap.String("contact", job.Recruiter.ContactChannel),
		zap.String("template_id", msg.TemplateID),
	)
	fmt.Println(utils.TruncateForLog(msg.RenderedText, previewLength))

	prompt := promptui.Select{
		Label: fmt.Sprintf("Send to %s (%s)?", job.Recruiter.Name, job.Company),
		Items: []string{PromptYes, PromptNo, PromptYesToAll, PromptStop},
	}

	_, action, err := prompt.Run()
	if err != nil {
		return pipeline.StopRun, err
	}

	switch action {
	case PromptYes:
		return pipeline.Approve, nil
	case PromptYesToAll:
		return pipeline.ApproveAll, nil
	case PromptStop:
		return pipeline.StopRun, nil
	case PromptNo:
		if err := p.exclude(job); err != nil {
			p.logger.Warn("appending to exclude file", zap.Error(err))
		}
		return pipeline.Decline, nil
	default:
		return pipeline.StopRun, errors.New("invalid action: " + action)
	}
}

func (p *promptApprover) exclude(job *outreach.JobRecord) error {
	if p.excludeFile == "" {
		return nil
	}

	excluded, err := filtering.LoadExcluded(p.excludeFile)
	if err != nil {
		return err
	}

	excluded.Append(filtering.NewExcluded(time.Now(), job))
	if err := excluded.ToFile(p.excludeFile); err != nil {
		return err
	}

	p.logger.Info("appended to exclude file", zap.String("filename", p.excludeFile), zap.String(logger.FieldJobID, job.JobID))
	return nil
}
