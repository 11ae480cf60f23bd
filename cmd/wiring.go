package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/ai/gemini"
	"github.com/spigell/recruiter-outreach/internal/compose"
	"github.com/spigell/recruiter-outreach/internal/delivery"
	"github.com/spigell/recruiter-outreach/internal/lookup"
	"github.com/spigell/recruiter-outreach/internal/metrics"
	"github.com/spigell/recruiter-outreach/internal/retry"
	"github.com/spigell/recruiter-outreach/internal/secrets"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

func newPolicy(config *Config) retry.Policy {
	return retry.New(config.MaxAttempts, config.BackoffBaseMS, config.BackoffMultiplier)
}

func newComposer(config *Config) (*compose.Composer, error) {
	composer := compose.New(
		compose.WithSender(config.Sender),
		compose.WithNoteLimit(config.NoteLimit),
	)

	for _, t := range config.Templates {
		if err := composer.Register(t); err != nil {
			return nil, fmt.Errorf("template %q: %w", t.ID, err)
		}
	}

	ids := []string{config.TemplateID, config.FollowUp.TemplateID}
	for _, id := range ids {
		if id != "" && !composer.Has(id) {
			return nil, fmt.Errorf("template %q is not defined", id)
		}
	}
	if err := composer.Validate(ids...); err != nil {
		return nil, fmt.Errorf("template check: %w", err)
	}

	return composer, nil
}

func newResolver(ctx context.Context, config *Config, m *metrics.Metrics, logger *zap.Logger) (*lookup.Resolver, error) {
	if config.Lookup.Primary == nil {
		return nil, fmt.Errorf("lookup.primary is required")
	}

	primary, err := newSource(ctx, "primary", config.Lookup.Primary, logger)
	if err != nil {
		return nil, fmt.Errorf("primary lookup source: %w", err)
	}

	var fallback lookup.Source
	if config.Lookup.Fallback != nil {
		fallback, err = newSource(ctx, "fallback", config.Lookup.Fallback, logger)
		if err != nil {
			return nil, fmt.Errorf("fallback lookup source: %w", err)
		}
	}

	return lookup.NewResolver(primary, fallback, logger.Named("lookup"), lookup.WithMetrics(m))
}

func newSource(ctx context.Context, rank string, cfg *SourceConfig, logger *zap.Logger) (lookup.Source, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	name := cfg.Name
	if name == "" {
		name = kind
	}

	sourceLogger := logger.With(zap.String("lookup_rank", rank), zap.String("lookup_source", name))

	switch kind {
	case "directory":
		return lookup.LoadDirectory(name, cfg.Path)
	case "page":
		return lookup.NewPage(name, httpConfig(cfg, ""), sourceLogger), nil
	case "api":
		token, err := secrets.Optional(secrets.Source{
			Name:  name + " api token",
			Value: cfg.Token,
			Env:   cfg.TokenEnv,
			File:  cfg.TokenFile,
		})
		if err != nil {
			return nil, err
		}
		return lookup.NewAPI(name, cfg.URL, httpConfig(cfg, token), sourceLogger)
	case "gemini":
		env := cfg.TokenEnv
		if env == "" && cfg.Token == "" && cfg.TokenFile == "" {
			env = "GEMINI_API_KEY"
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Token,
			Env:   env,
			File:  cfg.TokenFile,
		})
		if err != nil {
			return nil, err
		}

		genLogger := sourceLogger.With(zap.String("provider", "gemini"), zap.String("model", cfg.Model))
		generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Model, genLogger)
		if err != nil {
			return nil, err
		}

		finder := gemini.NewFinder(generator, cfg.MinConfidence, cfg.MaxLogLength, genLogger)
		return lookup.NewAssistant(name, finder), nil
	default:
		return nil, fmt.Errorf("unsupported lookup source kind %q", cfg.Kind)
	}
}

func httpConfig(cfg *SourceConfig, token string) lookup.HTTPConfig {
	return lookup.HTTPConfig{
		Token:             token,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// newChannel returns the configured channel and a close func.
func newChannel(ctx context.Context, config *Config, logger *zap.Logger) (delivery.Channel, func() error, error) {
	var (
		channel delivery.Channel
		closer  = func() error { return nil }
	)

	switch strings.ToLower(config.Delivery.Kind) {
	case "", "log":
		outbox, err := delivery.NewOutbox(config.Delivery.Outbox, logger.Named("outbox"))
		if err != nil {
			return nil, nil, err
		}
		channel, closer = outbox, outbox.Close
	case "ses":
		ses, err := delivery.NewSES(ctx, config.Delivery.SES, logger.Named("ses"))
		if err != nil {
			return nil, nil, err
		}
		channel = ses
	default:
		return nil, nil, fmt.Errorf("unsupported delivery kind %q", config.Delivery.Kind)
	}

	return delivery.NewThrottle(channel, config.Delivery.Interval, config.Delivery.Jitter), closer, nil
}

func newSink(ctx context.Context, config *Config, logger *zap.Logger) (tracker.Sink, error) {
	sinkLogger := logger.Named("tracker")

	switch strings.ToLower(config.Tracker.Kind) {
	case "", "sqlite":
		if err := os.MkdirAll(filepath.Dir(config.Tracker.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create tracker dir: %w", err)
		}
		return tracker.OpenSQLite(ctx, config.Tracker.Path, sinkLogger)
	case "postgres":
		dsn, err := secrets.Load(secrets.Source{
			Name:  "postgres dsn",
			Value: config.Tracker.DSN,
			Env:   config.Tracker.DSNEnv,
			File:  config.Tracker.DSNFile,
		})
		if err != nil {
			return nil, err
		}
		return tracker.OpenPostgres(ctx, dsn, sinkLogger)
	case "redis":
		return tracker.OpenRedis(ctx, config.Tracker.Redis)
	default:
		return nil, fmt.Errorf("unsupported tracker kind %q", config.Tracker.Kind)
	}
}
