package cmd

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/recruiter-outreach/internal/compose"
	"github.com/spigell/recruiter-outreach/internal/delivery"
	"github.com/spigell/recruiter-outreach/internal/notify"
	"github.com/spigell/recruiter-outreach/internal/pipeline"
	"github.com/spigell/recruiter-outreach/internal/tracker"
)

const (
	app       = "recruiter-outreach"
	envPrefix = "OUTREACH"
)

type Config struct {
	Input    string `mapstructure:"input"`
	StateDir string `mapstructure:"state-dir"`
	Workers  int    `mapstructure:"workers"`

	MaxAttempts       int     `mapstructure:"max-attempts"`
	BackoffBaseMS     int     `mapstructure:"backoff-base-ms"`
	BackoffMultiplier float64 `mapstructure:"backoff-multiplier"`

	TemplateID        string             `mapstructure:"template-id"`
	MaxMessagesPerRun int                `mapstructure:"max-messages-per-run"`
	Sender            string             `mapstructure:"sender"`
	NoteLimit         int                `mapstructure:"note-limit"`
	Templates         []compose.Template `mapstructure:"templates"`
	AutoApprove       bool               `mapstructure:"auto-approve"`

	ExcludeCompanies []string `mapstructure:"exclude-companies"`
	ExcludeFile      string   `mapstructure:"exclude-file"`

	Lookup      LookupConfig            `mapstructure:"lookup"`
	Delivery    DeliveryConfig          `mapstructure:"delivery"`
	Tracker     TrackerConfig           `mapstructure:"tracker"`
	FollowUp    pipeline.FollowUpConfig `mapstructure:"followup"`
	MetricsAddr string                  `mapstructure:"metrics-addr"`
	Notify      NotifyConfig            `mapstructure:"notify"`
}

type LookupConfig struct {
	Primary  *SourceConfig `mapstructure:"primary"`
	Fallback *SourceConfig `mapstructure:"fallback"`
}

// SourceConfig describes one ranked lookup source.
type SourceConfig struct {
	// Kind is one of directory, page, api or gemini.
	Kind string `mapstructure:"kind"`
	Name string `mapstructure:"name"`

	Path string `mapstructure:"path"`
	URL  string `mapstructure:"url"`

	Token     string `mapstructure:"token"`
	TokenEnv  string `mapstructure:"token-env"`
	TokenFile string `mapstructure:"token-file"`

	UserAgent         string        `mapstructure:"user-agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests-per-second"`
	Burst             int           `mapstructure:"burst"`

	Model         string  `mapstructure:"model"`
	MinConfidence float64 `mapstructure:"min-confidence"`
	MaxLogLength  int     `mapstructure:"max-log-length"`
}

type DeliveryConfig struct {
	// Kind is log (dry run into the outbox file) or ses.
	Kind     string             `mapstructure:"kind"`
	Outbox   string             `mapstructure:"outbox"`
	SES      delivery.SESConfig `mapstructure:"ses"`
	Interval time.Duration      `mapstructure:"interval"`
	Jitter   time.Duration      `mapstructure:"jitter"`
}

type TrackerConfig struct {
	// Kind is sqlite, postgres or redis.
	Kind      string              `mapstructure:"kind"`
	Path      string              `mapstructure:"path"`
	DSN       string              `mapstructure:"dsn"`
	DSNEnv    string              `mapstructure:"dsn-env"`
	DSNFile   string              `mapstructure:"dsn-file"`
	Redis     tracker.RedisConfig `mapstructure:"redis"`
	ExportLog string              `mapstructure:"export-log"`
}

type NotifyConfig struct {
	SNS *notify.SNSConfig `mapstructure:"sns"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "recruiter-outreach finds recruiters of applied jobs, messages them and tracks the outreach",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is recruiter-outreach.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("state-dir", "", "directory for the tracker database, export log and outbox")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("state-dir", rootCmd.PersistentFlags().Lookup("state-dir"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("state-dir", ".outreach")
	v.SetDefault("workers", 1)
	v.SetDefault("max-attempts", 3)
	v.SetDefault("backoff-base-ms", 500)
	v.SetDefault("backoff-multiplier", 2.0)
	v.SetDefault("template-id", pipeline.DefaultTemplateID)
	v.SetDefault("max-messages-per-run", 20)
	v.SetDefault("note-limit", compose.DefaultNoteLimit)
	v.SetDefault("delivery.kind", "log")
	v.SetDefault("tracker.kind", "sqlite")
	v.SetDefault("followup.template-id", "followup")
	v.SetDefault("followup.days-wait", 3)
	v.SetDefault("followup.max-per-run", 10)
}

func initConfig() {
	// Env files are optional, the process environment is enough.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error. A missing
	// default config is fine, everything has a default or an env override.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return config, nil
}

// applyDefaults fills the paths that depend on the state dir.
func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = ".outreach"
	}
	if c.Tracker.Path == "" {
		c.Tracker.Path = filepath.Join(c.StateDir, "tracker.db")
	}
	if c.Tracker.ExportLog == "" {
		c.Tracker.ExportLog = filepath.Join(c.StateDir, "export.jsonl")
	}
	if c.Delivery.Outbox == "" {
		c.Delivery.Outbox = filepath.Join(c.StateDir, "outbox.jsonl")
	}
}
