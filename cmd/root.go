package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/project-matcher/internal/matching"
	"github.com/spigell/project-matcher/internal/profile"
	"github.com/spigell/project-matcher/internal/report"
	"github.com/spigell/project-matcher/internal/scoring"
)

const (
	app       = "project-matcher"
	envPrefix = "PROJECT_MATCHER"
)

type Config struct {
	Database string          `mapstructure:"database"`
	Profile  *profile.Config `mapstructure:"profile"`
	Listing  *ListingConfig  `mapstructure:"listing"`
	Matching *MatchingConfig `mapstructure:"matching"`
	Report   *ReportConfig   `mapstructure:"report"`
	Schedule *ScheduleConfig `mapstructure:"schedule"`
}

type ListingConfig struct {
	File       string `mapstructure:"file"`
	Source     string `mapstructure:"source"`
	MaxRecords int    `mapstructure:"max-records"`
}

type MatchingConfig struct {
	Policy   string        `mapstructure:"policy"`
	MinScore float64       `mapstructure:"min-score"`
	Window   time.Duration `mapstructure:"window"`
	// Weights override fields of the selected policy, e.g. exact-weight: 40.
	Weights map[string]any `mapstructure:"weights"`
	Retry   matching.Retry `mapstructure:"retry"`
}

type ReportConfig struct {
	Window       time.Duration `mapstructure:"window"`
	TopCompanies int           `mapstructure:"top-companies"`
	PageSize     int           `mapstructure:"page-size"`
}

type ScheduleConfig struct {
	Spec string `mapstructure:"spec"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "project-matcher scores freelance project listings against your skill profile",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is project-matcher.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("database", "", "path to the sqlite database")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("database", rootCmd.PersistentFlags().Lookup("database"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))

	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database", app+".db")
	v.SetDefault("listing.source", "freelancermap")
	v.SetDefault("matching.policy", scoring.DefaultPolicy)
	v.SetDefault("matching.min-score", 30)
	v.SetDefault("matching.window", matching.DefaultWindow)
	v.SetDefault("matching.retry.attempts", 3)
	v.SetDefault("matching.retry.backoff", 100*time.Millisecond)
	v.SetDefault("report.window", report.DefaultWindow)
	v.SetDefault("report.top-companies", report.DefaultTopCompanies)
	v.SetDefault("report.page-size", 20)
	v.SetDefault("schedule.spec", DefaultSchedule)
}

func initConfig() {
	// The version command works without a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	// A .env file next to the config may carry PROJECT_MATCHER_* variables.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %s", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		// Without an explicit --config, defaults and environment variables are enough.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		// We can't proceed if the config file parsed with error.
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	return loadConfig(viper.GetViper())
}

func loadConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is required")
	}

	if config.Profile == nil {
		config.Profile = &profile.Config{}
	}
	if config.Listing == nil {
		config.Listing = &ListingConfig{}
	}
	if config.Matching == nil {
		config.Matching = &MatchingConfig{}
	}
	if config.Report == nil {
		config.Report = &ReportConfig{}
	}
	if config.Schedule == nil {
		config.Schedule = &ScheduleConfig{}
	}

	if strings.TrimSpace(config.Database) == "" {
		return nil, errors.New("database path is required")
	}
	if config.Matching.MinScore < 0 {
		return nil, fmt.Errorf("matching.min-score must not be negative, got %v", config.Matching.MinScore)
	}
	if config.Report.PageSize <= 0 {
		config.Report.PageSize = 20
	}

	return config, nil
}

// policy resolves the configured scoring policy with its weight overrides.
func (c *Config) policy() (scoring.Policy, error) {
	policy, err := scoring.PolicyByName(c.Matching.Policy)
	if err != nil {
		return scoring.Policy{}, fmt.Errorf("matching.policy: %w", err)
	}

	policy, err = policy.WithOverrides(c.Matching.Weights)
	if err != nil {
		return scoring.Policy{}, fmt.Errorf("matching.weights: %w", err)
	}
	return policy, nil
}
