package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/logger"
	"github.com/spigell/project-matcher/internal/matching"
	"github.com/spigell/project-matcher/internal/profile"
	"github.com/spigell/project-matcher/internal/scoring"
	"github.com/spigell/project-matcher/internal/store"
)

// env bundles what every command needs.
type env struct {
	config *Config
	logger *zap.Logger
	store  *store.Store
}

// setup builds the logger, reads the config and opens the store.
// Failures are fatal since no command can work without them.
func setup() (context.Context, context.CancelFunc, *env) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), viper.GetString("log-file"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config, "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	st, err := store.Open(config.Database, logger)
	if err != nil {
		logger.Fatal("opening the project store", zap.Error(err), zap.String("database", config.Database))
	}

	return ctx, cancel, &env{config: config, logger: logger, store: st}
}

func (e *env) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing the project store", zap.Error(err))
	}
	_ = e.logger.Sync()
}

func (e *env) profile() (*profile.Profile, error) {
	prof, err := profile.New(*e.config.Profile)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return prof, nil
}

func (e *env) pipeline() (*matching.Pipeline, error) {
	policy, err := e.config.policy()
	if err != nil {
		return nil, err
	}

	scorer, err := scoring.NewScorer(policy)
	if err != nil {
		return nil, err
	}

	return matching.NewPipeline(e.store, scorer, e.logger, e.config.Matching.Retry)
}
