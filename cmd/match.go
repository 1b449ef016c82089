package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/logger"
	"github.com/spigell/project-matcher/internal/matching"
	"github.com/spigell/project-matcher/internal/utils"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score recent projects against the profile and record the matches",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel, e := setup()
		defer cancel()
		defer e.close()

		if _, err := e.match(ctx, time.Now()); err != nil {
			e.logger.Fatal("matching projects", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64P("min-score", "m", 0, "minimal score of a recorded match")
	matchCmd.Flags().StringP("policy", "p", "", "scoring policy: exponential or linear")
	matchCmd.Flags().Duration("window", 0, "how far back projects are considered")

	viper.BindPFlag("matching.min-score", matchCmd.Flags().Lookup("min-score"))
	viper.BindPFlag("matching.policy", matchCmd.Flags().Lookup("policy"))
	viper.BindPFlag("matching.window", matchCmd.Flags().Lookup("window"))
}

func (e *env) match(ctx context.Context, now time.Time) (*matching.Summary, error) {
	prof, err := e.profile()
	if err != nil {
		return nil, err
	}

	pipeline, err := e.pipeline()
	if err != nil {
		return nil, err
	}

	summary, err := pipeline.Run(ctx, prof, matching.Options{
		MinScore:      e.config.Matching.MinScore,
		Window:        e.config.Matching.Window,
		ReferenceTime: now,
	})
	if err != nil {
		return nil, err
	}

	log := logger.WithRun(e.logger, summary.RunID, summary.Policy)
	for _, m := range summary.Matches {
		log.Debug("match",
			zap.String(logger.FieldProjectID, m.ProjectID),
			zap.String("title", utils.TruncateForLog(m.Project.Title, 80)),
			zap.String("company", m.Project.Company),
			zap.Float64("score", m.Score),
		)
	}

	log.Info("matching finished",
		zap.Int("processed", summary.Processed),
		zap.Int("matched", summary.Matched),
		zap.Int("excluded", summary.Excluded),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}
