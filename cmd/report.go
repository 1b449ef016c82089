package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise the recent matches",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel, e := setup()
		defer cancel()
		defer e.close()

		if _, err := e.report(ctx, time.Now()); err != nil {
			e.logger.Fatal("building a report", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().Duration("window", 0, "span of match activity to report on")
	reportCmd.Flags().Int("top-companies", 0, "size of the company ranking")

	viper.BindPFlag("report.window", reportCmd.Flags().Lookup("window"))
	viper.BindPFlag("report.top-companies", reportCmd.Flags().Lookup("top-companies"))
}

func (e *env) report(ctx context.Context, now time.Time) (*report.Report, error) {
	rep, err := report.Build(ctx, e.store, report.Options{
		Window:        e.config.Report.Window,
		ReferenceTime: now,
		TopCompanies:  e.config.Report.TopCompanies,
	})
	if err != nil {
		return nil, err
	}

	stats := rep.Statistics
	e.logger.Info("match statistics",
		zap.Time("from", rep.From),
		zap.Time("to", rep.To),
		zap.Int("total_matches", stats.TotalMatches),
		zap.String("average_score", fmt.Sprintf("%.2f", stats.AverageScore)),
		zap.Time("latest_match", stats.LatestMatch),
		zap.Time("oldest_project", stats.OldestProject),
		zap.Int("distinct_companies", stats.DistinctCompanies),
	)

	histogram := make(map[string]int, len(rep.Histogram))
	for _, b := range rep.Histogram {
		histogram[b.Label] = b.Count
	}
	e.logger.Info("score distribution", zap.Any("buckets", histogram))

	// do not bother error since the report is plain data
	pretty, _ := json.MarshalIndent(rep.TopCompanies, "", "  ")
	e.logger.Info(string(pretty), zap.Int("companies count", len(rep.TopCompanies)))

	return rep, nil
}
