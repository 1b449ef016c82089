package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/report"
	"github.com/spigell/project-matcher/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the recorded matches to a CSV file",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel, e := setup()
		defer cancel()
		defer e.close()

		if _, err := e.export(ctx, viper.GetString("export.output"), time.Now()); err != nil {
			e.logger.Fatal("exporting matches", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "csv file to write. Default is matches_<timestamp>.csv")

	viper.BindPFlag("export.output", exportCmd.Flags().Lookup("output"))
}

// export writes every recorded match reaching the configured minimal score.
func (e *env) export(ctx context.Context, path string, now time.Time) (string, error) {
	if path == "" {
		path = fmt.Sprintf("matches_%s.csv", now.Format("20060102_150405"))
	}

	rows, err := e.store.ListMatches(ctx, store.Query{MinScore: e.config.Matching.MinScore})
	if err != nil {
		return "", err
	}

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	if err := report.WriteCSV(file, rows); err != nil {
		file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close export file: %w", err)
	}

	e.logger.Info("dumping matches to file", zap.String("filename", path), zap.Int("count", len(rows)))
	return path, nil
}
