package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/listing"
	"github.com/spigell/project-matcher/internal/logger"
	"github.com/spigell/project-matcher/internal/project"
	"github.com/spigell/project-matcher/internal/utils"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Store the projects from a listing dump",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel, e := setup()
		defer cancel()
		defer e.close()

		if _, err := e.ingest(ctx); err != nil {
			e.logger.Fatal("ingesting listings", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("file", "f", "", "listing dump written by the fetcher")
	ingestCmd.Flags().Int("max-records", 0, "stop after this many records. Default is unlimited.")

	viper.BindPFlag("listing.file", ingestCmd.Flags().Lookup("file"))
	viper.BindPFlag("listing.max-records", ingestCmd.Flags().Lookup("max-records"))
}

type projectSaver interface {
	SaveProject(ctx context.Context, p project.Project) (bool, error)
}

type ingestStats struct {
	Fetched   int
	Inserted  int
	Known     int
	Malformed int
	Failed    int
}

func (e *env) ingest(ctx context.Context) (ingestStats, error) {
	session := &listing.Session{
		Source:     e.config.Listing.Source,
		MaxRecords: e.config.Listing.MaxRecords,
	}
	fetcher := listing.NewFileFetcher(e.config.Listing.File, e.logger)

	return ingest(ctx, fetcher, session, e.store, e.config.Matching.Retry.Attempts, e.config.Matching.Retry.Backoff, e.logger, time.Now())
}

// ingest stores every usable record. Malformed records and records that
// could not be saved are logged and counted; the rest of the batch goes on.
func ingest(ctx context.Context, fetcher listing.Fetcher, session *listing.Session, saver projectSaver, attempts int, backoff time.Duration, log *zap.Logger, now time.Time) (ingestStats, error) {
	var stats ingestStats

	records, err := fetcher.Fetch(ctx, session)
	if err != nil {
		return stats, fmt.Errorf("fetching listings: %w", err)
	}
	stats.Fetched = len(records)

	for _, raw := range records {
		p, err := project.FromRaw(raw, now)
		if err != nil {
			stats.Malformed++
			log.Warn("skipping listing record",
				zap.String("title", utils.TruncateForLog(raw.Title, 80)),
				zap.Error(err),
			)
			continue
		}
		if !p.HasCreated() {
			log.Debug("creation date is not available",
				zap.String(logger.FieldProjectID, p.ID),
				zap.String("created", raw.Created),
			)
		}

		var inserted bool
		err = utils.Retry(ctx, attempts, backoff, func(int) error {
			var err error
			inserted, err = saver.SaveProject(ctx, p)
			return err
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.Failed++
			log.Warn("skipping project", zap.String(logger.FieldProjectID, p.ID), zap.Error(err))
			continue
		}

		if inserted {
			stats.Inserted++
		} else {
			stats.Known++
		}
	}

	log.Info("listings ingested",
		zap.String("source", session.Source),
		zap.Int("fetched", stats.Fetched),
		zap.Int("skipped_entries", session.Skipped),
		zap.Int("inserted", stats.Inserted),
		zap.Int("known", stats.Known),
		zap.Int("malformed", stats.Malformed),
		zap.Int("failed", stats.Failed),
	)

	return stats, nil
}
