package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultSchedule runs a cycle every six hours.
const DefaultSchedule = "@every 6h"

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Ingest and match on a cron schedule until interrupted",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel, e := setup()
		defer cancel()
		defer e.close()

		spec := e.config.Schedule.Spec
		c, err := newScheduler(spec, e.logger, func() { e.cycle(ctx) })
		if err != nil {
			e.logger.Fatal("creating the scheduler", zap.Error(err))
		}

		e.logger.Info("scheduler started", zap.String("spec", spec))
		c.Start()

		<-ctx.Done()
		<-c.Stop().Done()
		e.logger.Info("scheduler stopped")
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("spec", "", "cron spec or descriptor, e.g. \"0 */4 * * *\" or \"@every 2h\"")

	viper.BindPFlag("schedule.spec", scheduleCmd.Flags().Lookup("spec"))
}

// newScheduler runs job on spec. Overlapping runs are skipped and panics are
// logged instead of stopping the scheduler.
func newScheduler(spec string, logger *zap.Logger, job func()) (*cron.Cron, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultSchedule
	}

	cl := cronLogger{logger: logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	if _, err := c.AddFunc(spec, job); err != nil {
		return nil, fmt.Errorf("schedule.spec %q: %w", spec, err)
	}
	return c, nil
}

// cycle is one scheduled ingest and match. Failures are logged and the next
// cycle tries again.
func (e *env) cycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if strings.TrimSpace(e.config.Listing.File) != "" {
		if _, err := e.ingest(ctx); err != nil {
			e.logger.Error("scheduled ingestion failed", zap.Error(err))
			return
		}
	}

	if _, err := e.match(ctx, time.Now()); err != nil {
		e.logger.Error("scheduled matching failed", zap.Error(err))
	}
}

// cronLogger routes the scheduler's own logs to zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
