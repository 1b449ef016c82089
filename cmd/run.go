package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	PromptBrowse = "Browse matches"
	PromptReport = "Report by companies"
	PromptExport = "Export matches to file"
	PromptExit   = "Exit"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptBrowse, PromptReport, PromptExport, PromptExit},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest the listing dump, match the projects and report on the result",
	Run: func(cmd *cobra.Command, _ []string) {
		run(cmd)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("auto-approve", "y", false, "do not ask what to do next, export the matches and exit")
}

// run is the main command for the cli.
func run(cmd *cobra.Command) {
	ctx, cancel, e := setup()
	defer cancel()
	defer e.close()

	logger := e.logger
	logger.Info("starting the project-matcher", zap.String("version", resolveVersion()))

	if strings.TrimSpace(e.config.Listing.File) != "" {
		if _, err := e.ingest(ctx); err != nil {
			logger.Fatal("ingesting listings", zap.Error(err))
		}
	} else {
		logger.Info("skipping ingestion", zap.String("reason", "listing.file is not configured"))
	}

	now := time.Now()
	summary, err := e.match(ctx, now)
	if err != nil {
		logger.Fatal("matching projects", zap.Error(err))
	}

	if summary.Matched == 0 {
		logger.Info("exiting", zap.String("reason", "no matches found"))
		return
	}

	if _, err := e.report(ctx, now); err != nil {
		logger.Fatal("building a report", zap.Error(err))
	}

	if cmd.Flag("auto-approve").Value.String() == "true" {
		if err := e.handleAction(ctx, PromptExport); err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := e.handleAction(ctx, action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func (e *env) handleAction(ctx context.Context, action string) error {
	switch action {
	case PromptBrowse:
		err := e.browse(ctx)
		if errors.Is(err, promptui.ErrInterrupt) {
			return nil
		}
		return err
	case PromptReport:
		_, err := e.report(ctx, time.Now())
		return err
	case PromptExport:
		if _, err := e.export(ctx, "", time.Now()); err != nil {
			return fmt.Errorf("dump matches to file: %w", err)
		}
		return nil
	case PromptExit:
		e.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}
