package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/store"
	"github.com/spigell/project-matcher/internal/utils"
)

const (
	PromptNextPage     = "next page"
	PromptPreviousPage = "previous page"
	PromptBack         = "back"
)

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Page through the ranked matches and inspect their score explanation",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel, e := setup()
		defer cancel()
		defer e.close()

		if err := e.browse(ctx); err != nil && !errors.Is(err, promptui.ErrInterrupt) {
			e.logger.Fatal("browsing matches", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// browse shows one page of matches at a time, best first.
func (e *env) browse(ctx context.Context) error {
	minScore := e.config.Matching.MinScore
	pageSize := e.config.Report.PageSize

	total, err := e.store.CountMatches(ctx, minScore)
	if err != nil {
		return err
	}
	if total == 0 {
		e.logger.Info("nothing to browse", zap.Float64("min_score", minScore))
		return nil
	}

	page := 0
	for {
		rows, err := e.store.ListMatches(ctx, store.Query{MinScore: minScore, Limit: pageSize, Offset: page * pageSize})
		if err != nil {
			return err
		}

		items := pageItems(rows, page, pageSize, total)
		matchPrompt := promptui.Select{
			Label: fmt.Sprintf("Matches %d-%d of %d. Choose one and press ENTER", page*pageSize+1, page*pageSize+len(rows), total),
			Items: items,
			Size:  pageSize + 3,
		}

		idx, selected, err := matchPrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptBack:
			return nil
		case PromptNextPage:
			page++
		case PromptPreviousPage:
			page--
		default:
			showMatch(e.logger, rows[idx])
		}
	}
}

func pageItems(rows []store.MatchedProject, page, pageSize, total int) []string {
	items := make([]string, 0, len(rows)+3)
	for _, row := range rows {
		items = append(items, matchLabel(row))
	}
	if (page+1)*pageSize < total {
		items = append(items, PromptNextPage)
	}
	if page > 0 {
		items = append(items, PromptPreviousPage)
	}
	return append(items, PromptBack)
}

func matchLabel(m store.MatchedProject) string {
	return fmt.Sprintf("%6.2f %s / %s / %s",
		m.Score, utils.TruncateForLog(m.Project.Title, 60), m.Project.Company, m.Project.Link,
	)
}

func showMatch(logger *zap.Logger, m store.MatchedProject) {
	logger.Info(strings.Join(m.Explanation, "\n"),
		zap.String("title", m.Project.Title),
		zap.String("company", m.Project.Company),
		zap.String("keywords", m.Project.Keywords),
		zap.String("link", m.Project.Link),
		zap.Bool("top_project", m.Project.IsFeatured),
		zap.Bool("end_customer", m.Project.IsEndCustomer),
		zap.Float64("score", m.Score),
		zap.Time("matched_at", m.MatchedAt),
	)
}
