// Package matching scores the stored projects of a time window against a
// profile and records the ones above a threshold.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/logger"
	"github.com/spigell/project-matcher/internal/profile"
	"github.com/spigell/project-matcher/internal/project"
	"github.com/spigell/project-matcher/internal/scoring"
	"github.com/spigell/project-matcher/internal/store"
	"github.com/spigell/project-matcher/internal/utils"
)

// DefaultWindow is used when Options.Window is not set.
const DefaultWindow = 30 * 24 * time.Hour

var (
	ErrNoStore   = errors.New("project store is required")
	ErrNoScorer  = errors.New("scorer is required")
	ErrNoProfile = errors.New("profile is required")
)

// Store is the part of the project store a pipeline needs.
type Store interface {
	ProjectsCreatedBetween(ctx context.Context, from, to time.Time) ([]project.Project, error)
	InsertMatch(ctx context.Context, m *store.Match) error
}

// Retry bounds the attempts made to persist a single match.
type Retry struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

// Options configure a single run.
type Options struct {
	MinScore float64
	// Window is how far back from ReferenceTime projects are considered.
	Window        time.Duration
	ReferenceTime time.Time
}

// Step describes what a pipeline stage did to the candidate list.
type Step struct {
	Name    string
	Initial int
	Dropped int
	Left    int
}

// Summary is the outcome of a run.
type Summary struct {
	RunID  string
	Policy string
	// Matches are ordered by score, then by project creation time, newest first.
	Matches   []store.MatchedProject
	Processed int
	Matched   int
	Excluded  int
	Failed    int
	Steps     []Step
}

// Pipeline runs are serialised.
type Pipeline struct {
	mu     sync.Mutex
	store  Store
	scorer *scoring.Scorer
	retry  Retry
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewPipeline(st Store, scorer *scoring.Scorer, logger *zap.Logger, retry Retry) (*Pipeline, error) {
	if st == nil {
		return nil, ErrNoStore
	}
	if scorer == nil {
		return nil, ErrNoScorer
	}
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		store:  st,
		scorer: scorer,
		retry:  retry,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

type candidate struct {
	project project.Project
	result  scoring.Result
}

// Run selects the projects created within the window, scores them at the
// reference time and persists every candidate reaching MinScore.
// Persisting failures are retried, then counted and skipped. Failing to load
// the projects aborts the run.
func (p *Pipeline) Run(ctx context.Context, prof *profile.Profile, opts Options) (*Summary, error) {
	if prof == nil {
		return nil, ErrNoProfile
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.ReferenceTime.IsZero() {
		opts.ReferenceTime = p.now()
	}

	policy := p.scorer.Policy().Name
	summary := &Summary{RunID: p.newID(), Policy: policy}
	log := logger.WithRun(p.logger, summary.RunID, policy)

	from := opts.ReferenceTime.Add(-opts.Window)
	projects, err := p.store.ProjectsCreatedBetween(ctx, from, opts.ReferenceTime)
	if err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}

	log.Debug("loaded projects",
		zap.Time("from", from),
		zap.Time("to", opts.ReferenceTime),
		zap.Int("count", len(projects)),
	)

	candidates := make([]candidate, 0, len(projects))
	for _, pr := range projects {
		result := p.scorer.Score(pr, prof, opts.ReferenceTime)
		summary.Processed++
		if result.Excluded {
			summary.Excluded++
			log.Debug("project excluded",
				zap.String(logger.FieldProjectID, pr.ID),
				zap.Strings("explanation", result.Explanation),
			)
		}
		candidates = append(candidates, candidate{project: pr, result: result})
	}
	log.Info("scored projects",
		zap.Int("processed", summary.Processed),
		zap.Int("excluded", summary.Excluded),
		zap.Float64("min_score", opts.MinScore),
	)

	kept := candidates[:0]
	for _, c := range candidates {
		if c.result.Score >= opts.MinScore {
			kept = append(kept, c)
		}
	}
	summary.addStep("threshold", len(candidates), len(candidates)-len(kept), log)

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].result.Score != kept[j].result.Score {
			return kept[i].result.Score > kept[j].result.Score
		}
		return kept[i].project.CreatedAt.After(kept[j].project.CreatedAt)
	})

	for _, c := range kept {
		m := store.Match{
			RunID:       summary.RunID,
			ProjectID:   c.project.ID,
			Score:       c.result.Score,
			Explanation: c.result.Explanation,
			Excluded:    c.result.Excluded,
			MatchedAt:   opts.ReferenceTime,
		}

		if err := p.persist(ctx, &m, log); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, fmt.Errorf("persisting matches: %w", ctxErr)
			}
			summary.Failed++
			log.Warn("skipping match",
				zap.String(logger.FieldProjectID, c.project.ID),
				zap.Float64("score", c.result.Score),
				zap.Error(err),
			)
			continue
		}

		summary.Matches = append(summary.Matches, store.MatchedProject{Match: m, Project: c.project})
	}
	summary.Matched = len(summary.Matches)
	summary.addStep("persist", len(kept), summary.Failed, log)

	return summary, nil
}

func (p *Pipeline) persist(ctx context.Context, m *store.Match, log *zap.Logger) error {
	return utils.Retry(ctx, p.retry.Attempts, p.retry.Backoff, func(attempt int) error {
		err := p.store.InsertMatch(ctx, m)
		if err != nil {
			log.Debug("persisting match failed",
				zap.String(logger.FieldProjectID, m.ProjectID),
				zap.Int("attempt", attempt),
				zap.Bool("busy", store.IsBusy(err)),
				zap.Error(err),
			)
		}
		if store.IsConstraint(err) {
			return utils.Permanent(err)
		}
		return err
	})
}

func (s *Summary) addStep(name string, initial, dropped int, log *zap.Logger) {
	step := Step{Name: name, Initial: initial, Dropped: dropped, Left: initial - dropped}
	s.Steps = append(s.Steps, step)
	log.Info("matching step",
		zap.String("name", step.Name),
		zap.Int("initial", step.Initial),
		zap.Int("dropped", step.Dropped),
		zap.Int("left", step.Left),
	)
}
