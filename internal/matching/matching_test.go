package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/project-matcher/internal/profile"
	"github.com/spigell/project-matcher/internal/project"
	"github.com/spigell/project-matcher/internal/scoring"
	"github.com/spigell/project-matcher/internal/store"
)

var ref = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

type stubStore struct {
	projects []project.Project
	loadErr  error

	// failures maps a project id to the number of inserts that fail before one succeeds.
	failures map[string]int
	// errs maps a project id to an error returned by every insert.
	errs     map[string]error
	calls    map[string]int
	inserted []store.Match

	from, to time.Time
}

func (s *stubStore) ProjectsCreatedBetween(_ context.Context, from, to time.Time) ([]project.Project, error) {
	s.from, s.to = from, to
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.projects, nil
}

func (s *stubStore) InsertMatch(_ context.Context, m *store.Match) error {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[m.ProjectID]++
	if err, ok := s.errs[m.ProjectID]; ok {
		return err
	}
	if s.calls[m.ProjectID] <= s.failures[m.ProjectID] {
		return store.ErrPersistence
	}
	m.ID = int64(len(s.inserted) + 1)
	s.inserted = append(s.inserted, *m)
	return nil
}

func newProject(id, title, keywords string, created time.Time) project.Project {
	return project.Project{
		ID:          id,
		Link:        "https://example.com/" + id,
		Title:       title,
		Company:     "Acme",
		Description: project.NotAvailable,
		Keywords:    keywords,
		CreatedAt:   created,
	}
}

func testProfile(t *testing.T) *profile.Profile {
	t.Helper()
	prof, err := profile.New(profile.Config{
		Skills:           []string{"Python", "AWS"},
		ExcludedKeywords: []string{"SAP"},
	})
	if err != nil {
		t.Fatalf("building profile: %v", err)
	}
	return prof
}

func testPipeline(t *testing.T, st Store, retry Retry) (*Pipeline, *observer.ObservedLogs) {
	t.Helper()
	policy, err := scoring.PolicyByName(scoring.PolicyExponential)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	scorer, err := scoring.NewScorer(policy)
	if err != nil {
		t.Fatalf("scorer: %v", err)
	}

	core, logs := observer.New(zapcore.DebugLevel)
	p, err := NewPipeline(st, scorer, zap.New(core), retry)
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	p.newID = func() string { return "run-1" }
	return p, logs
}

func fixtures() []project.Project {
	return []project.Project{
		newProject("older", "Backend", "Python, AWS", ref.Add(-3*24*time.Hour)),
		newProject("newer", "Backend", "Python, AWS", ref.Add(-1*24*time.Hour)),
		newProject("php", "Shop", "PHP", ref.Add(-1*24*time.Hour)),
		newProject("sap", "SAP consultant", "Python, AWS", ref),
		newProject("half", "Data", "Python, Spark", ref.Add(-10*24*time.Hour)),
	}
}

func TestRunKeepsMatchesAboveThreshold(t *testing.T) {
	st := &stubStore{projects: fixtures()}
	p, logs := testPipeline(t, st, Retry{Attempts: 1})

	summary, err := p.Run(context.Background(), testProfile(t), Options{MinScore: 35, ReferenceTime: ref})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Processed != 5 || summary.Excluded != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", summary)
	}

	want := []string{"newer", "older"}
	if summary.Matched != len(want) || len(summary.Matches) != len(want) {
		t.Fatalf("expected %d matches, got %d", len(want), len(summary.Matches))
	}
	for i, id := range want {
		if summary.Matches[i].ProjectID != id {
			t.Fatalf("match %d: expected %s, got %s", i, id, summary.Matches[i].ProjectID)
		}
		if summary.Matches[i].Score < 35 {
			t.Fatalf("match %d below threshold: %v", i, summary.Matches[i].Score)
		}
		if summary.Matches[i].RunID != "run-1" {
			t.Fatalf("unexpected run id %q", summary.Matches[i].RunID)
		}
		if !summary.Matches[i].MatchedAt.Equal(ref) {
			t.Fatalf("unexpected matched at %v", summary.Matches[i].MatchedAt)
		}
		if len(summary.Matches[i].Explanation) == 0 {
			t.Fatalf("expected explanation for %s", id)
		}
	}

	if len(st.inserted) != 2 {
		t.Fatalf("expected 2 persisted matches, got %d", len(st.inserted))
	}

	if !st.from.Equal(ref.Add(-DefaultWindow)) || !st.to.Equal(ref) {
		t.Fatalf("unexpected window [%v, %v]", st.from, st.to)
	}

	if logs.FilterMessage("matching step").FilterField(zap.String("run_id", "run-1")).Len() != 2 {
		t.Fatalf("expected step logs carrying the run id")
	}
}

func TestRunZeroThresholdKeepsEverything(t *testing.T) {
	st := &stubStore{projects: fixtures()}
	p, _ := testPipeline(t, st, Retry{Attempts: 1})

	summary, err := p.Run(context.Background(), testProfile(t), Options{ReferenceTime: ref, Window: 48 * time.Hour})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Matched != 5 {
		t.Fatalf("expected every project to be kept, got %d", summary.Matched)
	}

	last := summary.Matches[len(summary.Matches)-1]
	if last.ProjectID != "sap" || !last.Excluded || last.Score != 0 {
		t.Fatalf("expected the excluded project last, got %+v", last.Match)
	}

	if !st.from.Equal(ref.Add(-48 * time.Hour)) {
		t.Fatalf("custom window not applied: %v", st.from)
	}
}

func TestRunRetriesPersistence(t *testing.T) {
	st := &stubStore{
		projects: fixtures(),
		failures: map[string]int{"newer": 2, "older": 5},
	}
	p, logs := testPipeline(t, st, Retry{Attempts: 3})

	summary, err := p.Run(context.Background(), testProfile(t), Options{MinScore: 35, ReferenceTime: ref})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.Matched != 1 || summary.Matches[0].ProjectID != "newer" {
		t.Fatalf("expected only the retried match to survive, got %+v", summary.Matches)
	}
	if summary.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", summary.Failed)
	}
	if st.calls["newer"] != 3 || st.calls["older"] != 3 {
		t.Fatalf("unexpected attempts: %v", st.calls)
	}

	skipped := logs.FilterMessage("skipping match")
	if skipped.Len() != 1 {
		t.Fatalf("expected one skip warning, got %d", skipped.Len())
	}
	if skipped.All()[0].ContextMap()["project_id"] != "older" {
		t.Fatalf("unexpected skipped project: %v", skipped.All()[0].ContextMap())
	}
}

func TestRunLoadFailureAborts(t *testing.T) {
	loadErr := errors.New("disk on fire")
	st := &stubStore{loadErr: loadErr}
	p, _ := testPipeline(t, st, Retry{Attempts: 1})

	summary, err := p.Run(context.Background(), testProfile(t), Options{ReferenceTime: ref})
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	if summary != nil {
		t.Fatalf("expected no summary")
	}
}

func TestRunCancelledContext(t *testing.T) {
	st := &stubStore{projects: fixtures(), failures: map[string]int{"newer": 1}}
	p, _ := testPipeline(t, st, Retry{Attempts: 3, Backoff: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, testProfile(t), Options{MinScore: 35, ReferenceTime: ref})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestRunUsesClockWithoutReferenceTime(t *testing.T) {
	st := &stubStore{projects: fixtures()}
	p, _ := testPipeline(t, st, Retry{})
	p.now = func() time.Time { return ref }

	summary, err := p.Run(context.Background(), testProfile(t), Options{MinScore: 35})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !st.to.Equal(ref) || summary.Matched != 2 {
		t.Fatalf("expected the clock to set the reference time")
	}
}

func TestValidation(t *testing.T) {
	scorer, err := scoring.NewScorer(scoring.Policy{})
	if err == nil {
		t.Fatalf("expected invalid policy error")
	}

	if _, err := NewPipeline(nil, scorer, nil, Retry{}); !errors.Is(err, ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
	if _, err := NewPipeline(&stubStore{}, nil, nil, Retry{}); !errors.Is(err, ErrNoScorer) {
		t.Fatalf("expected ErrNoScorer, got %v", err)
	}

	p, _ := testPipeline(t, &stubStore{}, Retry{})
	if _, err := p.Run(context.Background(), nil, Options{}); !errors.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
}

func TestRunDoesNotRetryConstraintViolations(t *testing.T) {
	violation := fmt.Errorf("insert match: %w: %w", store.ErrPersistence,
		errors.New("constraint failed: FOREIGN KEY constraint failed (787)"))
	st := &stubStore{
		projects: fixtures(),
		errs:     map[string]error{"older": violation},
	}
	p, _ := testPipeline(t, st, Retry{Attempts: 3})

	summary, err := p.Run(context.Background(), testProfile(t), Options{MinScore: 35, ReferenceTime: ref})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.calls["older"] != 1 {
		t.Fatalf("expected a single attempt for a constraint violation, got %d", st.calls["older"])
	}
	if summary.Failed != 1 || summary.Matched != 1 || summary.Matches[0].ProjectID != "newer" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
