package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/project-matcher/internal/project"
	"github.com/spigell/project-matcher/internal/store"
)

var ref = time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

func matched(id, company string, score float64, created, at time.Time) store.MatchedProject {
	return store.MatchedProject{
		Match: store.Match{
			RunID:       "run",
			ProjectID:   id,
			Score:       score,
			Explanation: []string{"exact keyword score: 30.00", "total score: 30.00"},
			MatchedAt:   at,
		},
		Project: project.Project{
			ID:        id,
			Link:      "https://example.com/" + id,
			Title:     "Project " + id,
			Company:   company,
			Keywords:  "Go, AWS",
			CreatedAt: created,
		},
	}
}

func TestNewStatistics(t *testing.T) {
	matches := []store.MatchedProject{
		matched("a", "Acme", 40, ref.Add(-48*time.Hour), ref.Add(-time.Hour)),
		matched("b", "Acme", 60, ref.Add(-72*time.Hour), ref),
		matched("c", "N/A", 20, time.Time{}, ref.Add(-2*time.Hour)),
		matched("d", "Globex", 80, ref.Add(-24*time.Hour), ref.Add(-3*time.Hour)),
	}

	stats := NewStatistics(matches)
	assert.Equal(t, 4, stats.TotalMatches)
	assert.InDelta(t, 50, stats.AverageScore, 1e-9)
	assert.True(t, stats.LatestMatch.Equal(ref))
	assert.True(t, stats.OldestProject.Equal(ref.Add(-72*time.Hour)))
	assert.Equal(t, 2, stats.DistinctCompanies)

	assert.Equal(t, Statistics{}, NewStatistics(nil))
}

func TestHistogramBoundaries(t *testing.T) {
	var matches []store.MatchedProject
	for _, score := range []float64{0, 29.99, 30, 50, 50.01, 69.99, 70, 100} {
		matches = append(matches, matched("x", "Acme", score, ref, ref))
	}

	got := Histogram(matches)
	require.Len(t, got, 4)
	for i, label := range []string{"<30", "30-50", "50-70", ">=70"} {
		assert.Equal(t, label, got[i].Label)
		assert.Equal(t, 2, got[i].Count, label)
	}

	empty := Histogram(nil)
	require.Len(t, empty, 4)
	for _, b := range empty {
		assert.Zero(t, b.Count)
	}
}

func TestTopCompanies(t *testing.T) {
	matches := []store.MatchedProject{
		matched("1", "Beta", 40, ref, ref),
		matched("2", "Beta", 60, ref, ref),
		matched("3", "Alpha", 70, ref, ref),
		matched("4", "Alpha", 30, ref, ref),
		matched("5", "Gamma", 90, ref, ref),
		matched("6", "Delta", 90, ref, ref),
		matched("7", "N/A", 90, ref, ref),
		matched("8", "N/A", 90, ref, ref),
		matched("9", "N/A", 90, ref, ref),
		matched("10", "  ", 90, ref, ref),
	}

	got := TopCompanies(matches, 10)
	require.Len(t, got, 4)
	assert.Equal(t, "Alpha", got[0].Company, "equal counts and averages fall back to name")
	assert.Equal(t, "Beta", got[1].Company)
	assert.Equal(t, 2, got[0].Matches)
	assert.InDelta(t, 50, got[0].AverageScore, 1e-9)
	assert.Equal(t, "Delta", got[2].Company)
	assert.Equal(t, "Gamma", got[3].Company)

	assert.Len(t, TopCompanies(matches, 1), 1)
}

func TestBuildFromStore(t *testing.T) {
	ctx := context.Background()
	s := store.OpenMemory(t)

	recent := matched("recent", "Acme", 55, ref.Add(-24*time.Hour), ref.Add(-24*time.Hour))
	stale := matched("stale", "Globex", 90, ref.Add(-20*24*time.Hour), ref.Add(-8*24*time.Hour))

	for _, m := range []store.MatchedProject{recent, stale} {
		_, err := s.SaveProject(ctx, m.Project)
		require.NoError(t, err)
		match := m.Match
		require.NoError(t, s.InsertMatch(ctx, &match))
	}

	rep, err := Build(ctx, s, Options{ReferenceTime: ref})
	require.NoError(t, err)

	assert.True(t, rep.From.Equal(ref.Add(-DefaultWindow)))
	assert.Equal(t, 1, rep.Statistics.TotalMatches)
	assert.InDelta(t, 55, rep.Statistics.AverageScore, 1e-9)
	require.Len(t, rep.TopCompanies, 1)
	assert.Equal(t, "Acme", rep.TopCompanies[0].Company)
	assert.Equal(t, 1, rep.Histogram[2].Count)

	wide, err := Build(ctx, s, Options{ReferenceTime: ref, Window: 30 * 24 * time.Hour})
	require.NoError(t, err)
	assert.Equal(t, 2, wide.Statistics.TotalMatches)
}

func TestWriteCSV(t *testing.T) {
	low := matched("low", "Acme", 31.5, ref, ref)
	high := matched("high", "Globex; GmbH", 72.25, time.Time{}, ref)
	high.Project.IsFeatured = true

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []store.MatchedProject{low, high}))

	r := csv.NewReader(&buf)
	r.Comma = Separator
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, header, records[0])
	assert.Equal(t, "Globex; GmbH", records[1][1])
	assert.Equal(t, "", records[1][4])
	assert.Equal(t, "true", records[1][6])
	assert.Equal(t, "72.25", records[1][8])
	assert.Equal(t, "exact keyword score: 30.00\ntotal score: 30.00", records[1][9])
	assert.Equal(t, "2024-03-31 12:00:00", records[2][4])
	assert.Equal(t, "31.50", records[2][8])
}
