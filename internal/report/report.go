// Package report summarises recorded matches.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spigell/project-matcher/internal/project"
	"github.com/spigell/project-matcher/internal/store"
)

const (
	// DefaultWindow is the span of match activity a report covers.
	DefaultWindow = 7 * 24 * time.Hour
	// DefaultTopCompanies is the size of the company ranking.
	DefaultTopCompanies = 10
)

// Source provides the matches recorded within a time range.
type Source interface {
	MatchesBetween(ctx context.Context, from, to time.Time) ([]store.MatchedProject, error)
}

type Options struct {
	Window        time.Duration
	ReferenceTime time.Time
	TopCompanies  int
}

// Statistics are zero valued when there are no matches.
type Statistics struct {
	TotalMatches      int
	AverageScore      float64
	LatestMatch       time.Time
	OldestProject     time.Time
	DistinctCompanies int
}

// Bucket counts scores between Min and Max. The first bucket excludes 30, the
// 30-50 bucket includes both bounds, 50-70 excludes both and the last bucket
// has no upper bound.
type Bucket struct {
	Label string
	Min   float64
	Max   float64
	Count int
}

type CompanyStat struct {
	Company      string
	Matches      int
	AverageScore float64
}

type Report struct {
	From         time.Time
	To           time.Time
	Statistics   Statistics
	Histogram    []Bucket
	TopCompanies []CompanyStat
}

var buckets = []Bucket{
	{Label: "<30", Min: 0, Max: 30},
	{Label: "30-50", Min: 30, Max: 50},
	{Label: "50-70", Min: 50, Max: 70},
	{Label: ">=70", Min: 70},
}

// Build reports on the matches recorded in the window ending at the reference time.
func Build(ctx context.Context, src Source, opts Options) (*Report, error) {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.ReferenceTime.IsZero() {
		opts.ReferenceTime = time.Now()
	}
	if opts.TopCompanies <= 0 {
		opts.TopCompanies = DefaultTopCompanies
	}

	from := opts.ReferenceTime.Add(-opts.Window)
	matches, err := src.MatchesBetween(ctx, from, opts.ReferenceTime)
	if err != nil {
		return nil, fmt.Errorf("loading matches: %w", err)
	}

	return &Report{
		From:         from,
		To:           opts.ReferenceTime,
		Statistics:   NewStatistics(matches),
		Histogram:    Histogram(matches),
		TopCompanies: TopCompanies(matches, opts.TopCompanies),
	}, nil
}

func NewStatistics(matches []store.MatchedProject) Statistics {
	var stats Statistics
	if len(matches) == 0 {
		return stats
	}

	companies := make(map[string]struct{})
	var total float64
	for _, m := range matches {
		total += m.Score
		if m.MatchedAt.After(stats.LatestMatch) {
			stats.LatestMatch = m.MatchedAt
		}
		if m.Project.HasCreated() && (stats.OldestProject.IsZero() || m.Project.CreatedAt.Before(stats.OldestProject)) {
			stats.OldestProject = m.Project.CreatedAt
		}
		if name, ok := companyName(m.Project.Company); ok {
			companies[name] = struct{}{}
		}
	}

	stats.TotalMatches = len(matches)
	stats.AverageScore = total / float64(len(matches))
	stats.DistinctCompanies = len(companies)
	return stats
}

// Histogram always returns every bucket, empty ones included.
func Histogram(matches []store.MatchedProject) []Bucket {
	out := make([]Bucket, len(buckets))
	copy(out, buckets)

	for _, m := range matches {
		out[bucketIndex(m.Score)].Count++
	}
	return out
}

func bucketIndex(score float64) int {
	switch {
	case score < 30:
		return 0
	case score <= 50:
		return 1
	case score < 70:
		return 2
	default:
		return 3
	}
}

// TopCompanies ranks companies by match count, then average score, then name.
// Blank and unavailable company names are ignored.
func TopCompanies(matches []store.MatchedProject, n int) []CompanyStat {
	type acc struct {
		count int
		total float64
	}
	byCompany := make(map[string]*acc)
	for _, m := range matches {
		name, ok := companyName(m.Project.Company)
		if !ok {
			continue
		}
		a, found := byCompany[name]
		if !found {
			a = &acc{}
			byCompany[name] = a
		}
		a.count++
		a.total += m.Score
	}

	stats := make([]CompanyStat, 0, len(byCompany))
	for name, a := range byCompany {
		stats = append(stats, CompanyStat{
			Company:      name,
			Matches:      a.count,
			AverageScore: a.total / float64(a.count),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Matches != stats[j].Matches {
			return stats[i].Matches > stats[j].Matches
		}
		if stats[i].AverageScore != stats[j].AverageScore {
			return stats[i].AverageScore > stats[j].AverageScore
		}
		return stats[i].Company < stats[j].Company
	})

	if n > 0 && len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

func companyName(company string) (string, bool) {
	if project.IsNotAvailable(company) {
		return "", false
	}
	return strings.TrimSpace(company), true
}
