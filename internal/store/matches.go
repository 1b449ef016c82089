package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/project-matcher/internal/project"
)

// Match is one scoring outcome kept for a project in a matching run.
type Match struct {
	ID          int64
	RunID       string
	ProjectID   string
	Score       float64
	Explanation []string
	Excluded    bool
	MatchedAt   time.Time
}

// MatchedProject is a match joined with the project it refers to.
type MatchedProject struct {
	Match
	Project project.Project
}

// Query selects a page of ranked matches.
type Query struct {
	MinScore float64
	// Limit <= 0 returns every row.
	Limit  int
	Offset int
}

// InsertMatch appends m and sets its ID.
func (s *Store) InsertMatch(ctx context.Context, m *Match) error {
	if m == nil {
		return fmt.Errorf("match is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO matches (run_id, project_id, score, explanation, excluded, matched_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.RunID, m.ProjectID, m.Score, strings.Join(m.Explanation, "\n"), m.Excluded, formatTime(m.MatchedAt),
	)
	if err != nil {
		return persistence("insert match", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return persistence("insert match", err)
	}
	m.ID = id

	return nil
}

// ListMatches returns matches ranked by score, newest project first on ties.
func (s *Store) ListMatches(ctx context.Context, q Query) ([]MatchedProject, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	return s.queryMatches(ctx, `
		WHERE m.score >= ?
		ORDER BY m.score DESC, p.created_at DESC, m.id DESC
		LIMIT ? OFFSET ?`,
		q.MinScore, limit, offset,
	)
}

// CountMatches returns the number of matches scoring at least minScore.
func (s *Store) CountMatches(ctx context.Context, minScore float64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches WHERE score >= ?`, minScore,
	).Scan(&n); err != nil {
		return 0, persistence("count matches", err)
	}
	return n, nil
}

// MatchesBetween returns matches created in [from, to], oldest first.
func (s *Store) MatchesBetween(ctx context.Context, from, to time.Time) ([]MatchedProject, error) {
	return s.queryMatches(ctx, `
		WHERE m.matched_at >= ? AND m.matched_at <= ?
		ORDER BY m.matched_at, m.id`,
		formatTime(from), formatTime(to),
	)
}

func (s *Store) queryMatches(ctx context.Context, tail string, args ...any) ([]MatchedProject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.run_id, m.project_id, m.score, m.explanation, m.excluded, m.matched_at, `+projectColumns+`
		FROM matches m
		JOIN projects p ON p.id = m.project_id
		`+tail, args...)
	if err != nil {
		return nil, persistence("select matches", err)
	}
	defer rows.Close()

	var out []MatchedProject
	for rows.Next() {
		mp, err := scanMatchedProject(rows)
		if err != nil {
			return nil, persistence("scan match", err)
		}
		out = append(out, mp)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("select matches", err)
	}

	return out, nil
}

func scanMatchedProject(rows *sql.Rows) (MatchedProject, error) {
	var (
		mp          MatchedProject
		explanation string
		matchedAt   sql.NullString
	)

	p, err := scanProject(rows,
		&mp.ID, &mp.RunID, &mp.ProjectID, &mp.Score, &explanation, &mp.Excluded, &matchedAt,
	)
	if err != nil {
		return MatchedProject{}, err
	}
	mp.Project = p

	if mp.MatchedAt, err = parseTime(matchedAt); err != nil {
		return MatchedProject{}, fmt.Errorf("matched_at: %w", err)
	}

	if explanation != "" {
		mp.Explanation = strings.Split(explanation, "\n")
	}

	return mp, nil
}
