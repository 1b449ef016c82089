package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/project-matcher/internal/project"
)

const projectColumns = `p.id, p.link, p.title, p.company, p.description, p.keywords,
	p.created_at, p.is_featured, p.is_end_customer, p.ingested_at`

// SaveProject stores p unless its link is already known, in which case only
// the ingestion time is refreshed. It reports whether a new row was created.
func (s *Store) SaveProject(ctx context.Context, p project.Project) (bool, error) {
	if p.ID == "" {
		p.ID = project.IDFromLink(p.Link)
	}
	if p.IngestedAt.IsZero() {
		p.IngestedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, persistence("begin save project", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO projects
			(id, link, title, company, description, keywords, created_at, is_featured, is_end_customer, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Link, p.Title, p.Company, p.Description, p.Keywords,
		formatTime(p.CreatedAt), p.IsFeatured, p.IsEndCustomer, formatTime(p.IngestedAt),
	)
	if err != nil {
		return false, persistence("insert project", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, persistence("insert project", err)
	}

	inserted := affected > 0
	if !inserted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE projects SET ingested_at = ? WHERE link = ?`,
			formatTime(p.IngestedAt), p.Link,
		); err != nil {
			return false, persistence("refresh project", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, persistence("commit save project", err)
	}

	s.logger.Debug("project saved",
		zap.String("project_id", p.ID),
		zap.Bool("inserted", inserted),
	)

	return inserted, nil
}

// Project returns the project with the given identifier.
func (s *Store) Project(ctx context.Context, id string) (project.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = ?`, id)

	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return project.Project{}, persistence("get project", err)
	}
	return p, nil
}

// ProjectsCreatedBetween returns projects whose source creation time lies in
// [from, to], newest first. Projects with an unknown creation time are never
// returned.
func (s *Store) ProjectsCreatedBetween(ctx context.Context, from, to time.Time) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		WHERE p.created_at IS NOT NULL AND p.created_at >= ? AND p.created_at <= ?
		ORDER BY p.created_at DESC, p.id`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, persistence("select projects", err)
	}
	defer rows.Close()

	var out []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, persistence("scan project", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("select projects", err)
	}

	return out, nil
}

// CountProjects returns the number of stored projects.
func (s *Store) CountProjects(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&n); err != nil {
		return 0, persistence("count projects", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanProject scans the projectColumns. lead receives any columns selected
// before them.
func scanProject(row scanner, lead ...any) (project.Project, error) {
	var (
		p                   project.Project
		created, ingested   sql.NullString
		featured, endCustom bool
	)

	dest := append(lead,
		&p.ID, &p.Link, &p.Title, &p.Company, &p.Description, &p.Keywords,
		&created, &featured, &endCustom, &ingested,
	)
	if err := row.Scan(dest...); err != nil {
		return project.Project{}, err
	}

	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return project.Project{}, fmt.Errorf("created_at: %w", err)
	}
	if p.IngestedAt, err = parseTime(ingested); err != nil {
		return project.Project{}, fmt.Errorf("ingested_at: %w", err)
	}
	p.IsFeatured = featured
	p.IsEndCustomer = endCustom

	return p, nil
}
