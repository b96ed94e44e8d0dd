// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matchstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/daleelhub/daleel/services/catalog"
	"github.com/daleelhub/daleel/services/matcher"
)

// ErrNotFound reports a lookup for a project id that does not exist.
var ErrNotFound = errors.New("matchstore: not found")

// ProjectStore persists the projects that match runs are keyed on.
//
// Thread Safety: ProjectStore is safe for concurrent use.
type ProjectStore struct {
	db         *sqlx.DB
	table      string
	matchTable string
	logger     *slog.Logger
}

// NewProjectStore creates a ProjectStore over the given projects table.
// matchTable is the match results table used by LatestMatches.
func NewProjectStore(db *sqlx.DB, table, matchTable string, logger *slog.Logger) *ProjectStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectStore{db: db, table: table, matchTable: matchTable, logger: logger}
}

type projectRow struct {
	ID          string  `db:"id"`
	Slug        string  `db:"slug"`
	Name        string  `db:"name"`
	Description string  `db:"description"`
	Stage       string  `db:"stage"`
	Sectors     string  `db:"sectors"`
	Goals       string  `db:"goals"`
	FundingNeed float64 `db:"funding_need"`
}

func (r projectRow) toProject() matcher.Project {
	var sectors, goals []string
	json.Unmarshal([]byte(r.Sectors), &sectors)
	json.Unmarshal([]byte(r.Goals), &goals)
	return matcher.Project{
		ID:          r.ID,
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		Stage:       r.Stage,
		Sectors:     sectors,
		Goals:       goals,
		FundingNeed: r.FundingNeed,
	}
}

// CreateProject stores a new project. A missing ID gets a UUID and a
// missing slug is derived from the name, suffixed -2, -3, ... until it is
// free.
func (p *ProjectStore) CreateProject(ctx context.Context, proj matcher.Project) (matcher.Project, error) {
	if proj.ID == "" {
		proj.ID = uuid.NewString()
	}
	if proj.Slug == "" {
		proj.Slug = catalog.Slugify(proj.Name)
	}

	slug, err := p.freeSlug(ctx, proj.Slug)
	if err != nil {
		return matcher.Project{}, err
	}
	proj.Slug = slug

	query := fmt.Sprintf(`
		INSERT INTO %s (id, slug, name, description, stage, sectors, goals, funding_need)
		VALUES (:id, :slug, :name, :description, :stage, :sectors, :goals, :funding_need)`,
		p.table,
	)
	row := projectRow{
		ID:          proj.ID,
		Slug:        proj.Slug,
		Name:        proj.Name,
		Description: proj.Description,
		Stage:       proj.Stage,
		Sectors:     mustJSON(proj.Sectors),
		Goals:       mustJSON(proj.Goals),
		FundingNeed: proj.FundingNeed,
	}
	if _, err := p.db.NamedExecContext(ctx, query, row); err != nil {
		return matcher.Project{}, fmt.Errorf("matchstore: creating project: %w", err)
	}

	p.logger.Info("project created",
		slog.String("project_id", proj.ID), slog.String("slug", proj.Slug))
	return proj, nil
}

// freeSlug returns base if unused, otherwise base-2, base-3, ...
func (p *ProjectStore) freeSlug(ctx context.Context, base string) (string, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE slug = $1)`, p.table)
	slug := base
	for n := 2; ; n++ {
		var taken bool
		if err := p.db.GetContext(ctx, &taken, query, slug); err != nil {
			return "", fmt.Errorf("matchstore: checking slug: %w", err)
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, n)
	}
}

// GetProject loads one project by id.
func (p *ProjectStore) GetProject(ctx context.Context, id string) (matcher.Project, error) {
	query := fmt.Sprintf(`
		SELECT id, slug, name, description, stage, sectors, goals, funding_need
		FROM %s WHERE id = $1`, p.table)

	var row projectRow
	if err := p.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return matcher.Project{}, fmt.Errorf("%w: project %q", ErrNotFound, id)
		}
		return matcher.Project{}, fmt.Errorf("matchstore: loading project: %w", err)
	}
	return row.toProject(), nil
}

// MatchRecord is one persisted ranked row as read back for the API.
// created_at is filled by the database default on insert.
type MatchRecord struct {
	Rank          int       `db:"rank" json:"rank"`
	ProgramID     string    `db:"program_id" json:"program_id"`
	ProgramName   string    `db:"program_name" json:"program_name"`
	SourceURL     string    `db:"source_url" json:"source_url,omitempty"`
	ScoreFinalRaw float64   `db:"score_final_raw" json:"score_final_raw"`
	ScoreFinalCal float64   `db:"score_final_cal" json:"score_final_cal"`
	RawDistance   float64   `db:"raw_distance" json:"raw_distance"`
	RunAt         string    `db:"run_at" json:"run_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// LatestMatches returns the rows of the most recent run for a project,
// ordered by rank.
func (p *ProjectStore) LatestMatches(ctx context.Context, projectID string, limit int) ([]MatchRecord, error) {
	if limit < 1 {
		limit = 10
	}
	query := fmt.Sprintf(`
		SELECT rank, program_id, program_name, source_url,
		       score_final_raw, score_final_cal, raw_distance, run_at, created_at
		FROM %s
		WHERE project_id = $1
		  AND run_at = (SELECT max(run_at) FROM %s WHERE project_id = $1)
		ORDER BY rank ASC
		LIMIT $2`, p.matchTable, p.matchTable)

	var out []MatchRecord
	if err := p.db.SelectContext(ctx, &out, query, projectID, limit); err != nil {
		return nil, fmt.Errorf("matchstore: loading latest matches: %w", err)
	}
	return out, nil
}
