// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package matchstore persists projects and ranked match rows in
// Postgres. Writes are idempotent upserts keyed by
// (project_id, project_slug, run_at, rank), so re-running a match for
// the same instant cannot duplicate rows.
package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/daleelhub/daleel/services/matcher"
)

// pgUndefinedColumn is the Postgres error code for a missing column.
const pgUndefinedColumn = "42703"

// Connect opens a Postgres pool through the pgx stdlib driver.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("matchstore: connecting: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Store writes match results.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	db     *sqlx.DB
	table  string
	logger *slog.Logger
}

// NewStore creates a Store writing to the given table. A nil logger uses
// slog.Default.
func NewStore(db *sqlx.DB, table string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, table: table, logger: logger}
}

// matchRow is the flat persisted shape of one ranked result.
type matchRow struct {
	ProjectID   string `db:"project_id"`
	ProjectSlug string `db:"project_slug"`
	ProgramID   string `db:"program_id"`
	ProgramName string `db:"program_name"`
	SourceURL   string `db:"source_url"`
	Rank        int    `db:"rank"`

	ScoreRule     float64 `db:"score_rule"`
	ScoreContent  float64 `db:"score_content"`
	ScoreGoal     float64 `db:"score_goal"`
	ScoreFinalRaw float64 `db:"score_final_raw"`
	ScoreFinalCal float64 `db:"score_final_cal"`
	RawDistance   float64 `db:"raw_distance"`

	SubsSector  float64 `db:"subs_sector"`
	SubsStage   float64 `db:"subs_stage"`
	SubsFunding float64 `db:"subs_funding"`

	Reasons         string `db:"reasons"`
	Improvements    string `db:"improvements"`
	EvidenceProject string `db:"evidence_project"`
	EvidenceProgram string `db:"evidence_program"`
	Violations      string `db:"violations"`

	RunAt string `db:"run_at"`
}

// Full and required-subset column lists. The subset matches the columns
// every deployment's table is guaranteed to have; the optional columns
// are dropped when the table predates them.
const (
	fullColumns = `project_id, project_slug, program_id, program_name, source_url, rank,
		score_rule, score_content, score_goal, score_final_raw, score_final_cal, raw_distance,
		subs_sector, subs_stage, subs_funding,
		reasons, improvements, evidence_project, evidence_program, violations, run_at`
	fullValues = `:project_id, :project_slug, :program_id, :program_name, :source_url, :rank,
		:score_rule, :score_content, :score_goal, :score_final_raw, :score_final_cal, :raw_distance,
		:subs_sector, :subs_stage, :subs_funding,
		:reasons, :improvements, :evidence_project, :evidence_program, :violations, :run_at`

	requiredColumns = `project_id, project_slug, program_id, program_name, source_url, rank,
		score_rule, score_content, score_goal, score_final_raw, score_final_cal, raw_distance, run_at`
	requiredValues = `:project_id, :project_slug, :program_id, :program_name, :source_url, :rank,
		:score_rule, :score_content, :score_goal, :score_final_raw, :score_final_cal, :raw_distance, :run_at`

	fullUpdateSet = `program_id = excluded.program_id, program_name = excluded.program_name,
		source_url = excluded.source_url,
		score_rule = excluded.score_rule, score_content = excluded.score_content,
		score_goal = excluded.score_goal, score_final_raw = excluded.score_final_raw,
		score_final_cal = excluded.score_final_cal, raw_distance = excluded.raw_distance,
		subs_sector = excluded.subs_sector, subs_stage = excluded.subs_stage,
		subs_funding = excluded.subs_funding,
		reasons = excluded.reasons, improvements = excluded.improvements,
		evidence_project = excluded.evidence_project, evidence_program = excluded.evidence_program,
		violations = excluded.violations`
	requiredUpdateSet = `program_id = excluded.program_id, program_name = excluded.program_name,
		source_url = excluded.source_url,
		score_rule = excluded.score_rule, score_content = excluded.score_content,
		score_goal = excluded.score_goal, score_final_raw = excluded.score_final_raw,
		score_final_cal = excluded.score_final_cal, raw_distance = excluded.raw_distance`
)

func rowFromResult(run matcher.MatchRun, r matcher.PackedResult) matchRow {
	return matchRow{
		ProjectID:       run.ProjectID,
		ProjectSlug:     run.ProjectSlug,
		ProgramID:       r.ProgramID,
		ProgramName:     r.ProgramName,
		SourceURL:       r.SourceURL,
		Rank:            r.Rank,
		ScoreRule:       r.Scores.Rule,
		ScoreContent:    r.Scores.Content,
		ScoreGoal:       r.Scores.Goal,
		ScoreFinalRaw:   r.Scores.FinalRaw,
		ScoreFinalCal:   r.Scores.FinalCal,
		RawDistance:     r.Scores.RawDistance,
		SubsSector:      r.Subscores.Sector,
		SubsStage:       r.Subscores.Stage,
		SubsFunding:     r.Subscores.Funding,
		Reasons:         mustJSON(r.Reasons),
		Improvements:    mustJSON(r.Improvements),
		EvidenceProject: mustJSON(r.Evidence.Project),
		EvidenceProgram: mustJSON(r.Evidence.Program),
		Violations:      mustJSON(r.Violations),
		RunAt:           run.RunAt,
	}
}

// mustJSON encodes values that cannot fail (slices of strings/structs).
func mustJSON(v any) string {
	if v == nil {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// InsertMatchRows upserts all result rows of one run. If the full insert
// hits an undefined column (older table without the optional columns),
// it retries with the required subset. The returned count comes from a
// verification query, not the driver's RowsAffected, so it reflects what
// is actually in the table for this run.
func (s *Store) InsertMatchRows(ctx context.Context, run matcher.MatchRun) (int, error) {
	if len(run.Results) == 0 {
		return 0, nil
	}

	rows := make([]matchRow, 0, len(run.Results))
	for _, r := range run.Results {
		rows = append(rows, rowFromResult(run, r))
	}

	fullQuery := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)
		 ON CONFLICT (project_id, project_slug, run_at, rank) DO UPDATE SET %s`,
		s.table, fullColumns, fullValues, fullUpdateSet,
	)

	if _, err := s.db.NamedExecContext(ctx, fullQuery, rows); err != nil {
		var pgErr *pgconn.PgError
		if !errors.As(err, &pgErr) || pgErr.Code != pgUndefinedColumn {
			return 0, fmt.Errorf("matchstore: inserting match rows: %w", err)
		}

		s.logger.Warn("match table missing optional columns, retrying with required subset",
			slog.String("table", s.table),
			slog.String("column", pgErr.ColumnName),
		)
		subsetQuery := fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s)
			 ON CONFLICT (project_id, project_slug, run_at, rank) DO UPDATE SET %s`,
			s.table, requiredColumns, requiredValues, requiredUpdateSet,
		)
		if _, err := s.db.NamedExecContext(ctx, subsetQuery, rows); err != nil {
			return 0, fmt.Errorf("matchstore: inserting required-subset rows: %w", err)
		}
	}

	var inserted int
	verify := fmt.Sprintf(`SELECT count(*) FROM %s WHERE project_id = $1 AND run_at = $2`, s.table)
	if err := s.db.GetContext(ctx, &inserted, verify, run.ProjectID, run.RunAt); err != nil {
		return 0, fmt.Errorf("matchstore: verifying inserted rows: %w", err)
	}
	return inserted, nil
}
