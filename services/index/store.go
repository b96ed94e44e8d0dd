// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index persists the program catalog in a local sqlite-vec
// database and answers cosine-distance similarity queries over it. One
// collection is one SQLite file under the persist directory.
package index

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/daleelhub/daleel/services/llm"
)

func init() {
	// Register sqlite-vec as an auto-loadable extension for the
	// mattn/go-sqlite3 driver.
	vec.Auto()
}

// Document is one indexed program: the text that was embedded plus the
// full program record as metadata.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]any
}

// Candidate is a similarity search hit. Distance is cosine distance, so
// lower is closer.
type Candidate struct {
	Doc      Document
	Distance float64
}

// Store is a vector index over program documents.
//
// The embedding dimension is fixed by the first document added and
// recorded in the database, so later opens and adds are checked against
// it.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	db         *sql.DB
	embedder   llm.Embedder
	collection string
	logger     *slog.Logger

	mu  sync.Mutex
	dim int // 0 until the vec table exists
}

// Open opens (or creates) the collection database under persistDir.
func Open(persistDir, collection string, embedder llm.Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, fmt.Errorf("index: creating persist dir: %w", err)
	}

	path := filepath.Join(persistDir, collection+".db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("index: opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: verifying %s: %w", path, err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS programs (
			id TEXT UNIQUE NOT NULL,
			content TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS index_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: creating schema: %w", err)
	}

	s := &Store{db: db, embedder: embedder, collection: collection, logger: logger}

	// Pick up the dimension from a previous build, if any.
	var dimStr string
	err = db.QueryRow(`SELECT value FROM index_meta WHERE key = 'embedding_dim'`).Scan(&dimStr)
	switch err {
	case nil:
		fmt.Sscanf(dimStr, "%d", &s.dim)
	case sql.ErrNoRows:
	default:
		db.Close()
		return nil, fmt.Errorf("index: reading embedding_dim: %w", err)
	}

	logger.Info("vector index opened",
		slog.String("collection", collection),
		slog.String("path", path),
		slog.Int("embedding_dim", s.dim),
	)
	return s, nil
}

// Collection returns the collection name this store was opened with.
func (s *Store) Collection() string { return s.collection }

// Close releases the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// ensureVecTable creates the vec0 virtual table on first use, pinning the
// embedding dimension.
func (s *Store) ensureVecTable(dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim != 0 {
		if s.dim != dim {
			return fmt.Errorf("index: embedding dimension %d does not match index dimension %d", dim, s.dim)
		}
		return nil
	}

	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_programs USING vec0(embedding float[%d])`, dim)
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("index: creating vec table: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO index_meta (key, value) VALUES ('embedding_dim', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", dim),
	); err != nil {
		return fmt.Errorf("index: recording embedding_dim: %w", err)
	}
	s.dim = dim
	return nil
}

// Add embeds the document content and upserts both the program row and
// its vector. Re-adding an existing id replaces the previous entry.
func (s *Store) Add(ctx context.Context, doc Document) error {
	embedding, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("index: embedding %q: %w", doc.ID, err)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("index: empty embedding for %q", doc.ID)
	}
	if err := s.ensureVecTable(len(embedding)); err != nil {
		return err
	}

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("index: encoding metadata for %q: %w", doc.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO programs (id, content, metadata) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata`,
		doc.ID, doc.Content, string(metaJSON),
	); err != nil {
		return fmt.Errorf("index: upserting program %q: %w", doc.ID, err)
	}

	var rowid int64
	if err := tx.QueryRowContext(ctx, `SELECT rowid FROM programs WHERE id = ?`, doc.ID).Scan(&rowid); err != nil {
		return fmt.Errorf("index: resolving rowid for %q: %w", doc.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO vec_programs (rowid, embedding) VALUES (?, ?)`,
		rowid, encodeFloat32Blob(embedding),
	); err != nil {
		return fmt.Errorf("index: upserting vector for %q: %w", doc.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: committing %q: %w", doc.ID, err)
	}
	return nil
}

// SimilaritySearchWithScore embeds the query and returns the k nearest
// documents by cosine distance, closest first.
func (s *Store) SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]Candidate, error) {
	if s.dim == 0 {
		// Nothing indexed yet.
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: embedding query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.content, p.metadata,
		       vec_distance_cosine(v.embedding, ?) AS distance
		FROM vec_programs v
		JOIN programs p ON p.rowid = v.rowid
		ORDER BY distance ASC
		LIMIT ?
	`, encodeFloat32Blob(queryVec), k)
	if err != nil {
		return nil, fmt.Errorf("index: similarity search: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			id, content, metaJSON string
			distance              float64
		)
		if err := rows.Scan(&id, &content, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("index: scanning search row: %w", err)
		}
		if math.IsNaN(distance) || math.IsInf(distance, 0) {
			s.logger.Warn("dropping candidate with invalid distance", slog.String("id", id))
			continue
		}
		var meta map[string]any
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			s.logger.Warn("dropping candidate with corrupt metadata",
				slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		out = append(out, Candidate{
			Doc:      Document{ID: id, Content: content, Metadata: meta},
			Distance: distance,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterating search rows: %w", err)
	}
	return out, nil
}

// Count returns the number of indexed programs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM programs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: counting programs: %w", err)
	}
	return n, nil
}

// encodeFloat32Blob serializes a vector in the little-endian layout
// sqlite-vec expects.
func encodeFloat32Blob(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}
