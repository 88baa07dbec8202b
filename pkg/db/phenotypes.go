// Package db keeps the sqlite phenotype index used by phenotype search.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yumyai/qtlview/logger"
	"github.com/yumyai/qtlview/pkg/dataset"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	queryTimeout       = 20 * time.Second
	DefaultSearchLimit = 100
)

const schema = `
CREATE TABLE IF NOT EXISTS phenotypes (
	dataset_id  TEXT NOT NULL,
	id          TEXT NOT NULL,
	data_name   TEXT NOT NULL,
	short_name  TEXT NOT NULL,
	description TEXT NOT NULL,
	category    TEXT NOT NULL,
	PRIMARY KEY (dataset_id, id)
);
CREATE INDEX IF NOT EXISTS phenotypes_category ON phenotypes (dataset_id, category);
`

// PhenotypeIndex holds the searchable phenotypes of every pheno dataset.
type PhenotypeIndex struct {
	sql *sql.DB
}

// Phenotype is one search hit.
type Phenotype struct {
	DatasetID   string `json:"dataset_id"`
	ID          string `json:"id"`
	DataName    string `json:"data_name"`
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// SearchQuery narrows a phenotype search. Empty fields match everything.
type SearchQuery struct {
	DatasetID string
	Term      string
	Category  string
	Limit     int
}

// OpenPhenotypeIndex opens (or creates) the index at dsn. Use ":memory:"
// for a process-local index.
func OpenPhenotypeIndex(ctx context.Context, dsn string) (*PhenotypeIndex, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open phenotype index: %w", err)
	}
	// every connection to :memory: is a separate database
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create phenotype schema: %w", err)
	}
	return &PhenotypeIndex{sql: conn}, nil
}

func (ix *PhenotypeIndex) Close() error {
	return ix.sql.Close()
}

// Load replaces the indexed phenotypes of one dataset. Only phenotypes
// offered for selection are stored.
func (ix *PhenotypeIndex) Load(ctx context.Context, ds *dataset.Dataset) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := ix.sql.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("fail to begin tx %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM phenotypes WHERE dataset_id = ?`, ds.ID); err != nil {
		return 0, fmt.Errorf("clear phenotypes of %s: %w", ds.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO phenotypes (dataset_id, id, data_name, short_name, description, category)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare phenotype insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, len(ds.Phenotypes))
	for id := range ds.Phenotypes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	n := 0
	for _, id := range ids {
		p := ds.Phenotypes[id]
		if !p.Searchable() {
			continue
		}
		if _, err := stmt.ExecContext(ctx, ds.ID, id, p.DataName, p.ShortName, p.Description, p.Category); err != nil {
			return 0, fmt.Errorf("insert phenotype %s: %w", id, err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit phenotypes of %s: %w", ds.ID, err)
	}

	logger.Info("Indexed phenotypes", zap.String("dataset", ds.ID), zap.Int("count", n))
	return n, nil
}

// LoadRegistry indexes every pheno dataset of the registry.
func (ix *PhenotypeIndex) LoadRegistry(ctx context.Context, reg *dataset.Registry) error {
	for _, ds := range reg.List() {
		if len(ds.Phenotypes) == 0 {
			continue
		}
		if _, err := ix.Load(ctx, ds); err != nil {
			return err
		}
	}
	return nil
}

// Search matches the term against id, short name and description.
func (ix *PhenotypeIndex) Search(ctx context.Context, q SearchQuery) ([]Phenotype, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		where []string
		args  []interface{}
	)
	if q.DatasetID != "" {
		where = append(where, "dataset_id = ?")
		args = append(args, q.DatasetID)
	}
	if term := strings.TrimSpace(q.Term); term != "" {
		like := "%" + term + "%"
		where = append(where, "(id LIKE ? OR short_name LIKE ? OR description LIKE ?)")
		args = append(args, like, like, like)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}

	query := `SELECT dataset_id, id, data_name, short_name, description, category FROM phenotypes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY short_name COLLATE NOCASE, id LIMIT ?"

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	args = append(args, limit)

	rows, err := ix.sql.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Error("Phenotype search failed", zap.Error(err))
		return nil, fmt.Errorf("phenotype search: %w", err)
	}
	defer rows.Close()

	out := []Phenotype{}
	for rows.Next() {
		var p Phenotype
		if err := rows.Scan(&p.DatasetID, &p.ID, &p.DataName, &p.ShortName, &p.Description, &p.Category); err != nil {
			return nil, fmt.Errorf("failed to scan phenotype row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Categories lists the distinct categories of a dataset, sorted.
func (ix *PhenotypeIndex) Categories(ctx context.Context, datasetID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := ix.sql.QueryContext(ctx,
		`SELECT DISTINCT category FROM phenotypes WHERE dataset_id = ? AND category != '' ORDER BY category`, datasetID)
	if err != nil {
		return nil, fmt.Errorf("phenotype categories: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
