// Package sqlite exports a finished census aggregate to a local SQLite
// database using database/sql. Each aggregate maps to one table; all writes
// happen inside a single transaction so a failed export never leaves a
// half-written database behind.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"census/internal/census"
)

// Exporter writes Final aggregates to a SQLite file.
type Exporter struct {
	db *sql.DB
}

// Open opens a SQLite connection using the provided DSN and returns an
// Exporter plus a close function for cleanup.
//
// DSN is passed directly to database/sql; for example:
//
//	"file:census.db?cache=shared"
//	"census.db"
func Open(ctx context.Context, dsn string) (*Exporter, func(), error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Exporter{db: db}, closeFn, nil
}

// schema holds the DDL for every export table. Tables are dropped and
// recreated on each export so rerunning a job replaces the previous result.
var schema = []string{
	`CREATE TABLE census_summary (
		job              TEXT NOT NULL,
		rows             INTEGER NOT NULL,
		dependent        INTEGER NOT NULL,
		working          INTEGER NOT NULL,
		dependency_index REAL,
		invalid_ages     INTEGER NOT NULL,
		exported_at      TEXT NOT NULL
	)`,
	`CREATE TABLE census_strata (
		stratum TEXT NOT NULL,
		count   INTEGER NOT NULL,
		pct     REAL NOT NULL
	)`,
	`CREATE TABLE census_age_stats (
		species TEXT NOT NULL,
		gender  TEXT NOT NULL,
		count   INTEGER NOT NULL,
		mean    REAL NOT NULL,
		median  REAL NOT NULL
	)`,
	`CREATE TABLE census_brackets (
		species TEXT NOT NULL,
		gender  TEXT NOT NULL,
		bracket TEXT NOT NULL,
		count   INTEGER NOT NULL
	)`,
	`CREATE TABLE census_flows (
		rank   INTEGER NOT NULL,
		origin TEXT NOT NULL,
		dest   TEXT NOT NULL,
		count  INTEGER NOT NULL
	)`,
	`CREATE TABLE census_pyramid (
		age_group TEXT NOT NULL,
		gender    TEXT NOT NULL,
		count     INTEGER NOT NULL
	)`,
}

var tableNames = []string{
	"census_summary",
	"census_strata",
	"census_age_stats",
	"census_brackets",
	"census_flows",
	"census_pyramid",
}

// Export writes the full aggregate into the database. Existing export tables
// are replaced.
func (e *Exporter) Export(ctx context.Context, job string, f *census.Final) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, name := range tableNames {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return fmt.Errorf("sqlite: drop %s: %w", name, err)
		}
	}
	for _, ddl := range schema {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: create table: %w", err)
		}
	}

	var depIdx any
	if f.DependencyIndex != nil {
		depIdx = *f.DependencyIndex
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO census_summary (job, rows, dependent, working, dependency_index, invalid_ages, exported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job, f.Rows, f.Dependent, f.Working, depIdx, f.InvalidAges,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert summary: %w", err)
	}

	if err := insertRows(ctx, tx,
		"INSERT INTO census_strata (stratum, count, pct) VALUES (?, ?, ?)",
		strataRows(f)); err != nil {
		return err
	}
	if err := insertRows(ctx, tx,
		"INSERT INTO census_age_stats (species, gender, count, mean, median) VALUES (?, ?, ?, ?, ?)",
		ageRows(f)); err != nil {
		return err
	}
	if err := insertRows(ctx, tx,
		"INSERT INTO census_brackets (species, gender, bracket, count) VALUES (?, ?, ?, ?)",
		bracketRows(f)); err != nil {
		return err
	}
	if err := insertRows(ctx, tx,
		"INSERT INTO census_flows (rank, origin, dest, count) VALUES (?, ?, ?, ?)",
		flowRows(f)); err != nil {
		return err
	}
	if err := insertRows(ctx, tx,
		"INSERT INTO census_pyramid (age_group, gender, count) VALUES (?, ?, ?)",
		pyramidRows(f)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// insertRows executes the same prepared INSERT for every row inside the
// transaction.
func insertRows(ctx context.Context, tx *sql.Tx, stmtSQL string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("sqlite: insert: %w", err)
		}
	}
	return nil
}

func strataRows(f *census.Final) [][]any {
	keys := make([]string, 0, len(f.Strata))
	for k := range f.Strata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k, f.Strata[k], f.StrataPct[k]})
	}
	return rows
}

func ageRows(f *census.Final) [][]any {
	keys := make([]census.GroupKey, 0, len(f.Ages))
	for k := range f.Ages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Species != keys[j].Species {
			return keys[i].Species < keys[j].Species
		}
		return keys[i].Gender < keys[j].Gender
	})

	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		a := f.Ages[k]
		rows = append(rows, []any{k.Species, k.Gender, a.Count, a.Mean, a.Median})
	}
	return rows
}

func bracketRows(f *census.Final) [][]any {
	keys := make([]census.BracketKey, 0, len(f.Brackets))
	for k := range f.Brackets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Species != keys[j].Species {
			return keys[i].Species < keys[j].Species
		}
		if keys[i].Gender != keys[j].Gender {
			return keys[i].Gender < keys[j].Gender
		}
		return keys[i].Bracket < keys[j].Bracket
	})

	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k.Species, k.Gender, k.Bracket, f.Brackets[k]})
	}
	return rows
}

func flowRows(f *census.Final) [][]any {
	rows := make([][]any, 0, len(f.TopFlows))
	for i, fl := range f.TopFlows {
		rows = append(rows, []any{i + 1, fl.Origin, fl.Dest, fl.Count})
	}
	return rows
}

func pyramidRows(f *census.Final) [][]any {
	keys := make([]census.PyramidKey, 0, len(f.Pyramid))
	for k := range f.Pyramid {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return census.QuinquennialLess(keys[i].Group, keys[j].Group)
		}
		return keys[i].Gender < keys[j].Gender
	})

	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k.Group, k.Gender, f.Pyramid[k]})
	}
	return rows
}
