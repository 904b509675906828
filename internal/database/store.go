// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package database persists the star schema in DuckDB. All writes are
// merges: dimension rows upsert on their surrogate key, fact rows insert
// with ON CONFLICT DO NOTHING on the deterministic event ID. Running the
// pipeline twice over the same input leaves the store byte-identical.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/melograph/internal/config"
	"github.com/tomtom215/melograph/internal/logging"
)

// defaultQueryTimeout bounds individual statements when the caller passed
// a context without a deadline.
const defaultQueryTimeout = 30 * time.Second

// Store wraps the DuckDB connection and provides star-schema access.
type Store struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens (or creates) the DuckDB database file and initializes the
// schema. The parent directory is created when missing.
func New(cfg *config.DatabaseConfig) (*Store, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// 0750 per gosec G301.
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}

	// Disable auto-install/auto-load to prevent hangs in restricted
	// network environments; nothing here needs an extension at open time.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{conn: conn, cfg: cfg}

	if err := s.createSchema(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Str("max_memory", cfg.MaxMemory).
		Msg("Database opened")

	return s, nil
}

// Close releases the DuckDB connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// ensureContext attaches the default timeout when the context has no
// deadline of its own.
func (s *Store) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultQueryTimeout)
}

// schema holds the DDL for every table, applied idempotently at open.
//
// Event IDs are stored as VARCHAR rather than DuckDB's UUID type so the
// column round-trips through database/sql without driver-specific types.
// Natural-key columns are deliberately not UNIQUE-constrained: a second
// index makes DuckDB's ON CONFLICT target ambiguous on upsert. Uniqueness
// is guaranteed by the key registry and verified by the data-quality rule
// battery instead.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS dim_date (
		date_id BIGINT PRIMARY KEY,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		day INTEGER NOT NULL,
		weekday VARCHAR NOT NULL,
		hour INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dim_device (
		device_id BIGINT PRIMARY KEY,
		platform VARCHAR NOT NULL,
		device_type VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS dim_track (
		track_id BIGINT PRIMARY KEY,
		track_uri VARCHAR NOT NULL,
		track_name VARCHAR,
		artist_name VARCHAR,
		album_name VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS dim_episode (
		episode_id BIGINT PRIMARY KEY,
		episode_uri VARCHAR NOT NULL,
		episode_name VARCHAR,
		show_name VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS dim_location (
		location_id BIGINT PRIMARY KEY,
		ip_address VARCHAR NOT NULL,
		country VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS dim_location_enriched (
		location_id BIGINT PRIMARY KEY,
		ip_address VARCHAR NOT NULL,
		country VARCHAR,
		city VARCHAR,
		region VARCHAR,
		isp VARCHAR,
		latitude DOUBLE,
		longitude DOUBLE,
		lookup_status VARCHAR NOT NULL DEFAULT 'pending',
		last_updated TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS fact_plays (
		event_id VARCHAR PRIMARY KEY,
		date_id BIGINT NOT NULL,
		device_id BIGINT,
		track_id BIGINT,
		episode_id BIGINT,
		location_id BIGINT,
		ms_played BIGINT NOT NULL,
		skipped BOOLEAN NOT NULL,
		shuffle BOOLEAN NOT NULL,
		offline BOOLEAN NOT NULL,
		incognito_mode BOOLEAN NOT NULL
	)`,
}

func (s *Store) createSchema(ctx context.Context) error {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	for _, ddl := range schema {
		if _, err := s.conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// TableCount returns the row count of a table. The name must be one of the
// models table constants; it is interpolated, not parameterized.
func (s *Store) TableCount(ctx context.Context, table string) (int64, error) {
	ctx, cancel := s.ensureContext(ctx)
	defer cancel()

	var n int64
	// #nosec G201 -- table names come from package constants, never input.
	err := s.conn.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s failed: %w", table, err)
	}
	return n, nil
}
