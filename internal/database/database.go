// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

// Package database opens the DuckDB file that backs the audit trail.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/assetguard/internal/logging"
)

// Config holds DuckDB settings.
type Config struct {
	// Path is the database file. ":memory:" keeps everything in memory.
	Path string `koanf:"path"`

	// MaxMemory is DuckDB's memory limit, e.g. "1GB".
	MaxMemory string `koanf:"max_memory"`

	// Threads defaults to runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// DefaultConfig returns the default database settings.
func DefaultConfig() Config {
	return Config{
		Path:      "/data/assetguard.duckdb",
		MaxMemory: "1GB",
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Threads < 0 {
		return fmt.Errorf("database.threads must not be negative, got %d", c.Threads)
	}
	return nil
}

// DB wraps the DuckDB connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the database described by cfg.
func Open(cfg Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = DefaultConfig().MaxMemory
	}

	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	// Extension autoload is off so a restricted network cannot stall startup.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Int("threads", threads).Str("max_memory", maxMemory).Msg("Database opened")
	return &DB{conn: conn, path: cfg.Path}, nil
}

// Conn returns the underlying connection pool.
func (db *DB) Conn() *sql.DB { return db.conn }

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Ping checks that the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return errors.New("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint flushes the WAL into the database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// Close checkpoints and closes the database. A failed checkpoint is logged and
// does not prevent the close.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
	}
	cancel()
	return db.conn.Close()
}
