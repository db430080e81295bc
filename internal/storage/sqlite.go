/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "pagecomposer/internal/log"
	"pagecomposer/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

// schemaVersion tracks the SQLite schema. Bump it together with a new step in runMigrations.
const schemaVersion = 2

// language=SQL
// dialect=SQLite
const (
	selectEntrySQL = `SELECT value FROM entries WHERE key = ?`
	upsertEntrySQL = `INSERT INTO entries(key, value, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	insertHistorySQL = `INSERT INTO history(key, ts, value) VALUES (?, ?, ?)`
	latestHistorySQL = `SELECT value FROM history WHERE key = ? ORDER BY id DESC LIMIT 1`
	listHistorySQL   = `SELECT ts, value FROM history WHERE key = ? ORDER BY id DESC LIMIT ?`
	pruneHistorySQL  = `DELETE FROM history WHERE key = ? AND id NOT IN (
		SELECT id FROM history WHERE key = ? ORDER BY id DESC LIMIT ?
	)`
)

// tsLayout keeps every stored timestamp the same width.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore keeps values in a single SQLite file with a bounded history of
// replaced values per key.
type SQLiteStore struct {
	db   *sql.DB
	path string
	keep int
}

// OpenSQLite opens or creates the database at path, enables WAL mode and
// brings the schema up to date. keep <= 0 selects DefaultHistoryKeep.
func OpenSQLite(ctx context.Context, path string, keep int) (*SQLiteStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(slog.String("path", path))
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}
	if keep <= 0 {
		keep = DefaultHistoryKeep
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	// Forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("store ready")
	return &SQLiteStore{db: db, path: path, keep: keep}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Path returns the database file.
func (s *SQLiteStore) Path() string { return s.path }

// SchemaVersion returns the schema recorded in the version table.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&v)
	return v, err
}

func (s *SQLiteStore) Read(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	var v string
	err := s.db.QueryRowContext(ctx, selectEntrySQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

// Write replaces the value for key. The replaced value is moved to history
// and history beyond the retention limit is pruned, all in one transaction.
func (s *SQLiteStore) Write(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	now := time.Now().UTC().Format(tsLayout)
	var prev string
	switch err := tx.QueryRowContext(ctx, selectEntrySQL, key).Scan(&prev); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		_ = tx.Rollback()
		return fmt.Errorf("read previous value: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, insertHistorySQL, key, now, prev); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert history: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, upsertEntrySQL, key, value, now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, pruneHistorySQL, key, key, s.keep); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prune history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReadLatestBackup returns the most recently replaced value of key.
func (s *SQLiteStore) ReadLatestBackup(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, latestHistorySQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// History returns up to limit replaced values of key, newest first.
func (s *SQLiteStore) History(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, listHistorySQL, key, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var tsStr, v string
		if err := rows.Scan(&tsStr, &v); err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, Revision{TS: ts, Value: v})
	}
	return out, rows.Err()
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A fresh database starts at schema 1 and is migrated forward.
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// ensureSchema creates the schema 1 tables.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			id    INTEGER PRIMARY KEY,
			key   TEXT NOT NULL,
			ts    TEXT NOT NULL,
			value TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	// never downgrade
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_history_key_ts ON history(key, ts);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}
