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
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "pagecomposer/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps values in PostgreSQL through the pgx database/sql driver.
// Every write bumps a per-key revision and moves the replaced value to page_history.
type PostgresStore struct {
	db   *sql.DB
	keep int
}

// OpenPostgres connects, pings and applies pending migrations.
func OpenPostgres(ctx context.Context, dsn string, keep int) (*PostgresStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	if keep <= 0 {
		keep = DefaultHistoryKeep
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db, keep: keep}, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Read(ctx context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM page_entries WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return v, true, nil
}

// Revision returns the current revision of key, 0 when absent.
func (p *PostgresStore) Revision(ctx context.Context, key string) (int64, error) {
	var rev int64
	err := p.db.QueryRowContext(ctx, `SELECT revision FROM page_entries WHERE key=$1`, key).Scan(&rev)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return rev, err
}

func (p *PostgresStore) Write(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	var (
		prev string
		rev  int64
	)
	switch err := tx.QueryRowContext(ctx, `SELECT value, revision FROM page_entries WHERE key=$1 FOR UPDATE`, key).Scan(&prev, &rev); {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO page_entries(key, value) VALUES($1,$2)`, key, value); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert %s: %w", key, err)
		}
	case err != nil:
		_ = tx.Rollback()
		return fmt.Errorf("lock %s: %w", key, err)
	default:
		if _, err := tx.ExecContext(ctx, `INSERT INTO page_history(key, revision, value) VALUES($1,$2,$3)`, key, rev, prev); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert history: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE page_entries SET value=$2, revision=revision+1, updated_at=now() WHERE key=$1`, key, value); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM page_history WHERE key=$1 AND id NOT IN (
			SELECT id FROM page_history WHERE key=$1 ORDER BY revision DESC LIMIT $2)`, key, p.keep); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("prune history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ReadLatestBackup returns the value replaced by the most recent write.
func (p *PostgresStore) ReadLatestBackup(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM page_history WHERE key=$1 ORDER BY revision DESC LIMIT 1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// History returns up to limit replaced values of key, newest first.
func (p *PostgresStore) History(ctx context.Context, key string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx, `SELECT created_at, value FROM page_history WHERE key=$1 ORDER BY revision DESC LIMIT $2`, key, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Revision
	for rows.Next() {
		var r Revision
		if err := rows.Scan(&r.TS, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// applyMigrations runs every embedded migration not yet recorded in schema_migrations.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithOperation(applog.WithComponent("storage"), "pg_migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fname := range files {
		v, err := parseMigrationVersion(fname)
		if err != nil {
			return err
		}
		if applied[v] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1,$2)`, v, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		l.Info("applied migration", slog.String("file", fname))
	}
	return nil
}

func parseMigrationVersion(name string) (int64, error) {
	prefix, _, _ := strings.Cut(path.Base(name), "_")
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
