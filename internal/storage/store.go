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
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Store is a string key/value store.
type Store interface {
	// Read returns the value for key. The boolean is false when the key is absent.
	Read(ctx context.Context, key string) (string, bool, error)
	// Write replaces the value for key.
	Write(ctx context.Context, key, value string) error
}

// BackupReader is implemented by stores that retain the value a write replaced.
type BackupReader interface {
	ReadLatestBackup(ctx context.Context, key string) (string, bool, error)
}

// Revision is one retained earlier value of a key.
type Revision struct {
	TS    time.Time
	Value string
}

// Historian is implemented by stores that keep several earlier values.
type Historian interface {
	History(ctx context.Context, key string, limit int) ([]Revision, error)
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultHistoryKeep is the number of replaced values the database stores retain per key.
const DefaultHistoryKeep = 20

var (
	// ErrInvalidKey is returned for keys that are empty or unsafe as file names.
	ErrInvalidKey = errors.New("invalid storage key")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store is closed")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidKey reports whether key can be used with every store.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key) && !strings.Contains(key, "..")
}

func checkKey(key string) error {
	if !ValidKey(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Options selects and configures a store.
type Options struct {
	Driver      string
	Path        string // directory for file, database file for sqlite
	DSN         string // postgres connection string
	HistoryKeep int
}

// Open returns the store selected by opts.Driver. Callers close the result
// when it implements io.Closer.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		return NewFileStore(opts.Path)
	case DriverSQLite:
		return OpenSQLite(ctx, opts.Path, opts.HistoryKeep)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN, opts.HistoryKeep)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

// MemoryStore keeps values in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	values  map[string]string
	backups map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}, backups: map[string]string{}}
}

func (m *MemoryStore) Read(_ context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Write(_ context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.values[key]; ok {
		m.backups[key] = prev
	}
	m.values[key] = value
	return nil
}

// ReadLatestBackup returns the value replaced by the most recent write.
func (m *MemoryStore) ReadLatestBackup(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.backups[key]
	return v, ok, nil
}

// Keys returns the stored keys in no particular order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.values))
	for k := range m.values {
		out = append(out, k)
	}
	return out
}
