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
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	applog "pagecomposer/internal/log"
)

const (
	// BackupsDirName holds replaced values below the store root.
	BackupsDirName = "backups"
	valueExt       = ".json"
	backupStamp    = "20060102-150405.000000000"
)

// FileStore keeps one file per key below Root. Writes go to a temp file that
// is renamed over the target, and the previous value is copied to a
// timestamped backup first.
type FileStore struct {
	Root string
	mu   sync.Mutex
}

// NewFileStore creates root and its backups folder if needed.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("store root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileStore{Root: root}, nil
}

// Path returns the file that holds key.
func (f *FileStore) Path(key string) string { return filepath.Join(f.Root, key+valueExt) }

// BackupsDir returns the folder holding timestamped backups.
func (f *FileStore) BackupsDir() string { return filepath.Join(f.Root, BackupsDirName) }

func (f *FileStore) Read(_ context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(b), true, nil
}

func (f *FileStore) Write(ctx context.Context, key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l := applog.WithOperation(applog.WithComponent("storage"), "file_write").With(slog.String("key", key))

	target := f.Path(key)
	bdir := f.BackupsDir()
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(target); statErr == nil {
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", key, time.Now().Format(backupStamp)))
		if cerr := copyFile(target, bpath); cerr != nil {
			return fmt.Errorf("backup current value: %w", cerr)
		}
	}

	temp := filepath.Join(f.Root, fmt.Sprintf(".%s.tmp-%d-%d", key, os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, []byte(value)); werr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("write temp value: %w", werr)
	}
	// Windows refuses to rename over an existing file.
	if _, err := os.Stat(target); err == nil {
		_ = os.Remove(target)
	}
	if rerr := os.Rename(temp, target); rerr != nil {
		_ = os.Remove(temp)
		l.Error("replace failed", slog.Any("err", rerr))
		return fmt.Errorf("replace value: %w", rerr)
	}
	l.Debug("value written", slog.Int("bytes", len(value)))
	return nil
}

// Backups lists backup files for key, oldest first.
func (f *FileStore) Backups(key string) ([]string, error) {
	ents, err := os.ReadDir(f.BackupsDir())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, key+".") || !strings.HasSuffix(name, ".bak") {
			continue
		}
		// keys sharing the prefix (a, a.1) differ in what precedes the stamp
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, key+"."), ".bak")
		if len(stamp) != len(backupStamp) {
			continue
		}
		if _, err := time.Parse(backupStamp, stamp); err != nil {
			continue
		}
		out = append(out, filepath.Join(f.BackupsDir(), name))
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// ReadLatestBackup returns the newest backup of key.
func (f *FileStore) ReadLatestBackup(_ context.Context, key string) (string, bool, error) {
	if err := checkKey(key); err != nil {
		return "", false, err
	}
	list, err := f.Backups(key)
	if err != nil {
		return "", false, err
	}
	if len(list) == 0 {
		return "", false, nil
	}
	b, err := os.ReadFile(list[len(list)-1])
	if err != nil {
		return "", false, fmt.Errorf("read latest backup: %w", err)
	}
	return string(b), true, nil
}

// History returns up to limit backups of key, newest first.
func (f *FileStore) History(_ context.Context, key string, limit int) ([]Revision, error) {
	list, err := f.Backups(key)
	if err != nil {
		return nil, err
	}
	var out []Revision
	for i := len(list) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		b, err := os.ReadFile(list[i])
		if err != nil {
			return nil, err
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(list[i]), key+"."), ".bak")
		ts, _ := time.ParseInLocation(backupStamp, stamp, time.Local)
		out = append(out, Revision{TS: ts, Value: string(b)})
	}
	return out, nil
}

// writeFileSync writes data to a file and flushes it to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src to dst, overwriting dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
