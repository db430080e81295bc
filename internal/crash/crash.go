/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "pagecomposer/internal/log"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/version"
)

// KeySuffix is appended to the page key for crash-safe autosaves.
const KeySuffix = ".crash"

// Page is the live state Recover tries to preserve.
type Page interface {
	Key() string
	Store() storage.Store
	Autosave(ctx context.Context, key string) error
}

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Recover captures a panic, logs an error with stacktrace,
// writes an error report file, and attempts a crash-safe autosave
// of the page (if provided) under its key plus KeySuffix.
//
// Usage: defer crash.Recover(sess)
func Recover(p Page) {
	if r := recover(); r != nil {
		l := applog.WithComponent("crash")
		stack := debug.Stack()
		l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

		reportPath, err := writeReport(p, r, stack)
		if err != nil {
			l.Error("write crash report failed", slog.Any("err", err))
		}
		if p != nil {
			key := p.Key() + KeySuffix
			if err := autosave(p, key); err != nil {
				l.Error("autosave crash snapshot failed", slog.Any("err", err))
			} else {
				l.Info("autosave crash snapshot written", slog.String("key", key))
			}
			// exitFn skips the caller's deferred Close
			if c, ok := p.(io.Closer); ok {
				if err := closePage(c); err != nil {
					l.Error("close store failed", slog.Any("err", err))
				}
			}
		}

		if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
			l.Error("failed to write crash message to stderr", slog.Any("err", err))
		}
		if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
			l.Error("failed to write version info to stderr", slog.Any("err", err))
		}
		// Exit with a non-zero code to indicate failure in CLI context.
		exitFn(2)
	}
}

// autosave runs with its own deadline; a panic inside it must not mask the first one.
func autosave(p Page, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autosave panicked: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Autosave(ctx, key)
}

func closePage(c io.Closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close panicked: %v", r)
		}
	}()
	return c.Close()
}

// reportDir is the backups folder of a file store, or the temp dir.
func reportDir(p Page) string {
	if p != nil {
		if fs, ok := p.Store().(*storage.FileStore); ok {
			dir := fs.BackupsDir()
			if err := os.MkdirAll(dir, 0o755); err == nil {
				return dir
			}
		}
	}
	return os.TempDir()
}

func writeReport(p Page, panicVal any, stack []byte) (string, error) {
	dir := reportDir(p)
	stamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", stamp))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Page Composer Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if p != nil {
		_, _ = fmt.Fprintf(&buf, "Key: %s\n", p.Key())
		_, _ = fmt.Fprintf(&buf, "Store: %T\n", p.Store())
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, err
	}
	_ = f.Sync()
	return path, nil
}
