/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/session"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/vector"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport(nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "Page Composer Crash Report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestWriteReportCreatesFileInStoreBackups(t *testing.T) {
	root := t.TempDir()
	fs, err := storage.NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sess := session.New(fs)

	path, err := writeReport(sess, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	if !strings.HasPrefix(path, fs.BackupsDir()) {
		t.Fatalf("expected crash report under backups dir, got %s", path)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "Key: canvas.entities") {
		t.Fatalf("report lacks page key: %s", b)
	}
}

// TestRecoverAutosavesPage ensures Recover handles a panic, writes a report,
// autosaves the page, and does not terminate the test process due to injected exitFn.
func TestRecoverAutosavesPage(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	called := 0
	oldExit := exitFn
	exitFn = func(code int) { called = code }
	defer func() { exitFn = oldExit }()

	root := t.TempDir()
	fs, err := storage.NewFileStore(root)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	sess := session.New(fs)
	if _, err := sess.Create("p", domain.FieldSet{Name: "n", Size: vector.Size{W: 10, H: 10}}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	func() {
		defer Recover(sess)
		panic("boom")
	}()

	if called != 2 {
		t.Fatalf("expected exit code 2, got %d", called)
	}
	v, ok, err := fs.Read(context.Background(), sess.Key()+KeySuffix)
	if err != nil || !ok {
		t.Fatalf("crash autosave missing: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(v, `"variant": "paragraph"`) {
		t.Fatalf("autosave does not hold the page: %s", v)
	}
	if _, ok, _ := fs.Read(context.Background(), sess.Key()); ok {
		t.Fatalf("crash autosave overwrote the main value")
	}
	files, _ := os.ReadDir(fs.BackupsDir())
	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected crash report file under %s", filepath.Join(root, storage.BackupsDirName))
	}
}

func TestAutosavePanicIsContained(t *testing.T) {
	p := explodingPage{}
	if err := autosave(p, "x"); err == nil || !strings.Contains(err.Error(), "autosave panicked") {
		t.Fatalf("expected contained panic, got %v", err)
	}
}

type explodingPage struct{}

func (explodingPage) Key() string          { return "x" }
func (explodingPage) Store() storage.Store { return storage.NewMemoryStore() }
func (explodingPage) Autosave(context.Context, string) error {
	panic("disk on fire")
}

func TestRecoverClosesStore(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()
	oldExit := exitFn
	exitFn = func(int) {}
	defer func() { exitFn = oldExit }()

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "pages.sqlite"), 3)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sess := session.New(db)
	if _, err := sess.Create("span", domain.FieldSet{Name: "n", Size: vector.Size{W: 10, H: 10}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	func() {
		defer Recover(sess)
		panic("boom")
	}()

	if _, _, err := db.Read(ctx, sess.Key()+KeySuffix); err == nil {
		t.Fatalf("store still open after Recover")
	}
}

func TestClosePagePanicIsContained(t *testing.T) {
	if err := closePage(explodingCloser{}); err == nil || !strings.Contains(err.Error(), "close panicked") {
		t.Fatalf("expected contained panic, got %v", err)
	}
}

type explodingCloser struct{}

func (explodingCloser) Close() error { panic("lock lost") }
