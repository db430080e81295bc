/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"pagecomposer/internal/config"
)

func testConfig(t *testing.T) config.AppConfig {
	t.Helper()
	color.NoColor = true
	cfg := config.Defaults()
	cfg.Store.Path = t.TempDir()
	return cfg
}

func runOK(t *testing.T, cfg config.AppConfig, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	if err := run(context.Background(), cfg, "", args, &out); err != nil {
		t.Fatalf("run %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestCreateMoveListRemove(t *testing.T) {
	cfg := testConfig(t)

	out := runOK(t, cfg, "create", "p", "Intro", "Hello there", "x=10", "y=20", "w=100", "h=40")
	if !strings.Contains(out, "Created paragraph #1") {
		t.Fatalf("unexpected create output: %q", out)
	}
	out = runOK(t, cfg, "move", "1", "50", "30")
	if !strings.Contains(out, "Moved #1 to 60,50") {
		t.Fatalf("unexpected move output: %q", out)
	}
	out = runOK(t, cfg, "list")
	if !strings.Contains(out, "paragraph") || !strings.Contains(out, "intro") || !strings.Contains(out, "at 60,50 size 100x40") {
		t.Fatalf("unexpected list output: %q", out)
	}
	runOK(t, cfg, "remove", "1")
	if out := runOK(t, cfg, "list"); !strings.Contains(out, "Page is empty") {
		t.Fatalf("expected empty page, got %q", out)
	}
	// ids keep counting after a removal
	if out := runOK(t, cfg, "create", "span", "Next", ""); !strings.Contains(out, "#2") {
		t.Fatalf("expected id 2, got %q", out)
	}
}

func TestUsageErrors(t *testing.T) {
	cfg := testConfig(t)
	cases := [][]string{
		{"bogus"},
		{"move", "1"},
		{"remove"},
		{"create", "p", "Name"},
		{"create", "p", "Name", "text", "novalue"},
		{"export", "png"},
	}
	for _, args := range cases {
		var out bytes.Buffer
		err := run(context.Background(), cfg, "", args, &out)
		if !errors.Is(err, errUsage) {
			t.Fatalf("run %v: expected usage error, got %v", args, err)
		}
	}
	var out bytes.Buffer
	if err := run(context.Background(), cfg, "", []string{"remove", "7"}, &out); err == nil || errors.Is(err, errUsage) {
		t.Fatalf("removing a missing entity should fail without usage, got %v", err)
	}
}

func TestReplayAndExport(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "page.script")
	src := "# build a page\n" +
		"create h1 name=Title text=\"Page title\" x=20 y=20 w=300 h=40\n" +
		"create link name=docs text=Docs url=https://example.com/docs x=20 y=80 w=120 h=20\n" +
		"mousedown 20 20\n" +
		"mousemove 40 30\n" +
		"mouseup\n" +
		"save\n"
	if err := os.WriteFile(scriptPath, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	out := runOK(t, cfg, "replay", scriptPath)
	if !strings.Contains(out, "2 created") {
		t.Fatalf("unexpected replay output: %q", out)
	}

	mdPath := filepath.Join(dir, "page.md")
	runOK(t, cfg, "export", "md", mdPath)
	b, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	md := string(b)
	if !strings.Contains(md, "# Page title") || !strings.Contains(md, "[Docs](https://example.com/docs)") {
		t.Fatalf("unexpected markdown: %q", md)
	}

	pngPath := filepath.Join(dir, "page.png")
	runOK(t, cfg, "export", "-scale", "0.5", "-guides", "png", pngPath)
	if fi, err := os.Stat(pngPath); err != nil || fi.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
}

func TestHistoryNeedsHistorian(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "memory"
	var out bytes.Buffer
	if err := run(context.Background(), cfg, "", []string{"history"}, &out); err == nil {
		t.Fatalf("memory store should report missing history")
	}
}

func TestVersionAndConfig(t *testing.T) {
	cfg := testConfig(t)
	if out := runOK(t, cfg, "version"); !strings.Contains(out, "Page Composer") {
		t.Fatalf("unexpected version output: %q", out)
	}
	t.Setenv(config.EnvServerAddr, "0.0.0.0:9000")
	out := runOK(t, cfg, "config")
	if !strings.Contains(out, "store.key") || !strings.Contains(out, "(from PC_SERVER_ADDR)") {
		t.Fatalf("unexpected config output: %q", out)
	}
}
