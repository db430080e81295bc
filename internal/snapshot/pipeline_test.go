/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package snapshot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/drag"
	"pagecomposer/internal/input"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/surface"
	"pagecomposer/internal/vector"
)

type page struct {
	coll   *domain.Collection
	canvas *surface.Canvas
	disp   *input.Dispatcher
}

func newPage() *page {
	return &page{coll: domain.NewCollection(), canvas: surface.NewCanvas(800, 600), disp: input.NewDispatcher()}
}

func (p *page) add(t *testing.T, disc string, f domain.FieldSet) *domain.Entity {
	t.Helper()
	e, err := p.coll.Create(disc, f)
	if err != nil {
		t.Fatalf("Create %s: %v", disc, err)
	}
	p.canvas.Append(e.Surface())
	if _, err := drag.Attach(e, p.canvas, p.disp); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	return e
}

func seeded(t *testing.T) *page {
	t.Helper()
	p := newPage()
	p.add(t, "heading-1", domain.FieldSet{
		Name: "Title", Position: vector.Pt{X: 10, Y: 10}, Size: vector.Size{W: 300, H: 60},
		Style:   domain.Style{Background: "#ffffff", Color: "#222222", FontSize: "32", FontFamily: "Georgia"},
		Content: domain.Content{Text: `Tom & "Jerry" <3`},
	})
	p.add(t, "a", domain.FieldSet{
		Name: "Docs Link", Position: vector.Pt{X: 40, Y: 120}, Size: vector.Size{W: 120, H: 24},
		Content: domain.Content{Text: "read more", URL: "https://example.com/?a=1&b=2"},
	})
	img := p.add(t, "image", domain.FieldSet{
		Name: "Hero", Position: vector.Pt{X: 200, Y: 200}, Size: vector.Size{W: 160, H: 90},
		Content: domain.Content{Src: "hero.png", Alt: "hero"},
	})
	// drag the image 15px right, 5.5px down
	s := img.Surface()
	p.disp.Dispatch(input.Mouse(input.MouseDown, vector.Pt{X: 210, Y: 210}, s))
	p.disp.Dispatch(input.Mouse(input.MouseMove, vector.Pt{X: 225, Y: 215.5}, nil))
	p.disp.Dispatch(input.Mouse(input.MouseUp, vector.Pt{X: 225, Y: 215.5}, nil))
	return p
}

func TestSaveRestoreSaveIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	src := seeded(t)
	pl := NewPipeline(store)
	if err := pl.Save(ctx, src.coll); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, _, _ := store.Read(ctx, DefaultKey)

	dst := newPage()
	res, err := pl.Restore(ctx, dst.coll, dst.canvas, dst.disp)
	if err != nil || res.DecodeErr != nil {
		t.Fatalf("Restore: %v %v", err, res.DecodeErr)
	}
	if len(res.Entities) != 3 || dst.coll.Len() != 3 || dst.canvas.Len() != 3 {
		t.Fatalf("restored %d entities, collection %d, canvas %d", len(res.Entities), dst.coll.Len(), dst.canvas.Len())
	}
	if dst.canvas.Markup() != src.canvas.Markup() {
		t.Fatalf("canvas differs:\n%s\n%s", src.canvas.Markup(), dst.canvas.Markup())
	}
	if err := pl.Save(ctx, dst.coll); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	second, _, _ := store.Read(ctx, DefaultKey)
	if first != second {
		t.Fatalf("snapshot changed across round trip:\n%s\n---\n%s", first, second)
	}
	if !strings.Contains(first, `"x": 215`) || !strings.Contains(first, `"y": 205.5`) {
		t.Fatalf("dragged position not captured:\n%s", first)
	}
}

func TestControlCharactersRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	src := newPage()
	src.add(t, "p", domain.FieldSet{Name: "ctl", Size: vector.Size{W: 50, H: 20},
		Content: domain.Content{Text: "x\x00y\u00a0z"}})
	pl := NewPipeline(store)
	if err := pl.Save(ctx, src.coll); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, _, _ := store.Read(ctx, DefaultKey)
	dst := newPage()
	if res, err := pl.Restore(ctx, dst.coll, dst.canvas, dst.disp); err != nil || res.DecodeErr != nil {
		t.Fatalf("Restore: %v %v", err, res.DecodeErr)
	}
	if err := pl.Save(ctx, dst.coll); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if second, _, _ := store.Read(ctx, DefaultKey); first != second {
		t.Fatalf("snapshot changed across round trip:\n%s\n---\n%s", first, second)
	}
}

func TestRestoredEntitiesAreDraggableOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	pl := NewPipeline(store)
	if err := pl.Save(ctx, seeded(t).coll); err != nil {
		t.Fatalf("Save: %v", err)
	}
	dst := newPage()
	res, err := pl.Restore(ctx, dst.coll, dst.canvas, dst.disp)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	for _, e := range res.Entities {
		s := e.Surface()
		if s.Canvas() != dst.canvas {
			t.Fatalf("entity %d not attached to canvas", e.ID())
		}
		if v, _ := s.Data("drag-attached"); v != "true" {
			t.Fatalf("entity %d not drag-enabled", e.ID())
		}
		if res.Handles[e.ID()] == nil {
			t.Fatalf("no handle for %d", e.ID())
		}
	}
	if dst.disp.Count(input.MouseDown) != 3 {
		t.Fatalf("expected one press listener per entity, got %d", dst.disp.Count(input.MouseDown))
	}
	// ids continue after the restored maximum
	n, err := dst.coll.Create("span", domain.FieldSet{Name: "new"})
	if err != nil || n.ID() != 4 {
		t.Fatalf("next id after restore = %v err %v", n, err)
	}
	// a restored entity drags and clamps
	e := res.Entities[0]
	dst.disp.Dispatch(input.Mouse(input.MouseDown, vector.Pt{X: 20, Y: 20}, e.Surface()))
	dst.disp.Dispatch(input.Mouse(input.MouseMove, vector.Pt{X: -100, Y: 20}, nil))
	dst.disp.Dispatch(input.Mouse(input.MouseUp, vector.Pt{}, nil))
	if e.Position().X != 0 {
		t.Fatalf("restored entity not clamped: %+v", e.Position())
	}
}

func TestRestoreAbsentKeyIsEmpty(t *testing.T) {
	p := newPage()
	res, err := NewPipeline(storage.NewMemoryStore()).Restore(context.Background(), p.coll, p.canvas, p.disp)
	if err != nil || res.DecodeErr != nil || len(res.Entities) != 0 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestRestoreCorruptValueRecoversEmpty(t *testing.T) {
	ctx := context.Background()
	for name, raw := range map[string]string{
		"not json":      "{not json",
		"wrong version": `{"version":2,"records":[]}`,
		"missing field": `{"version":1,"records":[{"fields":{"id":1}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			_ = store.Write(ctx, DefaultKey, raw)
			p := newPage()
			res, err := NewPipeline(store).Restore(ctx, p.coll, p.canvas, p.disp)
			if err != nil {
				t.Fatalf("Restore returned error: %v", err)
			}
			var de *SnapshotDecodeError
			if res.DecodeErr == nil || !errors.As(error(res.DecodeErr), &de) {
				t.Fatalf("expected SnapshotDecodeError, got %+v", res)
			}
			if p.coll.Len() != 0 || p.canvas.Len() != 0 {
				t.Fatalf("collection not empty after decode failure")
			}
		})
	}
}

func TestRestoreInvalidRecordAbortsWhole(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	pl := NewPipeline(store)
	if err := pl.Save(ctx, seeded(t).coll); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _, _ := store.Read(ctx, DefaultKey)
	// corrupt the last record's variant; the first two are valid
	bad := strings.Replace(raw, `"variant": "image"`, `"variant": "video"`, 1)
	if bad == raw {
		t.Fatalf("fixture did not contain image variant")
	}
	fresh := storage.NewMemoryStore()
	_ = fresh.Write(ctx, DefaultKey, bad)
	p := newPage()
	res, err := NewPipeline(fresh).Restore(ctx, p.coll, p.canvas, p.disp)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	var ive *domain.InvalidVariantError
	if res.DecodeErr == nil || !errors.As(res.DecodeErr, &ive) {
		t.Fatalf("expected invalid variant decode error, got %+v", res.DecodeErr)
	}
	if p.coll.Len() != 0 || p.canvas.Len() != 0 || p.disp.Count(input.MouseDown) != 0 {
		t.Fatalf("partial restore left state behind")
	}
}

func TestRestoreCorruptValueIgnoresBackupByDefault(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	pl := NewPipeline(store)
	if err := pl.Save(ctx, seeded(t).coll); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = store.Write(ctx, DefaultKey, "{not json")
	p := newPage()
	res, err := pl.Restore(ctx, p.coll, p.canvas, p.disp)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.DecodeErr == nil || res.FromBackup || p.coll.Len() != 0 || p.canvas.Len() != 0 {
		t.Fatalf("expected empty page, got %+v with %d entities", res, p.coll.Len())
	}
}

func TestRestoreFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	pl := NewPipeline(store, WithBackupRecovery())
	if err := pl.Save(ctx, seeded(t).coll); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = store.Write(ctx, DefaultKey, "garbage")
	p := newPage()
	res, err := pl.Restore(ctx, p.coll, p.canvas, p.disp)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !res.FromBackup || res.DecodeErr == nil || p.coll.Len() != 3 {
		t.Fatalf("backup not used: %+v", res)
	}
}

func TestDecodeRejectsInconsistentRecord(t *testing.T) {
	e, err := domain.NewEntity(1, domain.FieldSet{Variant: "p", Content: domain.Content{Text: "x"}})
	if err != nil {
		t.Fatalf("NewEntity: %v", err)
	}
	good, _ := Capture(e)
	cases := map[string]func(r *Record){
		"tag mismatch":   func(r *Record) { r.Fields.Variant = "span" },
		"shell mismatch": func(r *Record) { r.MarkupBefore = strings.Replace(r.MarkupBefore, `data-draggable="true"`, `data-draggable="false"`, 1) },
		"id mismatch":    func(r *Record) { r.Fields.ID = 2 },
		"two elements":   func(r *Record) { r.MarkupAfter += "<p></p>" },
		"handler":        func(r *Record) { r.MarkupBefore = strings.Replace(r.MarkupBefore, "<p ", `<p onclick="x()" `, 1) },
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("captured record invalid: %v", err)
	}
	for name, mutate := range cases {
		r := good
		mutate(&r)
		if err := r.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	dup := Document{Version: FormatVersion, Records: []Record{good, good}}
	b, _ := Encode(dup)
	if _, err := Decode(string(b)); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestSanitizeStripsScripts(t *testing.T) {
	r := Record{
		MarkupBefore: `<p data-entity-id="1"></p>`,
		MarkupAfter:  `<p data-entity-id="1">hi<script>alert(1)</script><b>there</b></p>`,
	}
	s, err := rebuildSurface(r, contentPolicy())
	if err != nil {
		t.Fatalf("rebuildSurface: %v", err)
	}
	if got := s.InnerMarkup(); got != "hi<b>there</b>" {
		t.Fatalf("sanitized inner = %q", got)
	}
}
