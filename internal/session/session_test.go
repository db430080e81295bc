/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/input"
	"pagecomposer/internal/script"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/vector"
)

func box(x, y float64) domain.FieldSet {
	return domain.FieldSet{
		Name:     "Box",
		Position: vector.Pt{X: x, Y: y},
		Size:     vector.Size{W: 100, H: 100},
		Content:  domain.Content{Text: "hello"},
	}
}

func TestCreateRemoveKeepsCanvasInSync(t *testing.T) {
	s := New(storage.NewMemoryStore(), WithCanvasSize(500, 500))
	e, err := s.Create("paragraph", box(10, 10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.Canvas().Contains(e.Surface()) {
		t.Fatalf("created surface not on canvas")
	}
	if _, err := s.Create("video", box(0, 0)); err == nil {
		t.Fatalf("expected invalid variant error")
	}
	if s.Len() != 1 || s.Canvas().Len() != 1 {
		t.Fatalf("invalid create changed the page: %d entities, %d surfaces", s.Len(), s.Canvas().Len())
	}
	if !s.Remove(e.ID()) {
		t.Fatalf("Remove returned false")
	}
	if s.Remove(e.ID()) {
		t.Fatalf("second Remove should report false")
	}
	if s.Canvas().Len() != 0 {
		t.Fatalf("surface left on canvas after remove")
	}
	// the removed surface no longer reacts to presses
	if s.Pointer(input.MouseDown, vector.Pt{X: 20, Y: 20}) {
		t.Fatalf("press on empty canvas was consumed")
	}
}

func TestPointerDragClamps(t *testing.T) {
	s := New(storage.NewMemoryStore(), WithCanvasSize(500, 500))
	e, err := s.Create("div", box(10, 10))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !s.Pointer(input.MouseDown, vector.Pt{X: 20, Y: 20}) {
		t.Fatalf("press on surface not consumed")
	}
	if !s.Dragging() {
		t.Fatalf("expected open gesture")
	}
	s.Pointer(input.MouseMove, vector.Pt{X: 1000, Y: 40})
	if got := e.Position(); got != (vector.Pt{X: 396, Y: 30}) {
		t.Fatalf("position after clamp = %+v", got)
	}
	s.Pointer(input.MouseUp, vector.Pt{X: 1000, Y: 40})
	if s.Dragging() {
		t.Fatalf("gesture still open after release")
	}
	s.Pointer(input.MouseMove, vector.Pt{X: 0, Y: 0})
	if got := e.Position(); got != (vector.Pt{X: 396, Y: 30}) {
		t.Fatalf("move after release changed position: %+v", got)
	}
}

func TestDragByDelta(t *testing.T) {
	s := New(storage.NewMemoryStore(), WithCanvasSize(500, 500), WithPadding(0))
	e, _ := s.Create("span", box(10, 10))
	got, err := s.Drag(e.ID(), 25, -50)
	if err != nil {
		t.Fatalf("Drag: %v", err)
	}
	if got != (vector.Pt{X: 35, Y: 0}) {
		t.Fatalf("Drag result = %+v", got)
	}
	if _, err := s.Drag(99, 1, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveRestoreReattachesHandles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := New(store, WithCanvasSize(500, 500), WithKey("page.one"))
	if _, err := s.Create("h2", box(10, 10)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("p", box(200, 200)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, _, _ := store.Read(ctx, "page.one")

	// restoring twice must not stack listeners
	for i := 0; i < 2; i++ {
		res, err := s.Restore(ctx)
		if err != nil || res.DecodeErr != nil {
			t.Fatalf("Restore: %v %v", err, res.DecodeErr)
		}
	}
	if s.Len() != 2 || s.Canvas().Len() != 2 {
		t.Fatalf("restore produced %d entities, %d surfaces", s.Len(), s.Canvas().Len())
	}
	if _, err := s.Drag(1, 5, 5); err != nil {
		t.Fatalf("Drag restored entity: %v", err)
	}
	if p, _ := s.Position(1); p != (vector.Pt{X: 15, Y: 15}) {
		t.Fatalf("restored entity moved to %+v", p)
	}
	e, err := s.Create("p", box(0, 0))
	if err != nil {
		t.Fatalf("Create after restore: %v", err)
	}
	if e.ID() != 3 {
		t.Fatalf("id after restore = %d, want 3", e.ID())
	}
	s.Remove(e.ID())
	s.Drag(1, -5, -5)
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, _, _ := store.Read(ctx, "page.one")
	if first != second {
		t.Fatalf("save after restore differs:\n%s\n---\n%s", first, second)
	}
}

func TestAutosaveUsesSeparateKey(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := New(store)
	if _, err := s.Create("p", box(1, 1)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Autosave(ctx, s.Key()+".crash"); err != nil {
		t.Fatalf("Autosave: %v", err)
	}
	if _, ok, _ := store.Read(ctx, s.Key()); ok {
		t.Fatalf("autosave wrote the main key")
	}
	if v, ok, _ := store.Read(ctx, "canvas.entities.crash"); !ok || !strings.Contains(v, `"records"`) {
		t.Fatalf("autosave value missing: %q", v)
	}
}

func TestReplayScript(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	s := New(store, WithCanvasSize(500, 500))
	sc, errs := script.Parse(`create paragraph name="Intro" text="Hi" x=10 y=10 w=100 h=100
create image name=pic src=a.png x=300 y=300 w=50 h=50
down 20 20
move -10 -10
up
touchstart 310 310
touchmove 320 315
touchend
remove 9
save`)
	if len(errs) != 0 {
		t.Fatalf("parse: %+v", errs)
	}
	st, err := s.Replay(ctx, sc)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(st.Created) != 2 || st.Saves != 1 || st.Removed != 0 || st.Steps != 10 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.Consumed != 4 {
		t.Fatalf("consumed = %d, want 4", st.Consumed)
	}
	if p, _ := s.Position(1); p != (vector.Pt{X: 0, Y: 0}) {
		t.Fatalf("paragraph at %+v", p)
	}
	if p, _ := s.Position(2); p != (vector.Pt{X: 310, Y: 305}) {
		t.Fatalf("image at %+v", p)
	}
	if _, ok, _ := store.Read(ctx, s.Key()); !ok {
		t.Fatalf("replay save did not write")
	}
}

func TestReplayStopsAtFailingStep(t *testing.T) {
	s := New(storage.NewMemoryStore())
	sc, _ := script.Parse("create paragraph x=1\ncreate banner\ncreate div")
	st, err := s.Replay(context.Background(), sc)
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("expected failure on line 2, got %v", err)
	}
	var iv *domain.InvalidVariantError
	if !errors.As(err, &iv) {
		t.Fatalf("expected InvalidVariantError in chain, got %v", err)
	}
	if st.Steps != 1 || s.Len() != 1 {
		t.Fatalf("steps=%d entities=%d", st.Steps, s.Len())
	}
}

func TestFieldsFromArgs(t *testing.T) {
	f, err := FieldsFromArgs(map[string]string{"name": "Hero Title", "x": "4.5", "font_size": "18", "url": "https://x.test"})
	if err != nil {
		t.Fatalf("FieldsFromArgs: %v", err)
	}
	if f.Name != "Hero Title" || f.Position.X != 4.5 || f.Style.FontSize != "18" || f.Content.URL != "https://x.test" {
		t.Fatalf("unexpected fields: %+v", f)
	}
	if _, err := FieldsFromArgs(map[string]string{"w": "wide"}); err == nil {
		t.Fatalf("expected number error")
	}
	if _, err := FieldsFromArgs(map[string]string{"colour": "red"}); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestSecondPressDuringGestureIsIgnored(t *testing.T) {
	s := New(storage.NewMemoryStore(), WithCanvasSize(500, 500))
	a, _ := s.Create("span", box(10, 10))
	b, _ := s.Create("span", box(200, 200))

	if !s.Pointer(input.MouseDown, vector.Pt{X: 10, Y: 10}) {
		t.Fatalf("press on a not consumed")
	}
	// no release for a, then a press on b
	if s.Pointer(input.TouchStart, vector.Pt{X: 200, Y: 200}) {
		t.Fatalf("press during open gesture was consumed")
	}
	s.Pointer(input.MouseMove, vector.Pt{X: 30, Y: 30})
	s.Pointer(input.MouseUp, vector.Pt{X: 30, Y: 30})

	if got := a.Position(); got != (vector.Pt{X: 30, Y: 30}) {
		t.Fatalf("a = %+v", got)
	}
	if got := b.Position(); got != (vector.Pt{X: 200, Y: 200}) {
		t.Fatalf("b moved with a: %+v", got)
	}
	if s.Dragging() {
		t.Fatalf("gesture still open after release")
	}
	// b is draggable again once the gesture is over
	s.Pointer(input.MouseDown, vector.Pt{X: 200, Y: 200})
	s.Pointer(input.MouseMove, vector.Pt{X: 230, Y: 230})
	s.Pointer(input.MouseUp, vector.Pt{X: 230, Y: 230})
	if got := b.Position(); got != (vector.Pt{X: 230, Y: 230}) {
		t.Fatalf("b = %+v", got)
	}
	if got := a.Position(); got != (vector.Pt{X: 30, Y: 30}) {
		t.Fatalf("a moved with b: %+v", got)
	}
}

func TestDragEndsOpenGesture(t *testing.T) {
	s := New(storage.NewMemoryStore(), WithCanvasSize(500, 500), WithPadding(0))
	a, _ := s.Create("span", box(10, 10))
	b, _ := s.Create("span", box(200, 200))
	s.Pointer(input.MouseDown, vector.Pt{X: 10, Y: 10})

	got, err := s.Drag(b.ID(), 20, 20)
	if err != nil {
		t.Fatalf("Drag: %v", err)
	}
	if got != (vector.Pt{X: 220, Y: 220}) || a.Position() != (vector.Pt{X: 10, Y: 10}) {
		t.Fatalf("a=%+v b=%+v", a.Position(), got)
	}
	if s.Dragging() {
		t.Fatalf("gesture left open")
	}
}

func TestBackupRecoveryIsOptIn(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	src := New(store)
	_, _ = src.Create("p", box(10, 10))
	if err := src.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_ = store.Write(ctx, src.Key(), "{not json")

	plain := New(store)
	res, err := plain.Restore(ctx)
	if err != nil || res.DecodeErr == nil || plain.Len() != 0 {
		t.Fatalf("default restore: len=%d res=%+v err=%v", plain.Len(), res, err)
	}
	rec := New(store, WithBackupRecovery())
	res, err = rec.Restore(ctx)
	if err != nil || !res.FromBackup || rec.Len() != 1 {
		t.Fatalf("recovering restore: len=%d res=%+v err=%v", rec.Len(), res, err)
	}
}
