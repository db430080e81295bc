/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session wires one canvas, one entity collection, one input
// dispatcher, a store and the snapshot pipeline into an editing session.
//
// Every exported method takes the session lock, so callbacks arriving from a
// desktop frontend or an HTTP handler are serialized onto one logical event
// loop and a save never observes a half-applied drag step.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/drag"
	"pagecomposer/internal/input"
	applog "pagecomposer/internal/log"
	"pagecomposer/internal/snapshot"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/surface"
	"pagecomposer/internal/vector"
)

// Default canvas extent in pixels.
const (
	DefaultWidth  = 800.0
	DefaultHeight = 600.0
)

// ErrNotFound is returned when an entity id is not part of the session.
var ErrNotFound = errors.New("entity not found")

type settings struct {
	width, height float64
	padding       float64
	key           string
	backups       bool
	logger        *slog.Logger
}

// Option configures a Session.
type Option func(*settings)

// WithCanvasSize sets the canvas extent. Non-positive values keep the default.
func WithCanvasSize(width, height float64) Option {
	return func(s *settings) {
		if width > 0 {
			s.width = width
		}
		if height > 0 {
			s.height = height
		}
	}
}

// WithPadding sets the drag border allowance.
func WithPadding(px float64) Option { return func(s *settings) { s.padding = px } }

// WithKey sets the store key the page is saved under.
func WithKey(key string) Option {
	return func(s *settings) {
		if key != "" {
			s.key = key
		}
	}
}

// WithBackupRecovery lets Restore fall back to the latest backup when the
// stored page is rejected.
func WithBackupRecovery() Option { return func(s *settings) { s.backups = true } }

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.logger = l } }

// Session is a single editable page.
type Session struct {
	mu      sync.Mutex
	canvas  *surface.Canvas
	coll    *domain.Collection
	disp    *input.Dispatcher
	store   storage.Store
	pipe    *snapshot.Pipeline
	handles map[domain.ID]*drag.Handle
	log     *slog.Logger

	dragOpts []drag.Option
	pointer  vector.Pt
}

// New returns an empty session backed by store.
func New(store storage.Store, opts ...Option) *Session {
	cfg := settings{
		width:   DefaultWidth,
		height:  DefaultHeight,
		padding: drag.DefaultPadding,
		key:     snapshot.DefaultKey,
		logger:  applog.WithComponent("session"),
	}
	for _, o := range opts {
		o(&cfg)
	}
	dragOpts := []drag.Option{drag.WithPadding(cfg.padding)}
	pipeOpts := []snapshot.Option{snapshot.WithKey(cfg.key), snapshot.WithDragOptions(dragOpts...)}
	if cfg.backups {
		pipeOpts = append(pipeOpts, snapshot.WithBackupRecovery())
	}
	return &Session{
		canvas:   surface.NewCanvas(cfg.width, cfg.height),
		coll:     domain.NewCollection(),
		disp:     input.NewDispatcher(),
		store:    store,
		pipe:     snapshot.NewPipeline(store, pipeOpts...),
		handles:  make(map[domain.ID]*drag.Handle),
		log:      cfg.logger,
		dragOpts: dragOpts,
	}
}

// Key returns the store key of the page.
func (s *Session) Key() string { return s.pipe.Key() }

// Store returns the backing store.
func (s *Session) Store() storage.Store { return s.store }

// Canvas returns the page canvas. Callers must not mutate it concurrently with the session.
func (s *Session) Canvas() *surface.Canvas { return s.canvas }

// Create builds an entity, displays it and makes it draggable.
// On error the session is unchanged apart from a possibly consumed id.
func (s *Session) Create(discriminator string, f domain.FieldSet) (*domain.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.create(discriminator, f)
}

func (s *Session) create(discriminator string, f domain.FieldSet) (*domain.Entity, error) {
	l := applog.WithOperation(s.log, "create")
	e, err := s.coll.Create(discriminator, f)
	if err != nil {
		l.Warn("create rejected", slog.String("variant", discriminator), slog.Any("err", err))
		return nil, err
	}
	s.canvas.Append(e.Surface())
	h, err := drag.Attach(e, s.canvas, s.disp, s.dragOpts...)
	if err != nil {
		s.coll.Remove(e.ID())
		return nil, err
	}
	s.handles[e.ID()] = h
	l.Info("entity created", slog.Int64("id", int64(e.ID())), slog.String("variant", e.Variant().String()),
		slog.String("name", e.Name()))
	return e, nil
}

// Remove detaches the entity and its drag handle. It reports whether the id was present.
func (s *Session) Remove(id domain.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(id)
}

func (s *Session) remove(id domain.ID) bool {
	if h, ok := s.handles[id]; ok {
		h.Detach()
		delete(s.handles, id)
	}
	ok := s.coll.Remove(id)
	if ok {
		s.log.Info("entity removed", slog.Int64("id", int64(id)))
	}
	return ok
}

// Get returns the entity with the given id.
func (s *Session) Get(id domain.ID) (*domain.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Get(id)
}

// Entities returns the live entities ordered by id.
func (s *Session) Entities() []*domain.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Entities()
}

// Len returns the number of entities.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coll.Len()
}

// Dragging reports whether any gesture is open.
func (s *Session) Dragging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dragging()
}

func (s *Session) dragging() bool {
	for _, h := range s.handles {
		if h.State() == drag.Dragging {
			return true
		}
	}
	return false
}

// Save writes the page under the session key.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.Save(ctx, s.coll)
}

// Autosave writes the page under an alternate key, leaving the main value untouched.
func (s *Session) Autosave(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.SaveTo(ctx, key, s.coll)
}

// Restore replaces the page with the stored snapshot. Existing handles are
// detached first so no listener outlives its entity.
func (s *Session) Restore(ctx context.Context) (snapshot.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restore(ctx)
}

func (s *Session) restore(ctx context.Context) (snapshot.Result, error) {
	for id, h := range s.handles {
		h.Detach()
		delete(s.handles, id)
	}
	s.canvas.Clear()
	res, err := s.pipe.Restore(ctx, s.coll, s.canvas, s.disp)
	if err != nil {
		return res, err
	}
	for id, h := range res.Handles {
		s.handles[id] = h
	}
	return res, nil
}

// Pointer feeds one pointer event into the page. Press events are targeted at
// the top-most surface under p; moves and releases are delivered untargeted
// so an open gesture keeps tracking the pointer outside its surface. A press
// while a gesture is open is dropped, so only one entity moves at a time. It
// reports whether a listener consumed the event.
func (s *Session) Pointer(kind input.Kind, p vector.Pt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointerAt(kind, p)
}

func (s *Session) pointerAt(kind input.Kind, p vector.Pt) bool {
	var target *surface.Surface
	if kind == input.MouseDown || kind == input.TouchStart {
		if s.dragging() {
			s.log.Debug("press ignored during open gesture", slog.String("kind", kind.String()))
			return false
		}
		target = s.canvas.HitTest(p)
	}
	return s.dispatch(kind, p, target)
}

// endGesture releases an open gesture where the pointer last was.
func (s *Session) endGesture() {
	s.dispatch(input.MouseUp, s.pointer, nil)
	s.dispatch(input.TouchCancel, s.pointer, nil)
}

func (s *Session) dispatch(kind input.Kind, p vector.Pt, target *surface.Surface) bool {
	s.pointer = p
	var ev *input.Event
	if kind.Source() == input.SourceTouch {
		ev = input.Touch(kind, p, target)
	} else {
		ev = input.Mouse(kind, p, target)
	}
	s.disp.Dispatch(ev)
	return ev.DefaultPrevented()
}

// Drag moves an entity by (dx, dy) with a complete mouse gesture pressed at
// the entity's top-left corner. The result is clamped like any interactive
// drag. It returns the final position.
func (s *Session) Drag(id domain.ID, dx, dy float64) (vector.Pt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.coll.Get(id)
	if !ok {
		return vector.Pt{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if s.dragging() {
		s.endGesture()
	}
	start := e.Position()
	s.dispatch(input.MouseDown, start, e.Surface())
	s.dispatch(input.MouseMove, start.Add(vector.Pt{X: dx, Y: dy}), nil)
	s.dispatch(input.MouseUp, s.pointer, nil)
	return e.Position(), nil
}

// Markup renders the canvas with all displayed surfaces.
func (s *Session) Markup() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canvas.Markup()
}

// Close detaches every handle and closes the store when it holds resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range s.handles {
		h.Detach()
		delete(s.handles, id)
	}
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
