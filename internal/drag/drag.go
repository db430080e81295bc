/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package drag implements pointer-driven repositioning of an entity's surface
// inside a bounded container.
//
// A Handle is a two-state machine. A press on the surface starts a gesture,
// each move translates the surface by the pointer delta clamped per axis to
// the container, and a release or cancel ends it. Clamping never ends a
// gesture.
package drag

import (
	"fmt"
	"log/slog"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/input"
	applog "pagecomposer/internal/log"
	"pagecomposer/internal/surface"
	"pagecomposer/internal/vector"
)

// DefaultPadding is the border allowance kept between a surface and the
// far edges of its container.
const DefaultPadding = 4.0

const (
	cursorIdle     = "grab"
	cursorDragging = "grabbing"
	borderDragging = "3px groove teal"
)

// Container is the area a surface is confined to.
type Container interface {
	ClientWidth() float64
	ClientHeight() float64
}

// State of a drag handle.
type State uint8

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// AttachmentError is returned when a handle cannot be attached. Nothing is
// registered when it is returned.
type AttachmentError struct {
	Entity domain.ID
	Reason string
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attach drag to entity %d: %s", e.Entity, e.Reason)
}

type settings struct {
	padding float64
	logger  *slog.Logger
}

// Option configures Attach.
type Option func(*settings)

// WithPadding overrides DefaultPadding. Negative values are treated as zero.
func WithPadding(px float64) Option {
	return func(s *settings) {
		if px < 0 {
			px = 0
		}
		s.padding = px
	}
}

// WithLogger sets the logger used for clamp and gesture diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// Handle binds one entity's surface to the input dispatcher.
type Handle struct {
	entity    *domain.Entity
	surface   *surface.Surface
	container Container
	disp      *input.Dispatcher
	padding   float64
	log       *slog.Logger

	state   State
	last    vector.Pt
	border  string
	presses []*input.Subscription
	gesture []*input.Subscription
}

// Attach enables dragging for e inside c. Press listeners are scoped to the
// entity's surface.
func Attach(e *domain.Entity, c Container, d *input.Dispatcher, opts ...Option) (*Handle, error) {
	if e == nil {
		return nil, &AttachmentError{Reason: "entity is nil"}
	}
	if c == nil {
		return nil, &AttachmentError{Entity: e.ID(), Reason: "container is nil"}
	}
	if d == nil {
		return nil, &AttachmentError{Entity: e.ID(), Reason: "dispatcher is nil"}
	}
	s := e.Surface()
	if s == nil {
		return nil, &AttachmentError{Entity: e.ID(), Reason: "entity has no surface"}
	}
	cfg := settings{padding: DefaultPadding, logger: applog.WithComponent("drag")}
	for _, o := range opts {
		o(&cfg)
	}
	h := &Handle{
		entity:    e,
		surface:   s,
		container: c,
		disp:      d,
		padding:   cfg.padding,
		log:       cfg.logger.With(slog.Int64("entity", int64(e.ID()))),
	}
	s.SetData("draggable", "true")
	s.SetData("drag-attached", "true")
	s.SetStyle("position", "absolute")
	s.SetStyle("cursor", cursorIdle)
	h.presses = []*input.Subscription{
		d.Listen(input.MouseDown, h.press, input.Options{Target: s}),
		d.Listen(input.TouchStart, h.press, input.Options{Target: s, Passive: false}),
	}
	return h, nil
}

// Entity returns the entity the handle moves.
func (h *Handle) Entity() *domain.Entity { return h.entity }

// State returns the current gesture state.
func (h *Handle) State() State { return h.state }

// Padding returns the border allowance in pixels.
func (h *Handle) Padding() float64 { return h.padding }

// Detach ends any open gesture and removes every listener the handle owns.
func (h *Handle) Detach() {
	if h.state == Dragging {
		h.stop(nil)
	}
	for _, sub := range h.presses {
		sub.Cancel()
	}
	h.presses = nil
	h.surface.RemoveAttr("data-drag-attached")
}

func (h *Handle) press(ev *input.Event) {
	if h.state == Dragging {
		return
	}
	ev.PreventDefault()
	h.state = Dragging
	h.last = ev.Pointer()
	h.border = h.surface.Style("border")
	h.surface.SetStyle("cursor", cursorDragging)
	h.surface.SetStyle("border", borderDragging)

	move, stops := input.MouseMove, []input.Kind{input.MouseUp}
	if ev.Kind.Source() == input.SourceTouch {
		move, stops = input.TouchMove, []input.Kind{input.TouchEnd, input.TouchCancel}
	}
	h.gesture = append(h.gesture[:0], h.disp.Listen(move, h.move, input.Options{}))
	for _, k := range stops {
		h.gesture = append(h.gesture, h.disp.Listen(k, h.stop, input.Options{Once: true}))
	}
	h.log.Debug("drag started", slog.String("source", ev.Kind.String()),
		slog.Float64("x", h.last.X), slog.Float64("y", h.last.Y))
}

func (h *Handle) move(ev *input.Event) {
	if h.state != Dragging {
		return
	}
	ev.PreventDefault()
	cur := ev.Pointer()
	delta := h.last.Sub(cur)
	h.last = cur
	candidate := h.surface.Offset().Sub(delta)
	next, clamped := vector.ClampRect(candidate, h.surface.Extent(),
		vector.Size{W: h.container.ClientWidth(), H: h.container.ClientHeight()}, h.padding)
	if clamped {
		h.log.Debug("drag clamped to container",
			slog.Float64("want_x", candidate.X), slog.Float64("want_y", candidate.Y),
			slog.Float64("x", next.X), slog.Float64("y", next.Y))
	}
	h.entity.MoveTo(next)
}

// stop ends the gesture. ev is nil when called from Detach.
func (h *Handle) stop(ev *input.Event) {
	if h.state != Dragging {
		return
	}
	for _, sub := range h.gesture {
		sub.Cancel()
	}
	h.gesture = h.gesture[:0]
	h.surface.SetStyle("cursor", cursorIdle)
	if h.border == "" {
		h.surface.RemoveStyle("border")
	} else {
		h.surface.SetStyle("border", h.border)
	}
	h.state = Idle
	p := h.surface.Offset()
	if ev != nil {
		h.log.Debug("drag ended", slog.String("source", ev.Kind.String()),
			slog.Float64("x", p.X), slog.Float64("y", p.Y))
	}
}
