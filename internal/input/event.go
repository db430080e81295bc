/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package input models pointer events and dispatches them to listeners
// synchronously, in subscription order.
package input

import (
	"fmt"

	"pagecomposer/internal/surface"
	"pagecomposer/internal/vector"
)

// Kind is the type of a pointer event.
type Kind uint8

const (
	MouseDown Kind = iota + 1
	MouseMove
	MouseUp
	TouchStart
	TouchMove
	TouchEnd
	TouchCancel
)

var kindNames = map[Kind]string{
	MouseDown:   "mousedown",
	MouseMove:   "mousemove",
	MouseUp:     "mouseup",
	TouchStart:  "touchstart",
	TouchMove:   "touchmove",
	TouchEnd:    "touchend",
	TouchCancel: "touchcancel",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves an event name such as "mousedown".
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown event kind %q", name)
}

// Source is the kind of pointer that produced an event.
type Source uint8

const (
	SourceMouse Source = iota + 1
	SourceTouch
)

// Source reports whether the event came from a mouse or a touch contact.
func (k Kind) Source() Source {
	switch k {
	case TouchStart, TouchMove, TouchEnd, TouchCancel:
		return SourceTouch
	default:
		return SourceMouse
	}
}

// Event is a single pointer event in canvas-local coordinates. For touch
// events Point mirrors the first entry of Touches.
type Event struct {
	Kind    Kind
	Point   vector.Pt
	Touches []vector.Pt
	Target  *surface.Surface

	passive   bool
	prevented bool
}

// Pointer returns the coordinates of the primary pointer.
func (e *Event) Pointer() vector.Pt {
	if e.Kind.Source() == SourceTouch && len(e.Touches) > 0 {
		return e.Touches[0]
	}
	return e.Point
}

// PreventDefault suppresses the default handling of the event. It has no
// effect inside a passive listener.
func (e *Event) PreventDefault() {
	if e.passive {
		return
	}
	e.prevented = true
}

// DefaultPrevented reports whether a non-passive listener called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// Mouse builds a mouse event at p.
func Mouse(k Kind, p vector.Pt, target *surface.Surface) *Event {
	return &Event{Kind: k, Point: p, Target: target}
}

// Touch builds a touch event whose primary contact is p.
func Touch(k Kind, p vector.Pt, target *surface.Surface) *Event {
	return &Event{Kind: k, Point: p, Touches: []vector.Pt{p}, Target: target}
}
