/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package input

import (
	"sync/atomic"

	"pagecomposer/internal/surface"
)

// Listener handles one event.
type Listener func(*Event)

// Options control how a listener is registered.
type Options struct {
	// Once removes the listener before its first invocation.
	Once bool
	// Passive listeners cannot prevent the default action.
	Passive bool
	// Target restricts the listener to events aimed at this surface.
	// A nil target receives every event of the kind.
	Target *surface.Surface
}

type entry struct {
	id   uint64
	kind Kind
	fn   Listener
	opts Options
}

// Dispatcher routes events to subscribed listeners. It is not safe for
// concurrent use; callers serialize access onto one event loop.
type Dispatcher struct {
	listeners map[Kind][]*entry
	next      atomic.Uint64
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[Kind][]*entry)}
}

// Subscription is the handle returned by Listen.
type Subscription struct {
	d *Dispatcher
	e *entry
}

// Cancel removes the listener. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.d == nil {
		return
	}
	s.d.remove(s.e)
	s.d = nil
}

// Active reports whether the listener is still registered.
func (s *Subscription) Active() bool {
	if s == nil || s.d == nil {
		return false
	}
	for _, e := range s.d.listeners[s.e.kind] {
		if e == s.e {
			return true
		}
	}
	return false
}

// Listen subscribes fn to events of kind k.
func (d *Dispatcher) Listen(k Kind, fn Listener, opts Options) *Subscription {
	e := &entry{id: d.next.Add(1), kind: k, fn: fn, opts: opts}
	d.listeners[k] = append(d.listeners[k], e)
	return &Subscription{d: d, e: e}
}

// Count returns the number of listeners registered for k.
func (d *Dispatcher) Count(k Kind) int { return len(d.listeners[k]) }

// Dispatch delivers ev to every matching listener registered at the time of
// the call. Once listeners are removed before they run, so a listener that
// dispatches again cannot observe the same one twice. It reports whether
// any listener was invoked.
func (d *Dispatcher) Dispatch(ev *Event) bool {
	if ev == nil {
		return false
	}
	list := append([]*entry(nil), d.listeners[ev.Kind]...)
	invoked := false
	for _, e := range list {
		if !d.registered(e) {
			continue
		}
		if e.opts.Target != nil && e.opts.Target != ev.Target {
			continue
		}
		if e.opts.Once {
			d.remove(e)
		}
		ev.passive = e.opts.Passive
		e.fn(ev)
		invoked = true
	}
	ev.passive = false
	return invoked
}

func (d *Dispatcher) registered(e *entry) bool {
	for _, x := range d.listeners[e.kind] {
		if x == e {
			return true
		}
	}
	return false
}

func (d *Dispatcher) remove(e *entry) {
	list := d.listeners[e.kind]
	for i, x := range list {
		if x == e {
			d.listeners[e.kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}
