/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	applog "pagecomposer/internal/log"
)

// Sequence hands out monotonically increasing ids. The zero value starts at 1.
type Sequence struct {
	last ID
}

// NewSequence returns a sequence whose next id is after last.
func NewSequence(last ID) *Sequence { return &Sequence{last: last} }

// Next returns a fresh id.
func (s *Sequence) Next() ID {
	s.last++
	return s.last
}

// Observe makes sure ids handed out later are greater than id.
func (s *Sequence) Observe(id ID) {
	if id > s.last {
		s.last = id
	}
}

// Last returns the most recently issued or observed id.
func (s *Sequence) Last() ID { return s.last }

// Factory builds entities from a discriminator and raw field values.
type Factory interface {
	CreateEntity(discriminator string, fields FieldSet) (*Entity, error)
}

// Registry is the default Factory. It dispatches on the static variant table
// and draws ids from its sequence.
type Registry struct {
	seq *Sequence
}

// NewRegistry returns a factory drawing ids from seq.
func NewRegistry(seq *Sequence) *Registry {
	if seq == nil {
		seq = &Sequence{}
	}
	return &Registry{seq: seq}
}

// CreateEntity validates the variant before an id is drawn, so a rejected
// construction does not consume one.
func (r *Registry) CreateEntity(discriminator string, fields FieldSet) (*Entity, error) {
	if _, err := ParseVariant(discriminator); err != nil {
		return nil, err
	}
	fields.Variant = discriminator
	e, err := NewEntity(r.seq.Next(), fields)
	if err != nil {
		return nil, err
	}
	if st := e.Style(); st.Color != "" && strings.EqualFold(st.Color, st.Background) {
		applog.WithComponent("entity").Warn("text and background colors are the same",
			slog.Int64("id", int64(e.ID())), slog.String("color", st.Color))
	}
	return e, nil
}

// ErrDuplicateID is returned when an id is already present in the collection.
var ErrDuplicateID = errors.New("duplicate entity id")

// Collection is the live set of placed entities keyed by id.
type Collection struct {
	seq     *Sequence
	factory Factory
	items   map[ID]*Entity
}

// CollectionOption configures a Collection.
type CollectionOption func(*Collection)

// WithSequence injects the id sequence.
func WithSequence(seq *Sequence) CollectionOption {
	return func(c *Collection) { c.seq = seq }
}

// WithFactory replaces the default registry.
func WithFactory(f Factory) CollectionOption {
	return func(c *Collection) { c.factory = f }
}

// NewCollection returns an empty collection.
func NewCollection(opts ...CollectionOption) *Collection {
	c := &Collection{items: make(map[ID]*Entity)}
	for _, o := range opts {
		o(c)
	}
	if c.seq == nil {
		c.seq = &Sequence{}
	}
	if c.factory == nil {
		c.factory = NewRegistry(c.seq)
	}
	return c
}

// Sequence returns the id sequence used by the collection.
func (c *Collection) Sequence() *Sequence { return c.seq }

// Create builds an entity through the factory and inserts it.
// On error the collection is unchanged.
func (c *Collection) Create(discriminator string, fields FieldSet) (*Entity, error) {
	e, err := c.factory.CreateEntity(discriminator, fields)
	if err != nil {
		return nil, err
	}
	if err := c.Insert(e); err != nil {
		e.Detach()
		return nil, err
	}
	return e, nil
}

// Insert adds an entity under its own id.
func (c *Collection) Insert(e *Entity) error {
	if e == nil {
		return errors.New("nil entity")
	}
	if _, ok := c.items[e.id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, e.id)
	}
	c.items[e.id] = e
	c.seq.Observe(e.id)
	return nil
}

// Get returns the entity with the given id.
func (c *Collection) Get(id ID) (*Entity, bool) {
	e, ok := c.items[id]
	return e, ok
}

// Remove detaches the entity's surface and drops it. It reports whether the id was present.
func (c *Collection) Remove(id ID) bool {
	e, ok := c.items[id]
	if !ok {
		return false
	}
	e.Detach()
	delete(c.items, id)
	return true
}

// Len returns the number of entities.
func (c *Collection) Len() int { return len(c.items) }

// Entities returns all entities ordered by id.
func (c *Collection) Entities() []*Entity {
	out := make([]*Entity, 0, len(c.items))
	for _, e := range c.items {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Clear detaches and drops every entity. The sequence is kept so ids are not reused.
func (c *Collection) Clear() {
	for id, e := range c.items {
		e.Detach()
		delete(c.items, id)
	}
}
