/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain holds the in-memory model of a composed page: entities of a
// closed set of variants, the live collection keyed by id, and the sequence
// that hands out ids.
//
// FieldSet is the serializable form of an entity. It is what the entity
// factory consumes and what a snapshot record stores.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pagecomposer/internal/surface"
	"pagecomposer/internal/vector"
)

// ID identifies an entity within a session. Ids are positive and never reused.
type ID int64

// DefaultLinkTarget is the browsing context links open in.
const DefaultLinkTarget = "_blank"

// Style holds the visual attributes applied to a surface.
type Style struct {
	Background string `json:"backgroundColor"`
	Color      string `json:"textColor"`
	FontSize   string `json:"fontSize"`
	FontFamily string `json:"fontFamily"`
}

// Content is the text of an entity plus the fields only some variants use:
// Src/Alt for images, URL/Target for links.
type Content struct {
	Text   string `json:"text"`
	Src    string `json:"src,omitempty"`
	Alt    string `json:"alt,omitempty"`
	URL    string `json:"url,omitempty"`
	Target string `json:"target,omitempty"`
}

// FieldSet is the raw field data of an entity.
type FieldSet struct {
	ID       ID          `json:"id"`
	Variant  string      `json:"variant"`
	Name     string      `json:"name"`
	Position vector.Pt   `json:"position"`
	Size     vector.Size `json:"size"`
	Style    Style       `json:"style"`
	Content  Content     `json:"content"`
}

var (
	// ErrNoID is returned when an entity is built without an assigned id.
	ErrNoID = errors.New("entity id must be positive")
	// ErrNoSurface is returned when an entity is rebuilt without a surface.
	ErrNoSurface = errors.New("entity surface is required")
)

// Entity is a placed visual item bound to exactly one surface.
type Entity struct {
	id       ID
	variant  Variant
	name     string
	position vector.Pt
	size     vector.Size
	style    Style
	content  Content
	surface  *surface.Surface
}

// NewEntity builds an entity with an already assigned id and materializes its surface.
func NewEntity(id ID, f FieldSet) (*Entity, error) {
	e, err := newEntity(id, f)
	if err != nil {
		return nil, err
	}
	e.Render()
	return e, nil
}

// Rebuild binds field data to an existing surface without rendering it.
// It is used when the surface was reconstructed from captured markup.
func Rebuild(f FieldSet, s *surface.Surface) (*Entity, error) {
	if s == nil {
		return nil, ErrNoSurface
	}
	e, err := newEntity(f.ID, f)
	if err != nil {
		return nil, err
	}
	if s.Tag() != e.variant.Tag() {
		return nil, fmt.Errorf("surface <%s> does not match variant %s", s.Tag(), e.variant)
	}
	e.surface = s
	return e, nil
}

func newEntity(id ID, f FieldSet) (*Entity, error) {
	v, err := ParseVariant(f.Variant)
	if err != nil {
		return nil, err
	}
	if id <= 0 {
		return nil, ErrNoID
	}
	e := &Entity{
		id:       id,
		variant:  v,
		name:     Slug(f.Name),
		position: f.Position,
		size:     f.Size,
		style:    normalizeStyle(f.Style),
		content:  normalizeContent(f.Content),
	}
	if v == VariantLink && e.content.Target == "" {
		e.content.Target = DefaultLinkTarget
	}
	return e, nil
}

func (e *Entity) ID() ID                    { return e.id }
func (e *Entity) Variant() Variant          { return e.variant }
func (e *Entity) Name() string              { return e.name }
func (e *Entity) Position() vector.Pt       { return e.position }
func (e *Entity) Size() vector.Size         { return e.size }
func (e *Entity) Style() Style              { return e.style }
func (e *Entity) Content() Content          { return e.content }
func (e *Entity) Surface() *surface.Surface { return e.surface }
func (e *Entity) Bounds() vector.Rect       { return vector.RectAt(e.position, e.size) }

// ElementID is the id attribute given to the entity's surface.
func (e *Entity) ElementID() string {
	return fmt.Sprintf("created-draggable-element-%s-%d-%s", e.variant.Tag(), e.id, e.name)
}

// Fields returns the serializable form of the entity.
func (e *Entity) Fields() FieldSet {
	return FieldSet{
		ID:       e.id,
		Variant:  e.variant.String(),
		Name:     e.name,
		Position: e.position,
		Size:     e.size,
		Style:    e.style,
		Content:  e.content,
	}
}

// Render creates the surface on first use and refreshes it from the current
// fields. Geometry and style are merged into the surface in one step.
func (e *Entity) Render() *surface.Surface {
	c := capabilities[e.variant]
	if e.surface == nil {
		e.surface = surface.New(c.tag)
	}
	s := e.surface
	s.SetAttr("id", e.ElementID())
	s.SetData("entity-id", strconv.FormatInt(int64(e.id), 10))
	s.SetData("draggable", "true")
	s.ApplyStyles(e.declarations(c))
	c.populate(e, s)
	return s
}

func (e *Entity) declarations(c capability) []surface.Declaration {
	decls := []surface.Declaration{
		{Property: "width", Value: surface.Px(e.size.W)},
		{Property: "height", Value: surface.Px(e.size.H)},
	}
	opt := func(prop, val string) {
		if val != "" {
			decls = append(decls, surface.Declaration{Property: prop, Value: val})
		}
	}
	opt("background-color", e.style.Background)
	opt("color", e.style.Color)
	opt("font-size", e.style.FontSize)
	opt("font-family", e.style.FontFamily)
	decls = append(decls,
		surface.Declaration{Property: "z-index", Value: "1"},
		surface.Declaration{Property: "user-select", Value: "none"},
		surface.Declaration{Property: "position", Value: "absolute"},
		surface.Declaration{Property: "left", Value: surface.Px(e.position.X)},
		surface.Declaration{Property: "top", Value: surface.Px(e.position.Y)},
	)
	return append(decls, c.extra...)
}

// MoveTo updates the position of the entity and its surface together.
func (e *Entity) MoveTo(p vector.Pt) {
	e.position = p
	if e.surface != nil {
		e.surface.MoveTo(p)
	}
}

// SyncFromSurface copies the live offset of the surface into the entity.
func (e *Entity) SyncFromSurface() {
	if e.surface != nil {
		e.position = e.surface.Offset()
	}
}

// SetStyle replaces the style and refreshes the surface.
func (e *Entity) SetStyle(st Style) {
	e.style = normalizeStyle(st)
	e.Render()
}

// SetSize replaces the size and refreshes the surface.
func (e *Entity) SetSize(sz vector.Size) {
	e.size = sz
	e.Render()
}

// SetContent replaces the content and refreshes the surface.
func (e *Entity) SetContent(c Content) {
	if e.variant == VariantLink && c.Target == "" {
		c.Target = DefaultLinkTarget
	}
	e.content = normalizeContent(c)
	e.Render()
}

// Detach removes the surface from its canvas. It is safe to call repeatedly.
func (e *Entity) Detach() {
	if e.surface != nil {
		e.surface.Remove()
	}
}

// Slug lower-cases a display name and replaces spaces with dashes.
func Slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(stripNUL(name))), " ", "-")
}

// stripNUL drops NUL bytes, which markup parsing turns into U+FFFD and
// which would therefore not survive a save and restore.
func stripNUL(s string) string { return strings.ReplaceAll(s, "\x00", "") }

func normalizeContent(c Content) Content {
	c.Text = stripNUL(c.Text)
	c.Src = stripNUL(c.Src)
	c.Alt = stripNUL(c.Alt)
	c.URL = stripNUL(c.URL)
	c.Target = stripNUL(c.Target)
	return c
}

func normalizeStyle(st Style) Style {
	st.Background = strings.TrimSpace(stripNUL(st.Background))
	st.Color = strings.TrimSpace(stripNUL(st.Color))
	st.FontFamily = strings.TrimSpace(stripNUL(st.FontFamily))
	st.FontSize = strings.TrimSpace(stripNUL(st.FontSize))
	if st.FontSize != "" {
		if _, err := strconv.ParseFloat(st.FontSize, 64); err == nil {
			st.FontSize += "px"
		}
	}
	return st
}
