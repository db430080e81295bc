/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package surface

import (
	"html"
	"strings"

	"pagecomposer/internal/vector"
)

// Canvas is the bounded container that displays surfaces. Its client extents
// bound every drag; the order of surfaces is paint order (last on top).
type Canvas struct {
	id       string
	width    float64
	height   float64
	surfaces []*Surface
}

// NewCanvas creates an empty canvas with the given client size.
func NewCanvas(width, height float64) *Canvas {
	return &Canvas{id: "workspace", width: width, height: height}
}

func (c *Canvas) ClientWidth() float64  { return c.width }
func (c *Canvas) ClientHeight() float64 { return c.height }

// Size returns the client extents.
func (c *Canvas) Size() vector.Size { return vector.Size{W: c.width, H: c.height} }

// Resize changes the client extents. Surfaces are not moved.
func (c *Canvas) Resize(width, height float64) {
	c.width, c.height = width, height
}

// Append displays s on top of the others. A surface attached elsewhere is
// moved; appending an attached surface again moves it to the top.
func (c *Canvas) Append(s *Surface) {
	if s == nil {
		return
	}
	if s.canvas != nil {
		s.canvas.Remove(s)
	}
	c.surfaces = append(c.surfaces, s)
	s.canvas = c
}

// Remove detaches s. Removing a surface that is not displayed is a no-op.
func (c *Canvas) Remove(s *Surface) {
	for i, x := range c.surfaces {
		if x == s {
			c.surfaces = append(c.surfaces[:i], c.surfaces[i+1:]...)
			s.canvas = nil
			return
		}
	}
}

// Contains reports whether s is displayed by this canvas.
func (c *Canvas) Contains(s *Surface) bool {
	for _, x := range c.surfaces {
		if x == s {
			return true
		}
	}
	return false
}

// Len returns the number of displayed surfaces.
func (c *Canvas) Len() int { return len(c.surfaces) }

// Surfaces returns the displayed surfaces in paint order.
func (c *Canvas) Surfaces() []*Surface { return append([]*Surface(nil), c.surfaces...) }

// Clear detaches every surface.
func (c *Canvas) Clear() {
	for _, s := range c.surfaces {
		s.canvas = nil
	}
	c.surfaces = nil
}

// HitTest returns the top-most surface containing p, or nil.
func (c *Canvas) HitTest(p vector.Pt) *Surface {
	for i := len(c.surfaces) - 1; i >= 0; i-- {
		if c.surfaces[i].Bounds().Contains(p) {
			return c.surfaces[i]
		}
	}
	return nil
}

// Markup renders the canvas container with all displayed surfaces.
func (c *Canvas) Markup() string {
	var b strings.Builder
	b.WriteString(`<div id="`)
	b.WriteString(html.EscapeString(c.id))
	b.WriteString(`" style="position: relative; width: `)
	b.WriteString(Px(c.width))
	b.WriteString(`; height: `)
	b.WriteString(Px(c.height))
	b.WriteString(`">`)
	for _, s := range c.surfaces {
		b.WriteString(s.OuterMarkup())
	}
	b.WriteString(`</div>`)
	return b.String()
}
