/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders a page of placed entities to static previews:
// PNG raster, PDF and Markdown.
package export

import (
	"sort"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/vector"
)

// Page is a snapshot of the canvas extent and its entities in stacking order.
type Page struct {
	Width, Height float64
	Entities      []*domain.Entity
}

// NewPage builds a page from a canvas size and the entities drawn on it.
func NewPage(size vector.Size, entities []*domain.Entity) Page {
	return Page{Width: size.W, Height: size.H, Entities: entities}
}

// ReadingOrder returns the entities sorted top to bottom, then left to right.
func (p Page) ReadingOrder() []*domain.Entity {
	out := append([]*domain.Entity(nil), p.Entities...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Position(), out[j].Position()
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}
