/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package vector

// Canvas geometry in local pixel space. The origin is the top-left corner of
// the canvas and values may be sub-pixel.

import "math"

// Pt is a 2D point.
type Pt struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair.
type Size struct {
	W float64 `json:"width"`
	H float64 `json:"height"`
}

// Rect is an axis-aligned rectangle defined by min corner and size.
type Rect struct {
	X, Y float64
	W, H float64
}

func R(x, y, w, h float64) Rect { return Rect{X: x, Y: y, W: w, H: h} }

// RectAt places a size at a point.
func RectAt(p Pt, s Size) Rect { return Rect{X: p.X, Y: p.Y, W: s.W, H: s.H} }

func (r Rect) Min() Pt    { return Pt{r.X, r.Y} }
func (r Rect) Max() Pt    { return Pt{r.X + r.W, r.Y + r.H} }
func (r Rect) Size() Size { return Size{W: r.W, H: r.H} }

func (r Rect) Contains(p Pt) bool {
	return p.X >= r.X && p.Y >= r.Y && p.X <= r.X+r.W && p.Y <= r.Y+r.H
}

// Inset returns a rectangle inset by dx,dy on all sides (negative grows).
func (r Rect) Inset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, W: r.W - 2*dx, H: r.H - 2*dy}
}

// Union returns the minimal rect containing both.
func (r Rect) Union(o Rect) Rect {
	minX := math.Min(r.X, o.X)
	minY := math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.W, o.X+o.W)
	maxY := math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// Add returns p translated by d.
func (p Pt) Add(d Pt) Pt { return Pt{X: p.X + d.X, Y: p.Y + d.Y} }

// Sub returns the vector from o to p.
func (p Pt) Sub(o Pt) Pt { return Pt{X: p.X - o.X, Y: p.Y - o.Y} }

// Bound is the inclusive range an axis may take.
type Bound struct{ Min, Max float64 }

// AxisBound returns the admissible range for the top-left coordinate of an
// item of extent item inside a container of extent container, keeping pad
// pixels free at the far edge. If the item does not fit, both ends are 0.
func AxisBound(container, item, pad float64) Bound {
	hi := container - item - pad
	if hi < 0 || math.IsNaN(hi) {
		hi = 0
	}
	return Bound{Min: 0, Max: hi}
}

// Clamp pins v into b. The second result reports whether v was outside.
func (b Bound) Clamp(v float64) (float64, bool) {
	switch {
	case v < b.Min:
		return b.Min, true
	case v > b.Max:
		return b.Max, true
	}
	return v, false
}

// ClampRect pins the top-left of an item of size s inside a container of
// size c, independently per axis.
func ClampRect(p Pt, s Size, c Size, pad float64) (Pt, bool) {
	x, cx := AxisBound(c.W, s.W, pad).Clamp(p.X)
	y, cy := AxisBound(c.H, s.H, pad).Clamp(p.Y)
	return Pt{X: x, Y: y}, cx || cy
}

// FloatRound rounds v to n decimal places deterministically.
func FloatRound(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
