/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"pagecomposer/internal/domain"
)

// PNGOptions controls PNG export behavior.
// - Scale: output pixels per canvas pixel (default 1)
// - IncludeGuides: draw each entity's bounding box
// - Colors default to a white page, gray guides and black text when zero.
type PNGOptions struct {
	Scale         float64
	IncludeGuides bool
	Background    color.RGBA
	GuideColor    color.RGBA
	TextColor     color.RGBA
}

func (o PNGOptions) withDefaults() PNGOptions {
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Background == (color.RGBA{}) {
		o.Background = color.RGBA{255, 255, 255, 255}
	}
	if o.GuideColor == (color.RGBA{}) {
		o.GuideColor = color.RGBA{160, 160, 160, 255}
	}
	if o.TextColor == (color.RGBA{}) {
		o.TextColor = color.RGBA{0, 0, 0, 255}
	}
	return o
}

// RenderPNG rasterizes the page. Entities are painted in stacking order.
func RenderPNG(p Page, opt PNGOptions) *image.RGBA {
	opt = opt.withDefaults()
	pixW := int(math.Round(p.Width * opt.Scale))
	pixH := int(math.Round(p.Height * opt.Scale))
	img := image.NewRGBA(image.Rect(0, 0, max(pixW, 1), max(pixH, 1)))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: opt.Background}, image.Point{}, draw.Src)

	for _, e := range p.Entities {
		b := e.Bounds()
		x0 := int(math.Round(b.X * opt.Scale))
		y0 := int(math.Round(b.Y * opt.Scale))
		x1 := int(math.Round((b.X+b.W)*opt.Scale)) - 1
		y1 := int(math.Round((b.Y+b.H)*opt.Scale)) - 1
		if x1 < x0 || y1 < y0 {
			continue
		}
		st := e.Style()
		if bg, ok := parseColor(st.Background); ok {
			fillRect(img, x0, y0, x1, y1, bg)
		}
		if opt.IncludeGuides {
			strokeRect(img, x0, y0, x1, y1, opt.GuideColor)
		}
		box := image.Rect(x0, y0, x1+1, y1+1).Intersect(img.Bounds())
		if box.Empty() {
			continue
		}
		dst := img.SubImage(box).(*image.RGBA)
		fg := opt.TextColor
		if c, ok := parseColor(st.Color); ok {
			fg = c
		}
		switch e.Variant() {
		case domain.VariantImage:
			drawPlaceholder(dst, opt.GuideColor)
			drawLines(dst, []string{e.Content().Alt}, fg)
		case domain.VariantLink:
			drawLines(dst, wrapText(e.Content().Text, box.Dx()-4), color.RGBA{0, 0, 238, 255})
			underline(dst, e.Content().Text, color.RGBA{0, 0, 238, 255})
		default:
			drawLines(dst, wrapText(e.Content().Text, box.Dx()-4), fg)
		}
	}
	return img
}

// WritePNG renders the page and encodes it to w.
func WritePNG(w io.Writer, p Page, opt PNGOptions) error {
	if err := png.Encode(w, RenderPNG(p, opt)); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// drawLines prints lines from the top-left of dst with a 2px inset. Text
// outside dst is clipped.
func drawLines(dst *image.RGBA, lines []string, col color.RGBA) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(col), Face: face}
	asc := face.Metrics().Ascent.Ceil()
	y := dst.Bounds().Min.Y + 2 + asc
	for _, ln := range lines {
		if y-asc > dst.Bounds().Max.Y {
			break
		}
		d.Dot = fixed.P(dst.Bounds().Min.X+2, y)
		d.DrawString(ln)
		y += lineHeight()
	}
}

func underline(dst *image.RGBA, text string, col color.RGBA) {
	b := dst.Bounds()
	y := b.Min.Y + 2 + face.Metrics().Ascent.Ceil() + 1
	x1 := min(b.Min.X+2+advance(text), b.Max.X-1)
	for x := b.Min.X + 2; x <= x1; x++ {
		if (image.Point{X: x, Y: y}).In(b) {
			dst.SetRGBA(x, y, col)
		}
	}
}

// drawPlaceholder marks an image area with its diagonals.
func drawPlaceholder(dst *image.RGBA, col color.RGBA) {
	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return
	}
	steps := max(w, h)
	for i := 0; i < steps; i++ {
		x := b.Min.X + i*(w-1)/(steps-1)
		y := b.Min.Y + i*(h-1)/(steps-1)
		dst.SetRGBA(x, y, col)
		dst.SetRGBA(b.Max.X-1-(x-b.Min.X), y, col)
	}
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	draw.Draw(img, image.Rect(x0, y0, x1+1, y1+1), &image.Uniform{C: col}, image.Point{}, draw.Src)
}
