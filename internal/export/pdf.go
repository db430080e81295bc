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
	"image/color"
	"io"

	"github.com/jung-kurt/gofpdf"

	"pagecomposer/internal/domain"
)

// PDFOptions controls PDF export behavior.
// Units are points with one point per canvas pixel, so the page has the
// canvas extent. Text uses the built-in Helvetica and stays vector.
type PDFOptions struct {
	Title         string
	IncludeGuides bool
}

const defaultFontPx = 12.0

// WritePDF renders the page as a single-page PDF to w.
func WritePDF(w io.Writer, p Page, opt PDFOptions) error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("page has no extent")
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: p.Width, Ht: p.Height},
	})
	title := opt.Title
	if title == "" {
		title = "Page preview"
	}
	pdf.SetTitle(title, true)
	pdf.SetAuthor("Page Composer", false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, e := range p.Entities {
		b := e.Bounds()
		if b.W <= 0 || b.H <= 0 {
			continue
		}
		st := e.Style()
		style := ""
		if bg, ok := parseColor(st.Background); ok {
			setFillColor(pdf, bg)
			style = "F"
		}
		if opt.IncludeGuides {
			setDrawColor(pdf, color.RGBA{160, 160, 160, 255})
			pdf.SetLineWidth(0.5)
			style += "D"
		}
		if style != "" {
			pdf.Rect(b.X, b.Y, b.W, b.H, style)
		}

		size := fontPx(st.FontSize, defaultFontPx)
		pdf.SetFont("Helvetica", "", size)
		fg := color.RGBA{0, 0, 0, 255}
		if c, ok := parseColor(st.Color); ok {
			fg = c
		}
		text := e.Content().Text
		switch e.Variant() {
		case domain.VariantImage:
			setDrawColor(pdf, color.RGBA{160, 160, 160, 255})
			pdf.SetLineWidth(0.5)
			pdf.Line(b.X, b.Y, b.X+b.W, b.Y+b.H)
			pdf.Line(b.X+b.W, b.Y, b.X, b.Y+b.H)
			text = e.Content().Alt
		case domain.VariantLink:
			fg = color.RGBA{0, 0, 238, 255}
			if u := e.Content().URL; u != "" {
				pdf.LinkString(b.X, b.Y, b.W, b.H, u)
			}
		}
		if text == "" {
			continue
		}
		pdf.SetTextColor(int(fg.R), int(fg.G), int(fg.B))
		pdf.ClipRect(b.X, b.Y, b.W, b.H, false)
		lineH := size * 1.2
		y := b.Y + size
		for _, ln := range pdf.SplitLines([]byte(tr(text)), b.W-4) {
			if y-size > b.Y+b.H {
				break
			}
			pdf.Text(b.X+2, y, string(ln))
			y += lineH
		}
		pdf.ClipEnd()
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
