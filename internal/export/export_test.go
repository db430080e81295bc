/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/vector"
)

func samplePage(t *testing.T) Page {
	t.Helper()
	c := domain.NewCollection()
	mk := func(disc string, f domain.FieldSet) {
		if _, err := c.Create(disc, f); err != nil {
			t.Fatalf("Create %s: %v", disc, err)
		}
	}
	mk("image", domain.FieldSet{Name: "pic", Position: vector.Pt{X: 150, Y: 120}, Size: vector.Size{W: 80, H: 45},
		Content: domain.Content{Src: "a.png", Alt: "pic"}})
	mk("h1", domain.FieldSet{Name: "Title", Position: vector.Pt{X: 10, Y: 10}, Size: vector.Size{W: 200, H: 40},
		Style: domain.Style{Background: "#ff0000", Color: "white", FontSize: "24"}, Content: domain.Content{Text: "Title"}})
	mk("a", domain.FieldSet{Name: "docs", Position: vector.Pt{X: 10, Y: 60}, Size: vector.Size{W: 120, H: 20},
		Content: domain.Content{Text: "docs", URL: "https://example.com/docs"}})
	mk("p", domain.FieldSet{Name: "body", Position: vector.Pt{X: 10, Y: 90}, Size: vector.Size{W: 120, H: 60},
		Content: domain.Content{Text: "Hello from the page composer"}})
	return NewPage(vector.Size{W: 300, H: 200}, c.Entities())
}

func TestReadingOrder(t *testing.T) {
	p := samplePage(t)
	var names []string
	for _, e := range p.ReadingOrder() {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "title,docs,body,pic" {
		t.Fatalf("reading order = %s", got)
	}
}

func TestRenderPNGPaintsBackgrounds(t *testing.T) {
	p := samplePage(t)
	img := RenderPNG(p, PNGOptions{Scale: 2, IncludeGuides: true})
	if b := img.Bounds(); b.Dx() != 600 || b.Dy() != 400 {
		t.Fatalf("unexpected size %v", b)
	}
	// inside the heading, away from its text
	if got := img.RGBAAt(380, 60); got != (color.RGBA{255, 0, 0, 255}) {
		t.Fatalf("heading background = %v", got)
	}
	// empty canvas area
	if got := img.RGBAAt(590, 390); got != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("page background = %v", got)
	}
	// guide on the paragraph's left edge
	if got := img.RGBAAt(20, 250); got != (color.RGBA{160, 160, 160, 255}) {
		t.Fatalf("guide color = %v", got)
	}
}

func TestWritePNGDecodes(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePNG(&buf, samplePage(t), PNGOptions{}); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() != 300 || img.Bounds().Dy() != 200 {
		t.Fatalf("unexpected bounds %v", img.Bounds())
	}
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePDF(&buf, samplePage(t), PDFOptions{Title: "Sample", IncludeGuides: true}); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("output is not a PDF")
	}
	if err := WritePDF(&buf, Page{}, PDFOptions{}); err == nil {
		t.Fatalf("expected error for empty page")
	}
}

func TestMarkdown(t *testing.T) {
	md, err := Markdown(samplePage(t))
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	for _, want := range []string{"# Title", "[docs](https://example.com/docs)", "Hello from the page composer", "![pic](a.png)"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown lacks %q:\n%s", want, md)
		}
	}
	if strings.Index(md, "# Title") > strings.Index(md, "![pic]") {
		t.Fatalf("markdown not in reading order:\n%s", md)
	}
	if empty, _ := Markdown(Page{Width: 10, Height: 10}); empty != "" {
		t.Fatalf("empty page produced %q", empty)
	}
}

func TestWriteFileByFormat(t *testing.T) {
	dir := t.TempDir()
	p := samplePage(t)
	for _, f := range Formats() {
		path := filepath.Join(dir, "out", "page."+string(f))
		if err := WriteFile(path, f, p, Options{}); err != nil {
			t.Fatalf("WriteFile %s: %v", f, err)
		}
		st, err := os.Stat(path)
		if err != nil || st.Size() == 0 {
			t.Fatalf("%s output missing: %v", f, err)
		}
	}
	if _, err := ParseFormat(".Markdown"); err != nil {
		t.Fatalf("ParseFormat: %v", err)
	}
	if _, err := ParseFormat("svg"); err == nil {
		t.Fatalf("expected svg to be rejected")
	}
	if err := WriteFile(filepath.Join(dir, "bad.pdf"), FormatPDF, Page{}, Options{}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.pdf")); !os.IsNotExist(err) {
		t.Fatalf("failed export left a file behind")
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("Hello world from Go", 50)
	if len(lines) < 2 {
		t.Fatalf("expected wrapping into multiple lines, got %q", lines)
	}
	for _, ln := range lines {
		if strings.Contains(ln, " ") && advance(ln) > 50 {
			t.Fatalf("line %q exceeds width", ln)
		}
	}
	if got := wrapText("a\nb", 0); len(got) != 2 {
		t.Fatalf("explicit newline ignored: %q", got)
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.RGBA{
		"#fff":         {255, 255, 255, 255},
		"#008080":      {0, 128, 128, 255},
		"Teal":         {0, 128, 128, 255},
		"rgb(1, 2, 3)": {1, 2, 3, 255},
	}
	for in, want := range cases {
		got, ok := parseColor(in)
		if !ok || got != want {
			t.Fatalf("parseColor(%q) = %v, %v", in, got, ok)
		}
	}
	for _, bad := range []string{"", "#12", "rgb(1,2)", "rgb(300,0,0)", "chartreuse-ish"} {
		if _, ok := parseColor(bad); ok {
			t.Fatalf("parseColor(%q) should fail", bad)
		}
	}
}
