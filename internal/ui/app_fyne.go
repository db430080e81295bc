//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"pagecomposer/internal/crash"
	"pagecomposer/internal/domain"
	"pagecomposer/internal/input"
	applog "pagecomposer/internal/log"
	"pagecomposer/internal/session"
	"pagecomposer/internal/vector"
	"pagecomposer/internal/version"
)

// Run starts the Fyne-based desktop editor for sess. The page is restored
// from the store before the window opens.
func Run(sess *session.Session) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI")
	defer crash.Recover(sess)

	ctx := context.Background()
	if res, err := sess.Restore(ctx); err != nil {
		return err
	} else if res.DecodeErr != nil {
		l.Warn("stored page rejected", slog.Any("err", res.DecodeErr))
	}

	fyneApp := app.NewWithID("pagecomposer")
	w := fyneApp.NewWindow("Page Composer " + version.String())
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1200)
	winH := prefs.IntWithFallback("window.height", 800)
	w.Resize(fyne.NewSize(float32(max(winW, 800)), float32(max(winH, 600))))

	status := widget.NewLabel("Ready")
	pc := NewPageCanvas(sess)

	variant := widget.NewSelect(domain.VariantNames(), nil)
	variant.SetSelected("paragraph")
	name := widget.NewEntry()
	name.SetPlaceHolder("Name")
	text := widget.NewEntry()
	text.SetPlaceHolder("Text, alt text or link label")
	ref := widget.NewEntry()
	ref.SetPlaceHolder("Image src or link URL")
	bg := widget.NewEntry()
	bg.SetPlaceHolder("Background color")
	fg := widget.NewEntry()
	fg.SetPlaceHolder("Text color")
	width := widget.NewEntry()
	width.SetText("160")
	height := widget.NewEntry()
	height.SetText("40")

	add := widget.NewButton("Add", func() {
		wv, errW := strconv.ParseFloat(width.Text, 64)
		hv, errH := strconv.ParseFloat(height.Text, 64)
		if errW != nil || errH != nil {
			dialog.ShowError(fmt.Errorf("width and height must be numbers"), w)
			return
		}
		f := domain.FieldSet{
			Name:  name.Text,
			Size:  vector.Size{W: wv, H: hv},
			Style: domain.Style{Background: bg.Text, Color: fg.Text},
		}
		switch variant.Selected {
		case "image":
			f.Content = domain.Content{Src: ref.Text, Alt: text.Text}
		case "link":
			f.Content = domain.Content{Text: text.Text, URL: ref.Text}
		default:
			f.Content = domain.Content{Text: text.Text}
		}
		e, err := sess.Create(variant.Selected, f)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		pc.selected = e.ID()
		status.SetText(fmt.Sprintf("Added %s #%d", e.Variant(), e.ID()))
		pc.Refresh()
	})
	remove := widget.NewButton("Remove selected", func() {
		if pc.selected == 0 {
			status.SetText("Nothing selected")
			return
		}
		if sess.Remove(pc.selected) {
			status.SetText(fmt.Sprintf("Removed #%d", pc.selected))
		}
		pc.selected = 0
		pc.Refresh()
	})
	save := widget.NewButton("Save", func() {
		if err := sess.Save(ctx); err != nil {
			dialog.ShowError(err, w)
			return
		}
		status.SetText(fmt.Sprintf("Saved %d entities", sess.Len()))
	})
	restore := widget.NewButton("Restore", func() {
		res, err := sess.Restore(ctx)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if res.DecodeErr != nil {
			status.SetText("Stored page rejected: " + res.DecodeErr.Error())
		} else {
			status.SetText(fmt.Sprintf("Restored %d entities", len(res.Entities)))
		}
		pc.selected = 0
		pc.Refresh()
	})
	pc.OnMoved = func(id domain.ID, p vector.Pt) {
		status.SetText(fmt.Sprintf("#%d at %.0f, %.0f", id, p.X, p.Y))
	}

	form := container.NewVBox(
		widget.NewLabel("New element"), variant, name, text, ref, bg, fg,
		container.NewGridWithColumns(2, width, height),
		add, widget.NewSeparator(), remove, save, restore,
	)
	w.SetContent(container.NewBorder(nil, status, form, nil, pc))
	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
	})
	w.ShowAndRun()
	return nil
}

// PageCanvas draws the session's page and feeds pointer input into it.
// Wheel scrolling zooms.
type PageCanvas struct {
	widget.BaseWidget
	sess *session.Session

	zoom     float32
	selected domain.ID
	last     vector.Pt
	pressed  bool

	// OnMoved is called after a drag step moved the selected entity.
	OnMoved func(id domain.ID, p vector.Pt)
}

func NewPageCanvas(sess *session.Session) *PageCanvas {
	pc := &PageCanvas{sess: sess, zoom: 1}
	pc.ExtendBaseWidget(pc)
	return pc
}

// CreateRenderer builds the page background; entity visuals are created on layout.
func (p *PageCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 30, G: 30, B: 34, A: 255})
	page := canvas.NewRectangle(color.White)
	page.StrokeColor = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	page.StrokeWidth = 2
	return &pageCanvasRenderer{pc: p, bg: bg, page: page}
}

// PreferredSize sets a decent default size for the widget.
func (p *PageCanvas) PreferredSize() fyne.Size { return fyne.NewSize(800, 600) }

// Coordinate helpers: page <-> screen mapping. The page is centered.
func (p *PageCanvas) origin() (cx, cy float32) {
	size := p.Size()
	ext := p.sess.Canvas().Size()
	cx = size.Width/2 - float32(ext.W)*p.zoom/2
	cy = size.Height/2 - float32(ext.H)*p.zoom/2
	return cx, cy
}

func (p *PageCanvas) toScreen(pt vector.Pt) fyne.Position {
	cx, cy := p.origin()
	return fyne.NewPos(cx+float32(pt.X)*p.zoom, cy+float32(pt.Y)*p.zoom)
}

func (p *PageCanvas) toPage(pos fyne.Position) vector.Pt {
	cx, cy := p.origin()
	return vector.Pt{X: float64((pos.X - cx) / p.zoom), Y: float64((pos.Y - cy) / p.zoom)}
}

// MouseDown starts a drag when it lands on an entity.
func (p *PageCanvas) MouseDown(e *desktop.MouseEvent) {
	pt := p.toPage(e.Position)
	p.last = pt
	p.pressed = p.sess.Pointer(input.MouseDown, pt)
	if s := p.sess.Canvas().HitTest(pt); s != nil {
		if v, ok := s.Data("entity-id"); ok {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				p.selected = domain.ID(id)
			}
		}
	} else {
		p.selected = 0
	}
	p.Refresh()
}

// MouseUp ends the gesture.
func (p *PageCanvas) MouseUp(e *desktop.MouseEvent) {
	p.release(p.toPage(e.Position))
}

// Dragged feeds pointer moves while the button is held.
func (p *PageCanvas) Dragged(e *fyne.DragEvent) {
	if !p.pressed {
		return
	}
	pt := p.toPage(e.Position)
	p.last = pt
	p.sess.Pointer(input.MouseMove, pt)
	if p.OnMoved != nil && p.selected != 0 {
		if pos, ok := p.sess.Position(p.selected); ok {
			p.OnMoved(p.selected, pos)
		}
	}
	p.Refresh()
}

// DragEnd is delivered instead of MouseUp by some drivers.
func (p *PageCanvas) DragEnd() { p.release(p.last) }

func (p *PageCanvas) release(pt vector.Pt) {
	if !p.pressed {
		return
	}
	p.pressed = false
	p.sess.Pointer(input.MouseUp, pt)
	p.Refresh()
}

// Scrolled changes zoom.
func (p *PageCanvas) Scrolled(e *fyne.ScrollEvent) {
	p.zoom += e.Scrolled.DY * 0.05
	p.zoom = min(max(p.zoom, 0.25), 4)
	p.Refresh()
}

// pageCanvasRenderer handles layout of the drawable objects based on zoom.
type pageCanvasRenderer struct {
	pc       *PageCanvas
	bg, page *canvas.Rectangle
	boxes    []*canvas.Rectangle
	labels   []*canvas.Text
	objects  []fyne.CanvasObject
}

func (r *pageCanvasRenderer) Destroy()                     {}
func (r *pageCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *pageCanvasRenderer) MinSize() fyne.Size           { return r.pc.PreferredSize() }
func (r *pageCanvasRenderer) Refresh()                     { r.Layout(r.pc.Size()); canvas.Refresh(r.pc) }

func (r *pageCanvasRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
	ext := r.pc.sess.Canvas().Size()
	r.page.Resize(fyne.NewSize(float32(ext.W)*r.pc.zoom, float32(ext.H)*r.pc.zoom))
	r.page.Move(r.pc.toScreen(vector.Pt{}))

	entities := r.pc.sess.Entities()
	for len(r.boxes) < len(entities) {
		box := canvas.NewRectangle(color.Transparent)
		box.StrokeWidth = 1
		r.boxes = append(r.boxes, box)
		r.labels = append(r.labels, canvas.NewText("", color.Black))
	}
	r.objects = append(r.objects[:0], r.bg, r.page)
	for i, e := range entities {
		b := e.Bounds()
		box, label := r.boxes[i], r.labels[i]
		box.Move(r.pc.toScreen(b.Min()))
		box.Resize(fyne.NewSize(float32(b.W)*r.pc.zoom, float32(b.H)*r.pc.zoom))
		box.FillColor = color.RGBA{R: 235, G: 240, B: 245, A: 255}
		box.StrokeColor = color.RGBA{R: 120, G: 120, B: 120, A: 255}
		if e.ID() == r.pc.selected {
			box.StrokeColor = color.RGBA{R: 0, G: 128, B: 128, A: 255}
			box.StrokeWidth = 3
		} else {
			box.StrokeWidth = 1
		}
		label.Text = entityLabel(e)
		label.TextSize = 12 * r.pc.zoom
		label.Move(r.pc.toScreen(b.Min().Add(vector.Pt{X: 3, Y: 2})))
		r.objects = append(r.objects, box, label)
	}
}

func entityLabel(e *domain.Entity) string {
	c := e.Content()
	switch e.Variant() {
	case domain.VariantImage:
		return "[image] " + c.Alt
	case domain.VariantLink:
		return c.Text + " -> " + c.URL
	default:
		return c.Text
	}
}
