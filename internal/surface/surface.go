/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package surface models the rendered side of a placed item: an element node
// with ordered inline style declarations, attributes and populated content,
// and the canvas container that owns displayed surfaces.
// Markup produced here is plain HTML rendered with golang.org/x/net/html so
// that a captured surface can be parsed back into an equivalent node.
package surface

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pagecomposer/internal/vector"
)

// Declaration is one inline style property.
type Declaration struct {
	Property string
	Value    string
}

// Surface is a single rendered element. The zero value is not usable; use New or Parse.
type Surface struct {
	node   *html.Node
	styles []Declaration
	canvas *Canvas
}

// ErrMarkup reports markup that does not describe exactly one element.
var ErrMarkup = errors.New("markup must contain exactly one element")

// New creates an empty, detached surface for the given tag.
func New(tag string) *Surface {
	tag = strings.ToLower(strings.TrimSpace(tag))
	return &Surface{node: &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}}
}

// Parse rebuilds a detached surface from outer markup, including its children.
func Parse(markup string) (*Surface, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	var el *html.Node
	for _, n := range nodes {
		switch n.Type {
		case html.ElementNode:
			if el != nil {
				return nil, ErrMarkup
			}
			el = n
		case html.TextNode:
			if strings.TrimSpace(n.Data) != "" {
				return nil, ErrMarkup
			}
		case html.CommentNode:
		default:
			return nil, ErrMarkup
		}
	}
	if el == nil {
		return nil, ErrMarkup
	}
	if el.Parent != nil {
		el.Parent.RemoveChild(el)
	}
	s := &Surface{node: el}
	if v, ok := s.Attr("style"); ok {
		s.styles = parseStyle(v)
	}
	return s, nil
}

// Tag returns the element name.
func (s *Surface) Tag() string { return s.node.Data }

// Canvas returns the container the surface is attached to, or nil.
func (s *Surface) Canvas() *Canvas { return s.canvas }

// Attached reports whether the surface is currently displayed by a canvas.
func (s *Surface) Attached() bool { return s.canvas != nil }

// Remove detaches the surface from its canvas. Calling it on a detached
// surface does nothing.
func (s *Surface) Remove() {
	if s.canvas != nil {
		s.canvas.Remove(s)
	}
}

// Attr returns the value of an attribute.
func (s *Surface) Attr(key string) (string, bool) {
	for _, a := range s.node.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// AttrKeys lists the attribute names in document order.
func (s *Surface) AttrKeys() []string {
	keys := make([]string, 0, len(s.node.Attr))
	for _, a := range s.node.Attr {
		keys = append(keys, a.Key)
	}
	return keys
}

// SetAttr sets an attribute, keeping its position if it already exists.
// The style attribute is managed through the style methods.
func (s *Surface) SetAttr(key, val string) {
	key = strings.ToLower(key)
	if key == "style" {
		s.styles = parseStyle(val)
		s.syncStyle()
		return
	}
	s.setAttr(key, val)
}

func (s *Surface) setAttr(key, val string) {
	for i := range s.node.Attr {
		if s.node.Attr[i].Namespace == "" && s.node.Attr[i].Key == key {
			s.node.Attr[i].Val = val
			return
		}
	}
	s.node.Attr = append(s.node.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute if present.
func (s *Surface) RemoveAttr(key string) {
	out := s.node.Attr[:0]
	for _, a := range s.node.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	s.node.Attr = out
	if key == "style" {
		s.styles = nil
	}
}

// Data returns a data-* attribute.
func (s *Surface) Data(name string) (string, bool) { return s.Attr("data-" + name) }

// SetData sets a data-* attribute.
func (s *Surface) SetData(name, val string) { s.setAttr("data-"+name, val) }

// Style returns the value of an inline style property.
func (s *Surface) Style(prop string) string {
	for _, d := range s.styles {
		if d.Property == prop {
			return d.Value
		}
	}
	return ""
}

// Styles returns a copy of the inline declarations in order.
func (s *Surface) Styles() []Declaration {
	return append([]Declaration(nil), s.styles...)
}

// SetStyle sets a single inline style property.
func (s *Surface) SetStyle(prop, value string) {
	s.ApplyStyles([]Declaration{{Property: prop, Value: value}})
}

// ApplyStyles merges decls into the inline style. Existing properties keep
// their position, new ones are appended. The merged list is built aside and
// swapped in with the style attribute in a single step.
func (s *Surface) ApplyStyles(decls []Declaration) {
	next := append([]Declaration(nil), s.styles...)
	for _, d := range decls {
		p := strings.ToLower(strings.TrimSpace(d.Property))
		if p == "" {
			continue
		}
		v := cleanValue(d.Value)
		found := false
		for i := range next {
			if next[i].Property == p {
				next[i].Value = v
				found = true
				break
			}
		}
		if !found {
			next = append(next, Declaration{Property: p, Value: v})
		}
	}
	s.styles = next
	s.syncStyle()
}

// RemoveStyle deletes an inline style property.
func (s *Surface) RemoveStyle(prop string) {
	next := make([]Declaration, 0, len(s.styles))
	for _, d := range s.styles {
		if d.Property != prop {
			next = append(next, d)
		}
	}
	s.styles = next
	s.syncStyle()
}

func (s *Surface) syncStyle() {
	if len(s.styles) == 0 {
		out := s.node.Attr[:0]
		for _, a := range s.node.Attr {
			if a.Namespace == "" && a.Key == "style" {
				continue
			}
			out = append(out, a)
		}
		s.node.Attr = out
		return
	}
	s.setAttr("style", formatStyle(s.styles))
}

// Geometry

func (s *Surface) Left() float64   { return parsePx(s.Style("left")) }
func (s *Surface) Top() float64    { return parsePx(s.Style("top")) }
func (s *Surface) Width() float64  { return parsePx(s.Style("width")) }
func (s *Surface) Height() float64 { return parsePx(s.Style("height")) }

// Offset returns the top-left corner.
func (s *Surface) Offset() vector.Pt { return vector.Pt{X: s.Left(), Y: s.Top()} }

// Extent returns the client size of the surface.
func (s *Surface) Extent() vector.Size { return vector.Size{W: s.Width(), H: s.Height()} }

// Bounds returns the surface rectangle in canvas space.
func (s *Surface) Bounds() vector.Rect { return vector.RectAt(s.Offset(), s.Extent()) }

// MoveTo sets left and top together.
func (s *Surface) MoveTo(p vector.Pt) {
	s.ApplyStyles([]Declaration{{"left", Px(p.X)}, {"top", Px(p.Y)}})
}

// Content

// SetText replaces the children with a single text node.
func (s *Surface) SetText(text string) {
	s.clearChildren()
	if text != "" {
		s.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// AppendElement appends a child element holding text.
func (s *Surface) AppendElement(tag, text string) {
	child := &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
	if text != "" {
		child.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	s.node.AppendChild(child)
}

// Text returns the concatenated text content.
func (s *Surface) Text() string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(s.node)
	return b.String()
}

// SetInnerMarkup parses m in the context of this element and replaces the children.
func (s *Surface) SetInnerMarkup(m string) error {
	if m == "" {
		s.clearChildren()
		return nil
	}
	ctx := &html.Node{Type: html.ElementNode, Data: s.node.Data, DataAtom: s.node.DataAtom}
	nodes, err := html.ParseFragment(strings.NewReader(m), ctx)
	if err != nil {
		return fmt.Errorf("parse inner markup: %w", err)
	}
	s.clearChildren()
	for _, n := range nodes {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
		s.node.AppendChild(n)
	}
	return nil
}

func (s *Surface) clearChildren() {
	for c := s.node.FirstChild; c != nil; {
		next := c.NextSibling
		s.node.RemoveChild(c)
		c = next
	}
}

// Markup

// OuterMarkup renders the element with its children.
func (s *Surface) OuterMarkup() string { return render(s.node) }

// InnerMarkup renders only the children.
func (s *Surface) InnerMarkup() string {
	var buf bytes.Buffer
	for c := s.node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// ShellMarkup renders the element without its children.
func (s *Surface) ShellMarkup() string {
	shallow := &html.Node{
		Type:      s.node.Type,
		Data:      s.node.Data,
		DataAtom:  s.node.DataAtom,
		Namespace: s.node.Namespace,
		Attr:      append([]html.Attribute(nil), s.node.Attr...),
	}
	return render(shallow)
}

func render(n *html.Node) string {
	var buf bytes.Buffer
	_ = html.Render(&buf, n)
	return buf.String()
}

// Px formats a pixel length.
func Px(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) + "px" }

func parsePx(v string) float64 {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func formatStyle(decls []Declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.Property+": "+d.Value)
	}
	return strings.Join(parts, "; ")
}

func parseStyle(v string) []Declaration {
	var out []Declaration
	for _, part := range strings.Split(v, ";") {
		k, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		out = append(out, Declaration{Property: k, Value: strings.TrimSpace(val)})
	}
	return out
}

// cleanValue drops characters that would break the inline style syntax.
func cleanValue(v string) string {
	v = strings.Map(func(r rune) rune {
		switch r {
		case ';', '\n', '\r', '"', '<', '>':
			return -1
		}
		return r
	}, v)
	return strings.TrimSpace(v)
}
