/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// Variants are a closed set. Each one maps to a capability entry describing
// the element it renders as and how its content populates the surface.

import (
	"fmt"
	"sort"
	"strings"

	"pagecomposer/internal/surface"
)

// Variant identifies the kind of a placed entity.
type Variant uint8

const (
	VariantParagraph Variant = iota + 1
	VariantSpan
	VariantDiv
	VariantHeading1
	VariantHeading2
	VariantHeading3
	VariantHeading4
	VariantHeading5
	VariantHeading6
	VariantImage
	VariantLink
)

// InvalidVariantError is returned when a discriminator names no known variant.
type InvalidVariantError struct {
	Discriminator string
}

func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("invalid entity variant %q", e.Discriminator)
}

type capability struct {
	name     string
	tag      string
	aliases  []string
	extra    []surface.Declaration
	populate func(e *Entity, s *surface.Surface)
}

var capabilities = map[Variant]capability{
	VariantParagraph: {name: "paragraph", tag: "p", aliases: []string{"p"}, populate: populateText},
	VariantSpan:      {name: "span", tag: "span", populate: populateText},
	VariantDiv:       {name: "div", tag: "div", populate: populateText},
	VariantHeading1:  {name: "heading-1", tag: "h1", aliases: []string{"h1"}, populate: populateText},
	VariantHeading2:  {name: "heading-2", tag: "h2", aliases: []string{"h2"}, populate: populateText},
	VariantHeading3:  {name: "heading-3", tag: "h3", aliases: []string{"h3"}, populate: populateText},
	VariantHeading4:  {name: "heading-4", tag: "h4", aliases: []string{"h4"}, populate: populateText},
	VariantHeading5:  {name: "heading-5", tag: "h5", aliases: []string{"h5"}, populate: populateText},
	VariantHeading6:  {name: "heading-6", tag: "h6", aliases: []string{"h6"}, populate: populateText},
	VariantImage: {
		name:    "image",
		tag:     "img",
		aliases: []string{"img"},
		extra: []surface.Declaration{
			{Property: "aspect-ratio", Value: "16/9"},
			{Property: "object-fit", Value: "cover"},
			{Property: "object-position", Value: "center"},
		},
		populate: populateImage,
	},
	VariantLink: {name: "link", tag: "a", aliases: []string{"a"}, populate: populateLink},
}

// lookup is built once from the capability table.
var lookup = func() map[string]Variant {
	m := make(map[string]Variant)
	for v, c := range capabilities {
		m[c.name] = v
		for _, a := range c.aliases {
			m[a] = v
		}
	}
	return m
}()

// ParseVariant resolves a discriminator (canonical name or short tag, any case).
func ParseVariant(discriminator string) (Variant, error) {
	key := strings.ToLower(strings.TrimSpace(discriminator))
	if v, ok := lookup[key]; ok {
		return v, nil
	}
	return 0, &InvalidVariantError{Discriminator: discriminator}
}

// Valid reports whether v is a member of the closed set.
func (v Variant) Valid() bool {
	_, ok := capabilities[v]
	return ok
}

func (v Variant) String() string {
	if c, ok := capabilities[v]; ok {
		return c.name
	}
	return fmt.Sprintf("variant(%d)", uint8(v))
}

// Tag returns the element name the variant renders as.
func (v Variant) Tag() string { return capabilities[v].tag }

// Variants returns every variant in declaration order.
func Variants() []Variant {
	out := make([]Variant, 0, len(capabilities))
	for v := VariantParagraph; v <= VariantLink; v++ {
		out = append(out, v)
	}
	return out
}

// VariantNames returns the canonical names sorted alphabetically, suitable for pickers.
func VariantNames() []string {
	out := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		out = append(out, c.name)
	}
	sort.Strings(out)
	return out
}

func populateText(e *Entity, s *surface.Surface) {
	s.SetText(e.content.Text)
}

func populateImage(e *Entity, s *surface.Surface) {
	s.SetText("")
	s.SetAttr("src", e.content.Src)
	s.SetAttr("alt", e.content.Alt)
}

func populateLink(e *Entity, s *surface.Surface) {
	s.SetAttr("href", e.content.URL)
	s.SetAttr("target", e.content.Target)
	s.SetText("")
	s.AppendElement("span", e.content.Text)
}
