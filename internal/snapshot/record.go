/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package snapshot captures the placed entities of a page into a storable
// document and rebuilds them, with drag behavior re-attached, from it.
package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/surface"
)

// FormatVersion is the document version written by Encode.
const FormatVersion = 1

//go:embed schema.json
var schemaJSON []byte

var documentSchema = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("snapshot schema: %v", err))
	}
	return s
}()

// Record is the captured form of one entity. MarkupBefore is the element
// without children, MarkupAfter the fully populated element.
type Record struct {
	Fields       domain.FieldSet `json:"fields"`
	MarkupBefore string          `json:"markupBefore"`
	MarkupAfter  string          `json:"markupAfter"`
}

// Document is the value stored under the snapshot key.
type Document struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// Capture records e after copying the live surface offset into its position.
func Capture(e *domain.Entity) (Record, error) {
	s := e.Surface()
	if s == nil {
		return Record{}, fmt.Errorf("entity %d: %w", e.ID(), domain.ErrNoSurface)
	}
	e.SyncFromSurface()
	return Record{
		Fields:       e.Fields(),
		MarkupBefore: s.ShellMarkup(),
		MarkupAfter:  s.OuterMarkup(),
	}, nil
}

// CaptureAll records every entity of c in ascending id order.
func CaptureAll(c *domain.Collection) (Document, error) {
	doc := Document{Version: FormatVersion, Records: []Record{}}
	for _, e := range c.Entities() {
		r, err := Capture(e)
		if err != nil {
			return Document{}, err
		}
		doc.Records = append(doc.Records, r)
	}
	return doc, nil
}

// Encode renders doc as indented JSON without HTML escaping.
func Encode(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode validates raw against the document schema, decodes it and checks
// every record for internal consistency.
func Decode(raw string) (Document, error) {
	res, err := documentSchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return Document{}, fmt.Errorf("not a JSON document: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return Document{}, fmt.Errorf("schema: %s", strings.Join(msgs, "; "))
	}
	var doc Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Document{}, fmt.Errorf("decode snapshot: %w", err)
	}
	seen := make(map[domain.ID]bool, len(doc.Records))
	for i, r := range doc.Records {
		if seen[r.Fields.ID] {
			return Document{}, fmt.Errorf("record %d: %w: %d", i, domain.ErrDuplicateID, r.Fields.ID)
		}
		seen[r.Fields.ID] = true
		if err := r.Validate(); err != nil {
			return Document{}, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return doc, nil
}

// Validate checks that the record describes one well-formed entity: a known
// variant whose tag matches both markups, a populated element whose shell
// equals MarkupBefore, and a surface carrying the record's id.
func (r Record) Validate() error {
	v, err := domain.ParseVariant(r.Fields.Variant)
	if err != nil {
		return err
	}
	before, err := surface.Parse(r.MarkupBefore)
	if err != nil {
		return fmt.Errorf("markupBefore: %w", err)
	}
	after, err := surface.Parse(r.MarkupAfter)
	if err != nil {
		return fmt.Errorf("markupAfter: %w", err)
	}
	if before.Tag() != v.Tag() || after.Tag() != v.Tag() {
		return fmt.Errorf("element <%s>/<%s> does not match variant %s", before.Tag(), after.Tag(), v)
	}
	if before.InnerMarkup() != "" {
		return errors.New("markupBefore has children")
	}
	if after.ShellMarkup() != before.ShellMarkup() {
		return errors.New("markupBefore is not the shell of markupAfter")
	}
	for _, k := range before.AttrKeys() {
		if strings.HasPrefix(strings.ToLower(k), "on") {
			return fmt.Errorf("event handler attribute %q not allowed", k)
		}
	}
	id, ok := before.Data("entity-id")
	if !ok || id != strconv.FormatInt(int64(r.Fields.ID), 10) {
		return fmt.Errorf("surface entity id %q does not match record id %d", id, r.Fields.ID)
	}
	return nil
}
