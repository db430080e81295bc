/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/script"
	"pagecomposer/internal/vector"
)

// FieldsFromArgs builds entity fields from key=value arguments as used by
// interaction scripts and the command line.
func FieldsFromArgs(args map[string]string) (domain.FieldSet, error) {
	var f domain.FieldSet
	num := func(key string) (float64, error) {
		v, ok := args[key]
		if !ok || v == "" {
			return 0, nil
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, v)
		}
		return n, nil
	}
	var err error
	if f.Position.X, err = num("x"); err != nil {
		return f, err
	}
	if f.Position.Y, err = num("y"); err != nil {
		return f, err
	}
	if f.Size.W, err = num("w"); err != nil {
		return f, err
	}
	if f.Size.H, err = num("h"); err != nil {
		return f, err
	}
	for key := range args {
		switch key {
		case "x", "y", "w", "h", "name", "text", "bg", "color", "font_size", "font_family", "src", "alt", "url", "target":
		default:
			return f, fmt.Errorf("unknown field %q", key)
		}
	}
	f.Name = args["name"]
	f.Style = domain.Style{
		Background: args["bg"],
		Color:      args["color"],
		FontSize:   args["font_size"],
		FontFamily: args["font_family"],
	}
	f.Content = domain.Content{
		Text:   args["text"],
		Src:    args["src"],
		Alt:    args["alt"],
		URL:    args["url"],
		Target: args["target"],
	}
	return f, nil
}

// ReplayStats summarizes a replayed script.
type ReplayStats struct {
	Steps    int
	Created  []domain.ID
	Removed  int
	Consumed int // pointer events a listener called PreventDefault on
	Saves    int
}

// Replay runs every step of sc in order. It stops at the first failing step
// and reports its line number.
func (s *Session) Replay(ctx context.Context, sc script.Script) (ReplayStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st ReplayStats
	for _, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		if err := s.apply(ctx, step, &st); err != nil {
			return st, fmt.Errorf("line %d: %w", step.LineNo, err)
		}
		st.Steps++
	}
	s.log.Info("script replayed", slog.Int("steps", st.Steps), slog.Int("created", len(st.Created)),
		slog.Int("consumed", st.Consumed))
	return st, nil
}

func (s *Session) apply(ctx context.Context, step script.Step, st *ReplayStats) error {
	switch step.Op {
	case script.OpPointer:
		p := s.pointer
		if step.HasPoint {
			p = step.Point
		}
		if s.pointerAt(step.Kind, p) {
			st.Consumed++
		}
	case script.OpCreate:
		f, err := FieldsFromArgs(step.Args)
		if err != nil {
			return err
		}
		e, err := s.create(step.Variant, f)
		if err != nil {
			return err
		}
		st.Created = append(st.Created, e.ID())
	case script.OpRemove:
		if s.remove(domain.ID(step.ID)) {
			st.Removed++
		}
	case script.OpSave:
		if err := s.pipe.Save(ctx, s.coll); err != nil {
			return err
		}
		st.Saves++
	case script.OpRestore:
		if _, err := s.restore(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported step %v", step.Op)
	}
	return nil
}

// Position is a convenience for callers that only need an entity's location.
func (s *Session) Position(id domain.ID) (vector.Pt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.coll.Get(id)
	if !ok {
		return vector.Pt{}, false
	}
	return e.Position(), true
}
