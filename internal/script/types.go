/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"pagecomposer/internal/input"
	"pagecomposer/internal/vector"
)

// Script is a parsed interaction script: an ordered list of steps that a
// session replays through the same input path as interactive use.
type Script struct {
	Steps []Step
}

// Op is the kind of a script step.
type Op int

const (
	OpUnknown Op = iota
	OpPointer
	OpCreate
	OpRemove
	OpSave
	OpRestore
)

func (o Op) String() string {
	switch o {
	case OpPointer:
		return "pointer"
	case OpCreate:
		return "create"
	case OpRemove:
		return "remove"
	case OpSave:
		return "save"
	case OpRestore:
		return "restore"
	default:
		return "unknown"
	}
}

// Step is one line of a script.
// For OpPointer, Kind and Point describe the event. A release without
// coordinates reuses the last pointer position (HasPoint is false).
// For OpCreate, Variant holds the discriminator and Args the key=value pairs.
// For OpRemove, ID holds the entity id.
type Step struct {
	Op       Op
	Kind     input.Kind
	Point    vector.Pt
	HasPoint bool
	Variant  string
	Args     map[string]string
	ID       int64
	LineNo   int // 1-based line number in the source
}

// Error represents a parse error with position context.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string { return e.Message }
