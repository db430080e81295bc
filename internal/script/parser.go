/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"pagecomposer/internal/input"
	"pagecomposer/internal/vector"
)

// Aliases accepted for pointer events besides the full event names.
var pointerAliases = map[string]input.Kind{
	"down": input.MouseDown,
	"move": input.MouseMove,
	"up":   input.MouseUp,
}

var reArg = regexp.MustCompile(`^([a-z][a-z0-9_]*)=(.*)$`)

// Parse parses an interaction script.
// Supported syntax (one step per line):
//   - Comments: lines starting with "#" or ";" are ignored, as are blank lines.
//   - Pointer events: "mousedown 20 20", "touchmove 30 25", or the short
//     forms "down", "move", "up". Coordinates are canvas-local pixels and
//     optional for releases (mouseup, touchend, touchcancel).
//   - create <variant> key=value ...: values may be double-quoted.
//     Keys: name, text, x, y, w, h, bg, color, font_size, font_family, src, alt, url, target.
//   - remove <id>
//   - save, restore
//
// Parsing continues after an error so every bad line is reported.
func Parse(input string) (Script, []Error) {
	var s Script
	var errs []Error
	scanner := bufio.NewScanner(strings.NewReader(input))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields, err := tokenize(line)
		if err != nil {
			errs = append(errs, Error{Line: lineNo, Column: 1, Message: err.Error()})
			continue
		}
		step, err := parseStep(fields)
		if err != nil {
			errs = append(errs, Error{Line: lineNo, Column: 1, Message: fmt.Sprintf("line %d: %v", lineNo, err)})
			continue
		}
		step.LineNo = lineNo
		s.Steps = append(s.Steps, step)
	}
	return s, errs
}

func parseStep(fields []string) (Step, error) {
	verb := strings.ToLower(fields[0])
	args := fields[1:]
	switch verb {
	case "save", "restore":
		if len(args) != 0 {
			return Step{}, fmt.Errorf("%s takes no arguments", verb)
		}
		if verb == "save" {
			return Step{Op: OpSave}, nil
		}
		return Step{Op: OpRestore}, nil
	case "remove":
		if len(args) != 1 {
			return Step{}, fmt.Errorf("remove expects an id")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return Step{}, fmt.Errorf("invalid id %q", args[0])
		}
		return Step{Op: OpRemove, ID: id}, nil
	case "create":
		if len(args) < 1 {
			return Step{}, fmt.Errorf("create expects a variant")
		}
		st := Step{Op: OpCreate, Variant: args[0], Args: map[string]string{}}
		for _, a := range args[1:] {
			m := reArg.FindStringSubmatch(a)
			if m == nil {
				return Step{}, fmt.Errorf("expected key=value, got %q", a)
			}
			st.Args[m[1]] = m[2]
		}
		return st, nil
	}
	kind, ok := pointerAliases[verb]
	if !ok {
		k, err := input.ParseKind(verb)
		if err != nil {
			return Step{}, err
		}
		kind = k
	}
	st := Step{Op: OpPointer, Kind: kind}
	switch len(args) {
	case 0:
		if kind != input.MouseUp && kind != input.TouchEnd && kind != input.TouchCancel {
			return Step{}, fmt.Errorf("%s needs coordinates", kind)
		}
	case 2:
		x, errX := strconv.ParseFloat(args[0], 64)
		y, errY := strconv.ParseFloat(args[1], 64)
		if errX != nil || errY != nil {
			return Step{}, fmt.Errorf("invalid coordinates %q %q", args[0], args[1])
		}
		st.Point = vector.Pt{X: x, Y: y}
		st.HasPoint = true
	default:
		return Step{}, fmt.Errorf("%s expects x y", kind)
	}
	return st, nil
}

// tokenize splits on whitespace; double quotes group words and may appear
// after "key=". A backslash escapes the next character inside quotes.
func tokenize(line string) ([]string, error) {
	var out []string
	var cur strings.Builder
	inQuote, started := false, false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQuote && c == '\\' && i+1 < len(line):
			i++
			cur.WriteByte(line[i])
		case c == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (c == ' ' || c == '\t'):
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteByte(c)
			started = true
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	if started {
		out = append(out, cur.String())
	}
	return out, nil
}
