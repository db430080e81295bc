/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// face is the fixed 7x13 face used for raster previews; it keeps output
// identical across platforms.
var face font.Face = basicfont.Face7x13

func advance(s string) int {
	return font.MeasureString(face, s).Ceil()
}

// lineHeight is the distance between baselines in pixels.
func lineHeight() int {
	return face.Metrics().Height.Ceil()
}

// wrapText breaks text on spaces so each line fits maxWidth pixels. Explicit
// newlines always break. A word wider than maxWidth gets a line of its own.
func wrapText(text string, maxWidth int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		cur := words[0]
		for _, w := range words[1:] {
			if maxWidth > 0 && advance(cur+" "+w) > maxWidth {
				lines = append(lines, cur)
				cur = w
				continue
			}
			cur += " " + w
		}
		lines = append(lines, cur)
	}
	return lines
}
