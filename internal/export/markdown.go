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
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Markdown converts the page to Markdown, one block per entity in reading
// order. Entities that produce no text are skipped.
func Markdown(p Page) (string, error) {
	var blocks []string
	for _, e := range p.ReadingOrder() {
		s := e.Surface()
		if s == nil {
			continue
		}
		md, err := mdConverter.ConvertString(s.OuterMarkup())
		if err != nil {
			return "", fmt.Errorf("entity %d: %w", e.ID(), err)
		}
		if md = strings.TrimSpace(md); md != "" {
			blocks = append(blocks, md)
		}
	}
	if len(blocks) == 0 {
		return "", nil
	}
	return strings.Join(blocks, "\n\n") + "\n", nil
}
