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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format names an export target.
type Format string

const (
	FormatPNG      Format = "png"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "md"
)

// Formats lists the supported formats.
func Formats() []Format { return []Format{FormatPNG, FormatPDF, FormatMarkdown} }

// ParseFormat accepts a format name or a file extension with or without the dot.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "png":
		return FormatPNG, nil
	case "pdf":
		return FormatPDF, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType is the media type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/markdown; charset=utf-8"
	}
}

// Options bundles the per-format options.
type Options struct {
	PNG PNGOptions
	PDF PDFOptions
}

// Write renders p in format f to w.
func Write(w io.Writer, f Format, p Page, opt Options) error {
	switch f {
	case FormatPNG:
		return WritePNG(w, p, opt.PNG)
	case FormatPDF:
		return WritePDF(w, p, opt.PDF)
	case FormatMarkdown:
		md, err := Markdown(p)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, md)
		return err
	}
	return fmt.Errorf("unsupported export format %q", f)
}

// WriteFile renders p into path. The file is only created once rendering
// succeeded, so a failed export leaves no partial output behind.
func WriteFile(path string, f Format, p Page, opt Options) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, p, opt); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", f, err)
	}
	return nil
}
