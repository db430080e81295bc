/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package log sets up the process-wide slog logger: a readable console
// handler or JSON, an optional rotating file, and component/operation
// attributes shared by every package.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	lj "gopkg.in/natefinch/lumberjack.v2"

	"pagecomposer/internal/version"
)

// Options controls logger initialization.
// Values come from the config file or from the environment:
//   - PC_LOG_LEVEL=debug|info|warn|error
//   - PC_LOG_FORMAT=console|json
//   - PC_LOG_FILE=<path> (enables file logging with rotation)
//   - PC_LOG_SOURCE=true|false (include source)
//
// Defaults: INFO level, console format, no source.
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string // optional path for file logging (rotated)
	// Console overrides the console destination; nil means stderr.
	Console io.Writer
}

var (
	current  atomic.Pointer[slog.Logger]
	lazyInit sync.Once
)

// L returns the application logger, initializing it from the environment
// when Init has not been called yet.
func L() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	lazyInit.Do(func() {
		if current.Load() == nil {
			Init(FromEnv())
		}
	})
	return current.Load()
}

// Init configures the global logger and sets slog.Default as well.
func Init(opts Options) {
	lvl := parseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}

	out := opts.Console
	colored := false
	if out == nil {
		out = os.Stderr
		colored = !color.NoColor
	}
	var handlers []slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		handlers = append(handlers, slog.NewJSONHandler(out, hopts))
	} else {
		handlers = append(handlers, newConsoleHandler(out, lvl, opts.AddSource, colored))
	}
	if f := strings.TrimSpace(opts.File); f != "" {
		w := &lj.Logger{Filename: f, MaxSize: 10, MaxBackups: 3, MaxAge: 28, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(w, hopts))
	}

	var h slog.Handler = contextHandler{next: handlers[0]}
	if len(handlers) > 1 {
		h = contextHandler{next: fanout(handlers)}
	}
	logger := slog.New(h).With(
		slog.String("app", "pagecomposer"),
		slog.String("ver", version.Version),
	)
	current.Store(logger)
	slog.SetDefault(logger)
}

// FromEnv builds Options from environment variables.
func FromEnv() Options {
	return Options{
		Level:     getenv("PC_LOG_LEVEL", "info"),
		Format:    getenv("PC_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("PC_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("PC_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger with the component attribute pre-set.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation annotates the logger with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

type ctxAttrsKey struct{}

// ContextWith returns a context whose attributes are added to every record
// logged with it (InfoContext, DebugContext, ...), e.g. a request id.
func ContextWith(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// contextHandler copies ContextWith attributes onto each record.
type contextHandler struct{ next slog.Handler }

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(ctxAttrsKey{}).([]slog.Attr); ok && len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := make(fanout, len(f))
	for i, h := range f {
		res[i] = h.WithAttrs(attrs)
	}
	return res
}

func (f fanout) WithGroup(name string) slog.Handler {
	res := make(fanout, len(f))
	for i, h := range f {
		res[i] = h.WithGroup(name)
	}
	return res
}

// consoleHandler prints one line per record:
//
//	2025-01-02T15:04:05Z INF message key=value grp.key=value
//
// Attributes added through WithAttrs are pre-rendered with the group prefix
// in effect at that moment.
type consoleHandler struct {
	mu      *sync.Mutex
	w       io.Writer
	level   slog.Leveler
	source  bool
	colored bool
	prefix  string
	pre     string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, source, colored bool) *consoleHandler {
	return &consoleHandler{mu: &sync.Mutex{}, w: w, level: level, source: source, colored: colored}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	b := &strings.Builder{}
	b.Grow(256)
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(h.levelLabel(r.Level))
	if r.Message != "" {
		b.WriteByte(' ')
		b.WriteString(r.Message)
	}
	b.WriteString(h.pre)
	r.Attrs(func(a slog.Attr) bool {
		appendAttr(b, h.prefix, a)
		return true
	})
	if h.source && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			b.WriteString(" src=")
			b.WriteString(f.File)
			b.WriteByte(':')
			b.WriteString(strconv.Itoa(f.Line))
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	n := *h
	b := &strings.Builder{}
	b.WriteString(h.pre)
	for _, a := range attrs {
		appendAttr(b, h.prefix, a)
	}
	n.pre = b.String()
	return &n
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	n := *h
	n.prefix = h.prefix + name + "."
	return &n
}

var levelColors = map[slog.Level]*color.Color{
	slog.LevelDebug: color.New(color.Faint),
	slog.LevelInfo:  color.New(color.FgCyan),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed, color.Bold),
}

func (h *consoleHandler) levelLabel(l slog.Level) string {
	var s string
	switch l {
	case slog.LevelDebug:
		s = "DBG"
	case slog.LevelInfo:
		s = "INF"
	case slog.LevelWarn:
		s = "WRN"
	case slog.LevelError:
		s = "ERR"
	default:
		return l.String()
	}
	if h.colored {
		return levelColors[l].Sprint(s)
	}
	return s
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, p, ga)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')
	b.WriteString(valueString(a.Value))
}

func valueString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	default:
		s := v.String()
		if strings.ContainsAny(s, " \t\n\"") {
			return strconv.Quote(s)
		}
		return s
	}
}
