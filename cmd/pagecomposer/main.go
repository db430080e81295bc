/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"pagecomposer/internal/config"
	"pagecomposer/internal/crash"
	"pagecomposer/internal/domain"
	"pagecomposer/internal/export"
	applog "pagecomposer/internal/log"
	"pagecomposer/internal/script"
	"pagecomposer/internal/server"
	"pagecomposer/internal/session"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/ui"
	"pagecomposer/internal/version"
)

// errUsage makes main print the usage text and exit with code 2.
var errUsage = errors.New("invalid usage")

func usage(w io.Writer) {
	fmt.Fprintln(w, "Page Composer")
	fmt.Fprintf(w, "Version: %s\n", version.String())
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  pagecomposer version|-v|--version                 Show version")
	fmt.Fprintln(w, "  pagecomposer create <variant> <name> <text> [key=value ...]")
	fmt.Fprintln(w, "  pagecomposer move <id> <dx> <dy>                   Drag an entity by a delta and save")
	fmt.Fprintln(w, "  pagecomposer remove <id>                           Remove an entity and save")
	fmt.Fprintln(w, "  pagecomposer list                                  List the entities of the saved page")
	fmt.Fprintln(w, "  pagecomposer replay <script>                       Run an event script against the page and save")
	fmt.Fprintln(w, "  pagecomposer export [-scale n] [-guides] <png|pdf|md> <file>")
	fmt.Fprintln(w, "  pagecomposer history [-n count]                    Show earlier saved snapshots")
	fmt.Fprintln(w, "  pagecomposer serve [-addr host:port]               Serve the page over HTTP")
	fmt.Fprintln(w, "  pagecomposer ui                                    Launch desktop UI (build with -tags fyne)")
	fmt.Fprintln(w, "  pagecomposer config                                Show the effective configuration")
}

func main() {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		applog.Init(applog.FromEnv())
		applog.WithComponent("cli").Error("load config failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	applog.Init(cfg.LogOptions())
	l := applog.WithComponent("cli")
	l.Debug("start", slog.Int("args", len(os.Args)), slog.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, cfgPath, os.Args[1:], os.Stdout)
	stop()
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Println(err)
		usage(os.Stdout)
		os.Exit(2)
	default:
		l.Error("command failed", slog.Any("err", err))
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.AppConfig, cfgPath string, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "version", "--version", "-v":
		fmt.Fprintln(out, "Page Composer")
		fmt.Fprintln(out, version.String())
		return nil
	case "help", "-h", "--help":
		usage(out)
		return nil
	case "config":
		return showConfig(cfg, cfgPath, out)
	case "serve":
		return serve(ctx, cfg, rest)
	case "history":
		return history(ctx, cfg, rest, out)
	case "create", "move", "remove", "list", "replay", "export", "ui":
		return withSession(ctx, cfg, func(sess *session.Session) error {
			return dispatch(ctx, sess, cmd, rest, out)
		})
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// withSession opens the configured store, restores the page and hands the
// live session to fn. A panic inside fn autosaves the page before exiting.
func withSession(ctx context.Context, cfg config.AppConfig, fn func(*session.Session) error) error {
	sess, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			applog.WithComponent("cli").Warn("close store failed", slog.Any("err", cerr))
		}
	}()
	defer crash.Recover(sess)

	res, err := sess.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore page: %w", err)
	}
	if res.DecodeErr != nil {
		applog.WithComponent("cli").Warn("stored page rejected",
			slog.Any("err", res.DecodeErr), slog.Bool("from_backup", res.FromBackup))
	}
	return fn(sess)
}

func openSession(ctx context.Context, cfg config.AppConfig) (*session.Session, error) {
	opts, err := cfg.StoreOptions()
	if err != nil {
		return nil, fmt.Errorf("resolve store: %w", err)
	}
	store, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	sopts := []session.Option{
		session.WithCanvasSize(cfg.Canvas.Width, cfg.Canvas.Height),
		session.WithPadding(cfg.Canvas.BorderPadding),
		session.WithKey(cfg.Store.Key),
	}
	if cfg.Store.RecoverFromBackup {
		sopts = append(sopts, session.WithBackupRecovery())
	}
	return session.New(store, sopts...), nil
}

func dispatch(ctx context.Context, sess *session.Session, cmd string, args []string, out io.Writer) error {
	l := applog.WithOperation(applog.WithComponent("cli"), cmd)
	switch cmd {
	case "create":
		if len(args) < 3 {
			return fmt.Errorf("%w: create requires <variant> <name> <text>", errUsage)
		}
		kv, err := keyValues(args[3:])
		if err != nil {
			return err
		}
		kv["name"], kv["text"] = args[1], args[2]
		f, err := session.FieldsFromArgs(kv)
		if err != nil {
			return err
		}
		e, err := sess.Create(args[0], f)
		if err != nil {
			return err
		}
		if err := sess.Save(ctx); err != nil {
			return err
		}
		l.Info("entity created", slog.Int64("id", int64(e.ID())), slog.String("variant", e.Variant().String()))
		fmt.Fprintf(out, "Created %s #%d (%s)\n", e.Variant(), e.ID(), e.ElementID())
		return nil
	case "move":
		if len(args) != 3 {
			return fmt.Errorf("%w: move requires <id> <dx> <dy>", errUsage)
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		dx, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid dx %q: %w", args[1], err)
		}
		dy, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fmt.Errorf("invalid dy %q: %w", args[2], err)
		}
		pos, err := sess.Drag(id, dx, dy)
		if err != nil {
			return err
		}
		if err := sess.Save(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Moved #%d to %g,%g\n", id, pos.X, pos.Y)
		return nil
	case "remove":
		if len(args) != 1 {
			return fmt.Errorf("%w: remove requires <id>", errUsage)
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if !sess.Remove(id) {
			return fmt.Errorf("entity %d: %w", id, session.ErrNotFound)
		}
		if err := sess.Save(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed #%d\n", id)
		return nil
	case "list":
		list(sess, out)
		return nil
	case "replay":
		if len(args) != 1 {
			return fmt.Errorf("%w: replay requires <script>", errUsage)
		}
		return replay(ctx, sess, args[0], out)
	case "export":
		return exportPage(sess, args, out)
	case "ui":
		return ui.Run(sess)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func list(sess *session.Session, out io.Writer) {
	ents := sess.Entities()
	if len(ents) == 0 {
		fmt.Fprintln(out, "Page is empty")
		return
	}
	sort.Slice(ents, func(i, j int) bool { return ents[i].ID() < ents[j].ID() })
	idc := color.New(color.FgCyan, color.Bold)
	varc := color.New(color.FgYellow)
	for _, e := range ents {
		pos, sz := e.Position(), e.Size()
		idc.Fprintf(out, "#%-4d", e.ID())
		varc.Fprintf(out, " %-10s", e.Variant())
		fmt.Fprintf(out, " %-24s at %g,%g size %gx%g\n", e.Name(), pos.X, pos.Y, sz.W, sz.H)
	}
}

func replay(ctx context.Context, sess *session.Session, path string, out io.Writer) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	sc, perrs := script.Parse(string(b))
	if len(perrs) > 0 {
		for _, pe := range perrs {
			color.New(color.FgRed).Fprintln(out, pe.Error())
		}
		return fmt.Errorf("script %s: %d parse error(s)", path, len(perrs))
	}
	st, err := sess.Replay(ctx, sc)
	if err != nil {
		return err
	}
	if err := sess.Save(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Replayed %d steps: %d created, %d removed, %d pointer events consumed\n",
		st.Steps, len(st.Created), st.Removed, st.Consumed)
	return nil
}

func exportPage(sess *session.Session, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(out)
	scale := fs.Float64("scale", 1, "pixel scale for png output")
	guides := fs.Bool("guides", false, "draw entity outlines")
	title := fs.String("title", "", "document title for pdf output")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != 2 {
		return fmt.Errorf("%w: export requires <format> <file>", errUsage)
	}
	f, err := export.ParseFormat(fs.Arg(0))
	if err != nil {
		return err
	}
	page := export.NewPage(sess.Canvas().Size(), sess.Entities())
	opt := export.Options{
		PNG: export.PNGOptions{Scale: *scale, IncludeGuides: *guides},
		PDF: export.PDFOptions{Title: *title, IncludeGuides: *guides},
	}
	if err := export.WriteFile(fs.Arg(1), f, page, opt); err != nil {
		return err
	}
	fmt.Fprintf(out, "Exported %d entities to %s\n", len(page.Entities), fs.Arg(1))
	return nil
}

func serve(ctx context.Context, cfg config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	opts, err := cfg.StoreOptions()
	if err != nil {
		return fmt.Errorf("resolve store: %w", err)
	}
	store, err := storage.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	srv := server.New(store, cfg.Store.Key,
		session.WithCanvasSize(cfg.Canvas.Width, cfg.Canvas.Height),
		session.WithPadding(cfg.Canvas.BorderPadding),
	)
	return srv.ListenAndServe(ctx, *addr)
}

func history(ctx context.Context, cfg config.AppConfig, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(out)
	n := fs.Int("n", 10, "number of revisions to show")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	opts, err := cfg.StoreOptions()
	if err != nil {
		return fmt.Errorf("resolve store: %w", err)
	}
	store, err := storage.Open(ctx, opts)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	h, ok := store.(storage.Historian)
	if !ok {
		return fmt.Errorf("store driver %q keeps no history", cfg.Store.Driver)
	}
	revs, err := h.History(ctx, cfg.Store.Key, *n)
	if err != nil {
		return err
	}
	if len(revs) == 0 {
		fmt.Fprintln(out, "No history")
		return nil
	}
	tsc := color.New(color.FgGreen)
	for _, r := range revs {
		tsc.Fprint(out, r.TS.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  %d bytes\n", len(r.Value))
	}
	return nil
}

func showConfig(cfg config.AppConfig, cfgPath string, out io.Writer) error {
	fmt.Fprintf(out, "Config file: %s\n", cfgPath)
	storePath, err := cfg.StorePath()
	if err != nil {
		return err
	}
	rows := []struct {
		key, value string
	}{
		{"canvas.width", strconv.FormatFloat(cfg.Canvas.Width, 'g', -1, 64)},
		{"canvas.height", strconv.FormatFloat(cfg.Canvas.Height, 'g', -1, 64)},
		{"canvas.border_padding", strconv.FormatFloat(cfg.Canvas.BorderPadding, 'g', -1, 64)},
		{"store.driver", cfg.Store.Driver},
		{"store.path", storePath},
		{"store.key", cfg.Store.Key},
		{"store.history_keep", strconv.Itoa(cfg.Store.HistoryKeep)},
		{"store.dsn", mask(cfg.Store.DSN)},
		{"store.recover_from_backup", strconv.FormatBool(cfg.Store.RecoverFromBackup)},
		{"logging.level", cfg.Logging.Level},
		{"logging.format", cfg.Logging.Format},
		{"logging.source", strconv.FormatBool(cfg.Logging.Source)},
		{"logging.file", cfg.Logging.File},
		{"server.addr", cfg.Server.Addr},
	}
	envc := color.New(color.FgMagenta)
	for _, r := range rows {
		fmt.Fprintf(out, "  %-26s %s", r.key, r.value)
		if name, set := config.EnvOverrideFor(r.key); set {
			envc.Fprintf(out, "  (from %s)", name)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func keyValues(args []string) (map[string]string, error) {
	kv := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: expected key=value, got %q", errUsage, a)
		}
		kv[k] = v
	}
	return kv, nil
}

func parseID(s string) (domain.ID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid entity id %q", s)
	}
	return domain.ID(n), nil
}
