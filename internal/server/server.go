/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes a read-only HTTP preview of the persisted page.
// Every request restores the page from the store, so the preview always
// reflects the last save.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/export"
	applog "pagecomposer/internal/log"
	"pagecomposer/internal/session"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/version"
)

// Server serves page previews from a store.
type Server struct {
	store   storage.Store
	opts    []session.Option
	key     string
	log     *slog.Logger
	handler http.Handler
}

// New builds the router. opts configure the sessions restored per request
// and must include the same key and canvas size the editor uses.
func New(store storage.Store, key string, opts ...session.Option) *Server {
	s := &Server{
		store: store,
		key:   key,
		opts:  append([]session.Option{session.WithKey(key)}, opts...),
		log:   applog.WithComponent("server"),
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/entities", s.handleEntities)
		r.Get("/entities/{id}", s.handleEntity)
	})
	r.Get("/page.html", s.handleMarkup)
	r.Get("/preview.png", s.handleExport(export.FormatPNG))
	r.Get("/preview.pdf", s.handleExport(export.FormatPDF))
	r.Get("/page.md", s.handleExport(export.FormatMarkdown))
	s.handler = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := applog.ContextWith(r.Context(), slog.String("request_id", middleware.GetReqID(r.Context())))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.log.DebugContext(ctx, "request",
			slog.String("method", r.Method), slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()), slog.Duration("took", time.Since(start)))
	})
}

// load restores a private session for one request.
func (s *Server) load(ctx context.Context) (*session.Session, error) {
	sess := session.New(s.store, s.opts...)
	res, err := sess.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if res.DecodeErr != nil {
		s.log.WarnContext(ctx, "stored page rejected", slog.Any("err", res.DecodeErr),
			slog.Bool("from_backup", res.FromBackup))
	}
	return sess, nil
}

type entityView struct {
	domain.FieldSet
	ElementID string `json:"elementId"`
}

func view(e *domain.Entity) entityView {
	return entityView{FieldSet: e.Fields(), ElementID: e.ElementID()}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	raw, ok, err := s.store.Read(r.Context(), s.key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot stored"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(raw))
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := []entityView{}
	for _, e := range sess.Entities() {
		out = append(out, view(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	sess, err := s.load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e, ok := sess.Get(domain.ID(id))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"})
		return
	}
	writeJSON(w, http.StatusOK, view(e))
}

func (s *Server) handleMarkup(w http.ResponseWriter, r *http.Request) {
	sess, err := s.load(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<!doctype html>\n<html><body>" + sess.Markup() + "</body></html>\n"))
}

// writeExport renders previews; tests replace it to simulate render failures.
var writeExport = export.Write

func (s *Server) handleExport(f export.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.load(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		page := export.NewPage(sess.Canvas().Size(), sess.Entities())
		// render fully first so a failure still gets a proper status
		var buf bytes.Buffer
		if err := writeExport(&buf, f, page, export.Options{}); err != nil {
			s.log.ErrorContext(r.Context(), "export failed", slog.String("format", string(f)), slog.Any("err", err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
			return
		}
		w.Header().Set("Content-Type", f.ContentType())
		w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
		_, _ = w.Write(buf.Bytes())
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.log.ErrorContext(r.Context(), "request failed", slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
