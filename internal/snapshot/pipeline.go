/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/microcosm-cc/bluemonday"

	"pagecomposer/internal/domain"
	"pagecomposer/internal/drag"
	"pagecomposer/internal/input"
	applog "pagecomposer/internal/log"
	"pagecomposer/internal/storage"
	"pagecomposer/internal/surface"
)

// DefaultKey is the store key snapshots are written under.
const DefaultKey = "canvas.entities"

// SnapshotDecodeError reports a stored value that could not be turned back
// into entities. Restore recovers from it by starting with an empty page.
type SnapshotDecodeError struct {
	Key string
	Err error
}

func (e *SnapshotDecodeError) Error() string {
	return fmt.Sprintf("decode snapshot %q: %v", e.Key, e.Err)
}

func (e *SnapshotDecodeError) Unwrap() error { return e.Err }

// Result describes a completed restore.
type Result struct {
	Entities []*domain.Entity
	Handles  map[domain.ID]*drag.Handle
	// DecodeErr is set when the stored value was rejected. Entities then
	// come from a backup, or are empty.
	DecodeErr  *SnapshotDecodeError
	FromBackup bool
}

// Pipeline saves a collection to a store and restores it.
type Pipeline struct {
	store    storage.Store
	key      string
	dragOpts []drag.Option
	policy   *bluemonday.Policy
	log      *slog.Logger
	backups  bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithKey overrides DefaultKey.
func WithKey(key string) Option { return func(p *Pipeline) { p.key = key } }

// WithDragOptions are passed to every handle attached on restore.
func WithDragOptions(opts ...drag.Option) Option {
	return func(p *Pipeline) { p.dragOpts = append(p.dragOpts, opts...) }
}

// WithBackupRecovery makes Restore fall back to the latest backup when the
// stored value is rejected and the store keeps backups.
func WithBackupRecovery() Option { return func(p *Pipeline) { p.backups = true } }

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.log = l } }

// NewPipeline returns a pipeline bound to store.
func NewPipeline(store storage.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:  store,
		key:    DefaultKey,
		policy: contentPolicy(),
		log:    applog.WithComponent("snapshot"),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Key returns the store key.
func (p *Pipeline) Key() string { return p.key }

// DragOptions returns the options used for handles attached on restore.
func (p *Pipeline) DragOptions() []drag.Option { return p.dragOpts }

// contentPolicy allows the inline markup entities produce inside their element.
func contentPolicy() *bluemonday.Policy {
	pol := bluemonday.NewPolicy()
	pol.AllowElements("span", "b", "i", "em", "strong", "br")
	return pol
}

// Save writes the collection under the pipeline key.
func (p *Pipeline) Save(ctx context.Context, c *domain.Collection) error {
	return p.SaveTo(ctx, p.key, c)
}

// SaveTo writes the collection under key. The whole previous value is replaced.
func (p *Pipeline) SaveTo(ctx context.Context, key string, c *domain.Collection) error {
	l := applog.WithOperation(p.log, "save").With(slog.String("key", key))
	doc, err := CaptureAll(c)
	if err != nil {
		return err
	}
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	if err := p.store.Write(ctx, key, string(data)); err != nil {
		l.Error("write failed", slog.Any("err", err))
		return fmt.Errorf("save snapshot: %w", err)
	}
	l.Debug("saved", slog.Int("entities", len(doc.Records)), slog.Int("bytes", len(data)))
	return nil
}

// Restore replaces the contents of c with the stored snapshot. Surfaces are
// appended to canvas and a drag handle is attached to each through d.
//
// An absent key yields an empty result. A stored value that fails
// validation is reported in Result.DecodeErr and the page starts empty,
// unless WithBackupRecovery is set and the store has a usable backup.
// Restore is all or nothing; the returned error is reserved for store failures.
func (p *Pipeline) Restore(ctx context.Context, c *domain.Collection, canvas *surface.Canvas, d *input.Dispatcher) (Result, error) {
	l := applog.WithOperation(p.log, "restore").With(slog.String("key", p.key))
	c.Clear()
	raw, ok, err := p.store.Read(ctx, p.key)
	if err != nil {
		l.Error("read failed", slog.Any("err", err))
		return Result{}, fmt.Errorf("restore snapshot: %w", err)
	}
	if !ok {
		l.Info("no snapshot stored")
		return Result{}, nil
	}
	res, err := p.restoreValue(raw, c, canvas, d)
	if err == nil {
		l.Info("restored", slog.Int("entities", len(res.Entities)))
		return res, nil
	}
	decErr := &SnapshotDecodeError{Key: p.key, Err: err}
	l.Error("snapshot rejected", slog.Any("err", err))

	if br, ok := p.store.(storage.BackupReader); ok && p.backups {
		braw, found, berr := br.ReadLatestBackup(ctx, p.key)
		switch {
		case berr != nil:
			l.Warn("backup read failed", slog.Any("err", berr))
		case found && braw != raw:
			bres, err := p.restoreValue(braw, c, canvas, d)
			if err != nil {
				l.Warn("backup rejected", slog.Any("err", err))
				break
			}
			l.Warn("restored from latest backup", slog.Int("entities", len(bres.Entities)))
			bres.DecodeErr = decErr
			bres.FromBackup = true
			return bres, nil
		}
	}
	l.Warn("starting empty")
	return Result{DecodeErr: decErr}, nil
}

func (p *Pipeline) restoreValue(raw string, c *domain.Collection, canvas *surface.Canvas, d *input.Dispatcher) (res Result, err error) {
	doc, err := Decode(raw)
	if err != nil {
		return Result{}, err
	}
	if canvas == nil || d == nil {
		return Result{}, errors.New("canvas and dispatcher are required")
	}
	res.Handles = make(map[domain.ID]*drag.Handle, len(doc.Records))
	var pending *surface.Surface
	defer func() {
		if err == nil {
			return
		}
		for _, h := range res.Handles {
			h.Detach()
		}
		if pending != nil {
			pending.Remove()
		}
		c.Clear()
		res = Result{}
	}()
	for _, r := range doc.Records {
		s, err := rebuildSurface(r, p.policy)
		if err != nil {
			return res, fmt.Errorf("entity %d: %w", r.Fields.ID, err)
		}
		e, err := domain.Rebuild(r.Fields, s)
		if err != nil {
			return res, fmt.Errorf("entity %d: %w", r.Fields.ID, err)
		}
		pending = s
		canvas.Append(s)
		h, err := drag.Attach(e, canvas, d, p.dragOpts...)
		if err != nil {
			return res, err
		}
		res.Handles[e.ID()] = h
		if err := c.Insert(e); err != nil {
			return res, err
		}
		pending = nil
		res.Entities = append(res.Entities, e)
	}
	return res, nil
}

// rebuildSurface parses the element shell and fills it with the sanitized
// children of the populated markup.
func rebuildSurface(r Record, pol *bluemonday.Policy) (*surface.Surface, error) {
	s, err := surface.Parse(r.MarkupBefore)
	if err != nil {
		return nil, err
	}
	after, err := surface.Parse(r.MarkupAfter)
	if err != nil {
		return nil, err
	}
	if err := s.SetInnerMarkup(pol.Sanitize(after.InnerMarkup())); err != nil {
		return nil, err
	}
	return s, nil
}
