// Package ingest uploads files dropped into an inbox directory.
package ingest

import (
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 500 * time.Millisecond

// Uploader registers a file's bytes as a document.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, filename string, data []byte) (string, error)

func (f UploaderFunc) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	return f(ctx, filename, data)
}

// Filter reports whether a filename can be extracted.
type Filter interface {
	Supports(kind string) bool
}

type Watcher struct {
	dir      string
	uploader Uploader
	filter   Filter
	debounce time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	seen    map[string]uint32
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option { return func(w *Watcher) { w.debounce = d } }

func WithLogger(log *slog.Logger) Option { return func(w *Watcher) { w.log = log } }

func NewWatcher(dir string, uploader Uploader, filter Filter, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      dir,
		uploader: uploader,
		filter:   filter,
		debounce: DefaultDebounce,
		log:      slog.New(slog.DiscardHandler),
		seen:     make(map[string]uint32),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = slog.New(slog.DiscardHandler)
	}
	return w
}

// Scan uploads every eligible file already in the inbox and returns how
// many were uploaded.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, fmt.Errorf("read inbox %s: %w", w.dir, err)
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, e.Name())
		if !w.eligible(path) {
			continue
		}
		ok, err := w.ingest(ctx, path)
		if err != nil {
			w.log.Warn("ingest failed", "path", path, "err", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Watch scans the inbox and then uploads files as they are created or
// rewritten, until ctx is done. Bursts of events for one file are merged.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	if _, err := w.Scan(ctx); err != nil {
		return err
	}
	w.log.Info("watching inbox", "dir", w.dir)

	defer w.wg.Wait()
	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if info, err := os.Stat(ev.Name); err != nil || info.IsDir() {
				continue
			}
			if w.eligible(ev.Name) {
				w.schedule(ctx, ev.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return w.filter == nil || w.filter.Supports(name)
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}
	w.wg.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := w.ingest(ctx, path); err != nil {
			w.log.Warn("ingest failed", "path", path, "err", err)
		}
	})
	w.pending[path] = t
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// ingest uploads path unless its content is unchanged since the last upload.
func (w *Watcher) ingest(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	sum := crc32.Checksum(data, crc32.IEEETable)

	w.mu.Lock()
	prev, ok := w.seen[path]
	w.mu.Unlock()
	if ok && prev == sum {
		w.log.Debug("unchanged, skipping", "path", path)
		return false, nil
	}

	id, err := w.uploader.Upload(ctx, filepath.Base(path), data)
	if err != nil {
		return false, err
	}
	w.mu.Lock()
	w.seen[path] = sum
	w.mu.Unlock()
	w.log.Info("document ingested", "path", path, "doc_id", id, "crc", sum)
	return true, nil
}
