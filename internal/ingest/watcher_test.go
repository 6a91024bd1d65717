package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/extract"
)

type recorder struct {
	mu    sync.Mutex
	files []string
}

func (r *recorder) Upload(_ context.Context, filename string, _ []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = append(r.files, filename)
	return "doc-" + filename, nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool.exe"), []byte("MZ"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.md"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o755))

	rec := &recorder{}
	w := NewWatcher(dir, rec, extract.New())

	n, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"a.txt"}, rec.names())

	// unchanged content is not uploaded again
	n, err = w.Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha beta"), 0o644))
	n, err = w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestScanMissingDir(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "nope"), &recorder{}, nil)
	_, err := w.Scan(context.Background())
	assert.Error(t, err)
}

func TestWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(dir, rec, extract.New(), WithDebounce(20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Notes\n\nsome text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".swap"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		return len(rec.names()) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, []string{"notes.md"}, rec.names())
}

func TestUploaderFunc(t *testing.T) {
	var got string
	f := UploaderFunc(func(_ context.Context, name string, _ []byte) (string, error) {
		got = name
		return "id", nil
	})
	id, err := f.Upload(context.Background(), "x.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "id", id)
	assert.Equal(t, "x.txt", got)
}
