package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type eventRecorder struct {
	mu      sync.Mutex
	indexed []string
	removed []string
}

func (r *eventRecorder) onIndex(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, filename)
}

func (r *eventRecorder) onRemove(filename string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, filename)
}

func (r *eventRecorder) waitFor(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		ok := check()
		r.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("timed out waiting for watcher callback")
}

func TestWatcherIndexesNewImage(t *testing.T) {
	dir := t.TempDir()
	rec := &eventRecorder{}
	w := New(dir, rec.onIndex, rec.onRemove, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "cat.png"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, func() bool { return len(rec.indexed) >= 1 })
	if rec.indexed[0] != "cat.png" {
		t.Errorf("indexed: got %q, want cat.png", rec.indexed[0])
	}
}

func TestWatcherIgnoresUnsupportedFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &eventRecorder{}
	w := New(dir, rec.onIndex, rec.onRemove, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "dog.jpg"), []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, func() bool { return len(rec.indexed) >= 1 })
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, name := range rec.indexed {
		if name == "notes.txt" {
			t.Error("indexed a non-image file")
		}
	}
}

func TestWatcherDebouncesRepeatedWrites(t *testing.T) {
	dir := t.TempDir()
	rec := &eventRecorder{}
	w := New(dir, rec.onIndex, rec.onRemove, WithDebounce(150*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "large.png")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte("chunk"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	rec.waitFor(t, func() bool { return len(rec.indexed) >= 1 })
	time.Sleep(300 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.indexed) != 1 {
		t.Errorf("indexed %d times, want 1 (debounced)", len(rec.indexed))
	}
}

func TestWatcherReportsRemovals(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.png")
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := &eventRecorder{}
	w := New(dir, rec.onIndex, rec.onRemove, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, func() bool { return len(rec.removed) >= 1 })
	if rec.removed[0] != "old.png" {
		t.Errorf("removed: got %q, want old.png", rec.removed[0])
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, nil, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}
