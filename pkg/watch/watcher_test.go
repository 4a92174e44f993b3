package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// startWatcher runs the watch loop against dir and returns a channel that
// receives each processed trace path.
func startWatcher(t *testing.T, dir string) chan string {
	t.Helper()
	w, err := NewWatcher(nil, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	got := make(chan string, 4)
	w.OnTrace = func(path string) (int, error) {
		got <- path
		return 1, nil
	}
	w.OnError = func(path string, err error) {
		t.Errorf("watch error for %q: %v", path, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Close()
	})
	go w.Run(ctx)
	return got
}

func waitForTrace(t *testing.T, got chan string, want string) {
	t.Helper()
	select {
	case p := <-got:
		if p != want {
			t.Fatalf("processed %q, want %q", p, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("trace %q was never processed", want)
	}
}

func TestRenamedTraceIsProcessed(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir)

	// Write the trace outside the watched directory, then rename it in,
	// the way collectors publish finished traces atomically.
	tmp := filepath.Join(t.TempDir(), "trace.json")
	if err := os.WriteFile(tmp, []byte(`{"timelines":[]}`), 0644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "trace.json")
	if err := os.Rename(tmp, dst); err != nil {
		t.Fatal(err)
	}

	waitForTrace(t, got, dst)
}

func TestWrittenTraceIsProcessed(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir)

	dst := filepath.Join(dir, "trace.json")
	if err := os.WriteFile(dst, []byte(`{"timelines":[]}`), 0644); err != nil {
		t.Fatal(err)
	}

	waitForTrace(t, got, dst)
}

func TestNonTraceFileIgnored(t *testing.T) {
	dir := t.TempDir()
	got := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-got:
		t.Fatalf("non-trace file %q was processed", p)
	case <-time.After(300 * time.Millisecond):
	}
}
