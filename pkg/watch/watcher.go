// Package watch monitors trace files on disk and re-runs grouping when
// they change. A checkpoint store keyed by content fingerprint keeps
// already-processed traces from being grouped twice.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/traceflow/traceflow/pkg/checkpoint"
)

// Watcher monitors trace files and triggers regrouping on change.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]*fileState
	mu       sync.RWMutex
	debounce time.Duration
	store    checkpoint.Store

	// OnTrace is invoked for each changed trace that has no checkpoint
	// entry for its current fingerprint. It returns the number of groups
	// produced, which is recorded in the checkpoint.
	OnTrace func(path string) (groups int, err error)
	OnError func(path string, err error)
	OnSkip  func(path string)
}

type fileState struct {
	path         string
	lastModified time.Time
	size         int64
	processing   bool
}

// NewWatcher creates a watcher backed by the given checkpoint store.
// A nil store disables checkpointing and every change triggers OnTrace.
func NewWatcher(store checkpoint.Store, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	return &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]*fileState),
		debounce: debounce,
		store:    store,
	}, nil
}

// Watch starts watching a trace file or a directory of trace files.
func (w *Watcher) Watch(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to stat path: %w", err)
	}

	if stat.IsDir() {
		entries, err := os.ReadDir(absPath)
		if err != nil {
			return fmt.Errorf("failed to read directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || !isTraceFile(e.Name()) {
				continue
			}
			if err := w.Watch(filepath.Join(absPath, e.Name())); err != nil {
				return err
			}
		}
		return w.watcher.Add(absPath)
	}

	w.mu.Lock()
	w.files[absPath] = &fileState{
		path:         absPath,
		lastModified: stat.ModTime(),
		size:         stat.Size(),
	}
	w.mu.Unlock()

	// Watch the directory containing the file (fsnotify works better this way)
	return w.watcher.Add(filepath.Dir(absPath))
}

func isTraceFile(name string) bool {
	return strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")
}

// Run starts the watch loop. Blocks until context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	debounceTimers := make(map[string]*time.Timer)
	var timerMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			absPath, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}

			w.mu.RLock()
			state, isWatched := w.files[absPath]
			w.mu.RUnlock()

			if !isWatched {
				// New trace file landing in a watched directory.
				if !isTraceFile(absPath) {
					continue
				}
				if err := w.Watch(absPath); err != nil {
					continue
				}
				w.mu.Lock()
				state = w.files[absPath]
				// Watch recorded the file's current stat as baseline,
				// which would make handleChange treat a trace renamed in
				// complete as unchanged. Clear it so the first event
				// always processes.
				state.lastModified = time.Time{}
				state.size = -1
				w.mu.Unlock()
			}

			// Debounce rapid writes to the same trace.
			timerMu.Lock()
			if timer, exists := debounceTimers[absPath]; exists {
				timer.Stop()
			}
			debounceTimers[absPath] = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx, absPath, state)
			})
			timerMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError("", err)
			}
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context, path string, state *fileState) {
	w.mu.Lock()
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(path, err)
		}
		return
	}

	if stat.ModTime().Equal(state.lastModified) && stat.Size() == state.size {
		return // no actual change
	}

	w.mu.Lock()
	state.lastModified = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()

	w.process(ctx, path)
}

// process groups a single trace unless its fingerprint matches the
// checkpoint from a previous run.
func (w *Watcher) process(ctx context.Context, path string) {
	fp := ""
	if w.store != nil {
		var err error
		fp, err = checkpoint.Fingerprint(path)
		if err != nil {
			if w.OnError != nil {
				w.OnError(path, err)
			}
			return
		}
		entry, ok, err := w.store.Get(ctx, path)
		if err != nil {
			if w.OnError != nil {
				w.OnError(path, err)
			}
			return
		}
		if ok && entry.Fingerprint == fp {
			if w.OnSkip != nil {
				w.OnSkip(path)
			}
			return
		}
	}

	if w.OnTrace == nil {
		return
	}
	groups, err := w.OnTrace(path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(path, err)
		}
		return
	}

	if w.store != nil {
		entry := checkpoint.Entry{
			Fingerprint: fp,
			Groups:      groups,
			CompletedAt: time.Now().UTC(),
		}
		if err := w.store.Put(ctx, path, entry); err != nil && w.OnError != nil {
			w.OnError(path, err)
		}
	}
}

// ProcessAll runs the checkpoint-gated callback once for every watched
// file. Used on startup to catch traces written while not watching.
func (w *Watcher) ProcessAll(ctx context.Context) {
	w.mu.RLock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	w.mu.RUnlock()

	for _, p := range paths {
		w.process(ctx, p)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
