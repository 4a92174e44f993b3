// Package checkpoint records which trace contents have already been
// grouped, so watch mode can skip unchanged files. Backends: local files
// for single-host use, Redis for shared low-latency access.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Entry records one completed grouping run.
type Entry struct {
	// Fingerprint is the SHA-256 of the trace file contents.
	Fingerprint string `json:"fingerprint"`

	// Groups is the number of groups produced.
	Groups int `json:"groups"`

	// CompletedAt is when the run finished.
	CompletedAt time.Time `json:"completed_at"`
}

// Store persists checkpoint entries keyed by trace path.
type Store interface {
	// Get returns the entry for a trace path, or ok=false if absent.
	Get(ctx context.Context, path string) (Entry, bool, error)

	// Put records an entry for a trace path.
	Put(ctx context.Context, path string, e Entry) error
}

// Fingerprint hashes a file's contents.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileStore keeps one JSON file per trace path under a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the checkpoint directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) entryPath(tracePath string) string {
	sum := sha256.Sum256([]byte(tracePath))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:8])+".json")
}

// Get implements Store.
func (s *FileStore) Get(ctx context.Context, path string) (Entry, bool, error) {
	data, err := os.ReadFile(s.entryPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		// A corrupt entry is treated as absent, not fatal.
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Put implements Store.
func (s *FileStore) Put(ctx context.Context, path string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp := s.entryPath(path) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.entryPath(path))
}
