package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "/traces/a.json"); err != nil || ok {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}

	want := Entry{Fingerprint: "abc", Groups: 4, CompletedAt: time.Now().UTC()}
	if err := store.Put(ctx, "/traces/a.json", want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(ctx, "/traces/a.json")
	if err != nil || !ok {
		t.Fatalf("Get = ok %v, err %v", ok, err)
	}
	if got.Fingerprint != want.Fingerprint || got.Groups != want.Groups {
		t.Errorf("entry = %+v, want %+v", got, want)
	}

	// Distinct paths do not collide.
	if _, ok, _ := store.Get(ctx, "/traces/b.json"); ok {
		t.Error("unrelated path must be absent")
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.json")
	if err := os.WriteFile(path, []byte("one"), 0644); err != nil {
		t.Fatal(err)
	}
	fp1, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if err := os.WriteFile(path, []byte("two"), 0644); err != nil {
		t.Fatal(err)
	}
	fp2, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fp1 == fp2 {
		t.Error("fingerprint must change when contents change")
	}
}
