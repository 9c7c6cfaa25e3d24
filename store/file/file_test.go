package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/risa-org/evchan/auth"
)

// tempPath returns a path in a fresh temp dir with no file yet.
func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "tokens.json")
}

func TestPutAndGet(t *testing.T) {
	store, err := New(tempPath(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := store.Put(auth.NewRecord("tok-1", "admin", auth.Interactive)); err != nil {
		t.Fatalf("failed to put token: %v", err)
	}

	got, ok := store.Get("tok-1")
	if !ok {
		t.Fatal("expected to find token after putting it")
	}
	if got.Operator != "admin" {
		t.Errorf("expected operator admin, got %s", got.Operator)
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	path := tempPath(t)

	store1, err := New(path)
	if err != nil {
		t.Fatalf("failed to create store1: %v", err)
	}

	r := auth.NewRecord("tok-1", "admin", auth.Durable)
	store1.Put(r)
	store1.Put(auth.NewRecord("tok-2", "ops", auth.Interactive))
	store1.Revoke("tok-2")

	// simulate a backend restart
	store2, err := New(path)
	if err != nil {
		t.Fatalf("failed to create store2: %v", err)
	}

	if store2.Count() != 2 {
		t.Fatalf("expected 2 tokens after restart, got %d", store2.Count())
	}

	got, ok := store2.Get("tok-1")
	if !ok {
		t.Fatal("expected token to survive restart")
	}
	if got.Policy != auth.Durable {
		t.Errorf("expected durable policy, got %+v", got.Policy)
	}
	if !got.IssuedAt.Equal(r.IssuedAt) {
		t.Errorf("issued_at changed across restart: %v vs %v", got.IssuedAt, r.IssuedAt)
	}

	revoked, _ := store2.Get("tok-2")
	if !revoked.Revoked {
		t.Error("expected revocation to survive restart")
	}
}

func TestDeletePersists(t *testing.T) {
	path := tempPath(t)

	store1, _ := New(path)
	store1.Put(auth.NewRecord("tok-1", "admin", auth.Interactive))
	if err := store1.Delete("tok-1"); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	store2, _ := New(path)
	if _, ok := store2.Get("tok-1"); ok {
		t.Error("expected deleted token to stay deleted after restart")
	}
}

func TestPrunePersists(t *testing.T) {
	path := tempPath(t)

	store1, _ := New(path)
	old := auth.NewRecord("old", "admin", auth.Ephemeral)
	old.IssuedAt = time.Now().Add(-time.Hour)
	store1.Put(old)
	store1.Put(auth.NewRecord("live", "admin", auth.Durable))

	n, err := store1.Prune(time.Now())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 pruned, got %d (%v)", n, err)
	}

	store2, _ := New(path)
	if store2.Count() != 1 {
		t.Errorf("expected 1 token after restart, got %d", store2.Count())
	}
}

func TestNoFileIsEmptyStore(t *testing.T) {
	store, err := New(tempPath(t))
	if err != nil {
		t.Fatalf("expected no error for missing file, got: %v", err)
	}
	if store.Count() != 0 {
		t.Errorf("expected empty store, got %d", store.Count())
	}
}

func TestCorruptFile(t *testing.T) {
	path := tempPath(t)
	os.WriteFile(path, []byte("not valid json {{{{"), 0600)

	if _, err := New(path); err == nil {
		t.Error("expected error for corrupt file")
	}
}
