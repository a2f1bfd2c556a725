package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *BlobStore {
	t.Helper()
	store, err := NewBlobStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestPut(t *testing.T) {
	store := newTestStore(t)

	res, err := store.Put([]byte("statement bytes"), "jan.pdf", PutOptions{})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if res.Duplicate {
		t.Error("first write reported as duplicate")
	}
	if res.Size != int64(len("statement bytes")) {
		t.Errorf("size mismatch: got %d", res.Size)
	}
	if len(res.Hash) != 64 {
		t.Errorf("expected 64-char hex hash, got %q", res.Hash)
	}
	if !store.Exists(res.Path) {
		t.Errorf("blob not on disk at %s", res.Path)
	}

	// Date-sharded layout: root/YYYY/MM/DD/name
	rel, err := filepath.Rel(store.Root(), res.Path)
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 4 {
		t.Fatalf("expected YYYY/MM/DD/name layout, got %s", rel)
	}
	if parts[0] != time.Now().Format("2006") {
		t.Errorf("year shard mismatch: %s", parts[0])
	}
}

func TestPut_Duplicate(t *testing.T) {
	store := newTestStore(t)
	content := []byte("same bytes twice")

	first, err := store.Put(content, "a.pdf", PutOptions{CheckDuplicate: true})
	if err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	second, err := store.Put(content, "b.pdf", PutOptions{CheckDuplicate: true})
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	if !second.Duplicate {
		t.Error("second Put of same bytes not flagged duplicate")
	}
	if second.Path != first.Path {
		t.Errorf("duplicate returned different path: %s vs %s", second.Path, first.Path)
	}

	// Exactly one blob on disk.
	count := 0
	filepath.Walk(store.Root(), func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			count++
		}
		return nil
	})
	if count != 1 {
		t.Errorf("expected exactly 1 blob, found %d", count)
	}
}

func TestPut_DuplicateScanWithoutIndex(t *testing.T) {
	// A fresh store instance over the same directory has a cold index,
	// forcing the shard walk + content hash path.
	dir := t.TempDir()
	first, err := mustStore(t, dir).Put([]byte("cold index"), "a.pdf", PutOptions{})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	second, err := mustStore(t, dir).Put([]byte("cold index"), "b.pdf", PutOptions{CheckDuplicate: true})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if !second.Duplicate || second.Path != first.Path {
		t.Errorf("cold-index duplicate scan failed: %+v", second)
	}
}

func mustStore(t *testing.T, dir string) *BlobStore {
	t.Helper()
	store, err := NewBlobStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestPut_FilenameCollision(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Put([]byte("content one"), "statement.pdf", PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Put([]byte("content two"), "statement.pdf", PutOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if first.Path == second.Path {
		t.Fatal("collision not resolved: same path for different content")
	}
	if !strings.HasSuffix(second.Path, "statement_1.pdf") {
		t.Errorf("expected _1 suffix, got %s", second.Path)
	}
	if !store.Exists(first.Path) || !store.Exists(second.Path) {
		t.Error("both blobs should exist")
	}
}

func TestPut_HashName(t *testing.T) {
	store := newTestStore(t)

	res, err := store.Put([]byte("hash named"), "original.pdf", PutOptions{UseHashName: true})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(res.Path) != res.Hash+".pdf" {
		t.Errorf("expected <hash>.pdf, got %s", filepath.Base(res.Path))
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	res, err := store.Put([]byte("to delete"), "x.pdf", PutOptions{})
	if err != nil {
		t.Fatal(err)
	}

	deleted, err := store.Delete(res.Path)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Error("expected deleted=true")
	}
	if store.Exists(res.Path) {
		t.Error("blob still exists after delete")
	}

	deleted, err = store.Delete(res.Path)
	if err != nil {
		t.Fatalf("second Delete errored: %v", err)
	}
	if deleted {
		t.Error("expected deleted=false for missing blob")
	}
}

func TestURL(t *testing.T) {
	store := newTestStore(t)

	res, err := store.Put([]byte("url test"), "u.pdf", PutOptions{})
	if err != nil {
		t.Fatal(err)
	}
	url := store.URL(res.Path)
	if !strings.HasPrefix(url, "/uploads/") {
		t.Errorf("expected /uploads/ prefix, got %s", url)
	}
	if !strings.HasSuffix(url, "u.pdf") {
		t.Errorf("expected filename suffix, got %s", url)
	}
}
