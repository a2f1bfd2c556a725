// Package storage provides content-addressed blob persistence for uploads.
//
// Files are stored under a date-sharded layout (<root>/YYYY/MM/DD/<name>)
// and deduplicated by SHA-256 of their content.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// PutOptions controls how a blob is written.
type PutOptions struct {
	// CheckDuplicate scans existing blobs for the same content hash.
	// When a match is found the existing path is returned and no new
	// blob is written.
	CheckDuplicate bool
	// UseHashName replaces the filename with the content hash,
	// preserving the extension.
	UseHashName bool
}

// PutResult describes a stored (or deduplicated) blob.
type PutResult struct {
	Path      string
	Hash      string
	Size      int64
	Duplicate bool
}

// BlobStore persists uploaded files under a date-sharded directory tree.
type BlobStore struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	index map[string]string // hash -> path, warmed lazily by duplicate scans
}

// NewBlobStore creates a blob store rooted at dir, creating it if needed.
func NewBlobStore(dir string, logger *slog.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &BlobStore{
		root:   dir,
		logger: logger,
		index:  make(map[string]string),
	}, nil
}

// Root returns the store's base directory.
func (s *BlobStore) Root() string {
	return s.root
}

// HashBytes returns the hex SHA-256 of content.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Put stores content under today's date shard.
func (s *BlobStore) Put(content []byte, filename string, opts PutOptions) (*PutResult, error) {
	hash := HashBytes(content)
	size := int64(len(content))

	if opts.CheckDuplicate {
		if existing := s.findByHash(hash); existing != "" {
			s.logger.Info("duplicate blob detected", "filename", filename, "hash", hash[:8])
			return &PutResult{Path: existing, Hash: hash, Size: size, Duplicate: true}, nil
		}
	}

	name := filepath.Base(filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = hash + ".bin"
	}
	if opts.UseHashName {
		name = hash + filepath.Ext(name)
	}

	dir, err := s.shardDir(time.Now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(dir, name)
	path = resolveCollision(path)

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write blob: %w", err)
	}
	s.index[hash] = path

	s.logger.Info("blob saved", "path", path, "size", size)
	return &PutResult{Path: path, Hash: hash, Size: size}, nil
}

// Delete removes a blob by path. Returns false if the file did not exist.
func (s *BlobStore) Delete(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete blob: %w", err)
	}

	s.mu.Lock()
	for h, p := range s.index {
		if p == path {
			delete(s.index, h)
			break
		}
	}
	s.mu.Unlock()

	return true, nil
}

// Exists reports whether a blob path exists on disk.
func (s *BlobStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Size returns a blob's size in bytes, or 0 if it cannot be read.
func (s *BlobStore) Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// URL returns a serving path for a blob relative to the store root.
func (s *BlobStore) URL(path string) string {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "/uploads/" + filepath.ToSlash(rel)
}

// shardDir returns (and creates) the YYYY/MM/DD shard for t.
func (s *BlobStore) shardDir(t time.Time) (string, error) {
	dir := filepath.Join(s.root, t.Format("2006"), t.Format("01"), t.Format("02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create shard dir: %w", err)
	}
	return dir, nil
}

// findByHash locates a blob by content hash. Checks the in-memory index
// first, then walks the date shards: a filename containing the hash
// short-circuits the scan, otherwise candidate content is hashed.
func (s *BlobStore) findByHash(hash string) string {
	s.mu.Lock()
	if path, ok := s.index[hash]; ok {
		if _, err := os.Stat(path); err == nil {
			s.mu.Unlock()
			return path
		}
		delete(s.index, hash)
	}
	s.mu.Unlock()

	var found string
	filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || found != "" {
			return nil
		}
		if strings.Contains(d.Name(), hash) {
			found = path
			return filepath.SkipAll
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if HashBytes(content) == hash {
			found = path
			return filepath.SkipAll
		}
		return nil
	})

	if found != "" {
		s.mu.Lock()
		s.index[hash] = found
		s.mu.Unlock()
	}
	return found
}

// resolveCollision appends _1, _2, ... before the extension until the
// path is free. Caller holds the store lock.
func resolveCollision(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
