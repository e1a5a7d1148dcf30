// Package blobstore stores immutable documents, such as archived form entry
// snapshots, in memory or in an S3 bucket.
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrMissingKey   = errors.New("blob key is required")
)

// MaxFileSize is the maximum allowed blob size in bytes (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// Metadata describes a stored blob.
type Metadata struct {
	Key         string    `json:"key"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is implemented by every blob backend.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) (*Metadata, error)
	Get(ctx context.Context, key string) ([]byte, *Metadata, error)
	Delete(ctx context.Context, key string) error
}

// Key joins path segments with "/", dropping empty ones and stray slashes.
func Key(parts ...string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

func checkPut(key string, data []byte) error {
	if key == "" {
		return ErrMissingKey
	}
	if len(data) > MaxFileSize {
		return ErrFileTooLarge
	}
	return nil
}

// Hash is the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type storedBlob struct {
	meta Metadata
	data []byte
}

// MemoryStore is a thread-safe, in-memory Store for tests and development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string]*storedBlob), now: time.Now}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (*Metadata, error) {
	if err := checkPut(key, data); err != nil {
		return nil, err
	}
	cp := make([]byte, len(data))
	copy(cp, data)

	meta := Metadata{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(cp)),
		Hash:        Hash(cp),
		CreatedAt:   s.now().UTC(),
	}

	s.mu.Lock()
	s.blobs[key] = &storedBlob{meta: meta, data: cp}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, *Metadata, error) {
	s.mu.RLock()
	b, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	meta := b.meta
	return cp, &meta, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Keys lists stored keys with the given prefix in lexical order.
func (s *MemoryStore) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.blobs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
