// Package artifacts stores opaque artifact payloads (logged model blobs) for
// tracking-store backends that keep run metadata and artifact bytes in
// separate systems.
package artifacts

import (
	"context"
	"fmt"
	"sync"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Store persists artifact payloads under slash-separated paths.
type Store interface {
	// Put stores data under path and returns a backend-specific reference
	// (URL or the path itself) for the stored artifact.
	Put(ctx context.Context, path string, data []byte, metadata map[string]string) (string, error)

	// Get retrieves the payload stored under path or a reference previously
	// returned by Put.
	Get(ctx context.Context, path string) ([]byte, error)
}

// MemoryStore is an in-process Store used by the embedded tracking store and
// in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-process artifact store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under path.
func (s *MemoryStore) Put(ctx context.Context, path string, data []byte, metadata map[string]string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("artifact path is required")
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.blobs[path] = buf
	s.mu.Unlock()

	return path, nil
}

// Get returns a copy of the payload stored under path.
func (s *MemoryStore) Get(ctx context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[path]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", sdkerrors.ErrArtifactNotFound, path)
	}

	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
