package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
)

// MemorySource is an in-process BlobSource over a fixed set of blobs. Listing
// order is sorted by id.
type MemorySource struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	closed int
}

func NewMemorySource(blobs map[string][]byte) *MemorySource {
	cp := make(map[string][]byte, len(blobs))
	for k, v := range blobs {
		cp[k] = v
	}
	return &MemorySource{blobs: cp}
}

// Blob returns the BlobPath for an id as ListBlobs reports it.
func (s *MemorySource) Blob(id string) BlobPath {
	return NewBlobPath(id, &url.URL{Scheme: "mem", Path: "/" + id})
}

func (s *MemorySource) ListBlobs(context.Context) ([]BlobPath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.blobs))
	for id := range s.blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]BlobPath, len(ids))
	for i, id := range ids {
		out[i] = s.Blob(id)
	}
	return out, nil
}

func (s *MemorySource) Open(_ context.Context, blob BlobPath) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[blob.ID]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", blob.URI)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemorySource) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

// CloseCount reports how many times Close was called.
func (s *MemorySource) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
