package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
	"nexus-catalog/internal/storage"
)

type memDescriptor struct{}

func (memDescriptor) StorageKind() string { return "mem" }

// memMaterializer hands out the given sources in order, one per Materialize.
func memMaterializer(sources ...storage.BlobSource) *materializer.SourceMaterializer {
	var mu sync.Mutex
	next := 0
	storages := registry.Of[model.StorageDescriptor, storage.BlobSource]("storage", storage.KindOf,
		registry.FactoryFunc[model.StorageDescriptor, storage.BlobSource]{
			KindName:   "mem",
			Descriptor: func() model.StorageDescriptor { return memDescriptor{} },
			CreateFunc: func(context.Context, model.StorageDescriptor) (storage.BlobSource, error) {
				mu.Lock()
				defer mu.Unlock()
				if next >= len(sources) {
					return nil, fmt.Errorf("no more memory sources")
				}
				src := sources[next]
				next++
				return src, nil
			},
		})
	return materializer.New(storages, format.DefaultRegistry(), mapping.DefaultRegistry())
}

var errSourceClosed = errors.New("source closed")

// gatedSource is a memory source whose listing can be held open. Once closed
// it refuses to list, like a remote client after shutdown.
type gatedSource struct {
	*storage.MemorySource

	mu      sync.Mutex
	gated   bool
	closed  bool
	entered chan struct{}
	release chan struct{}
}

func newGatedSource(blobs map[string][]byte) *gatedSource {
	return &gatedSource{
		MemorySource: storage.NewMemorySource(blobs),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
}

// hold makes the next listing signal entered and wait for release.
func (s *gatedSource) hold() {
	s.mu.Lock()
	s.gated = true
	s.mu.Unlock()
}

func (s *gatedSource) ListBlobs(ctx context.Context) ([]storage.BlobPath, error) {
	s.mu.Lock()
	gated := s.gated
	s.gated = false
	s.mu.Unlock()
	if gated {
		close(s.entered)
		<-s.release
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errSourceClosed
	}
	return s.MemorySource.ListBlobs(ctx)
}

func (s *gatedSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.MemorySource.Close()
}
