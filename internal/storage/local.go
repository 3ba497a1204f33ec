package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

const KindLocal = "local"

// LocalDescriptor points at a directory on the local filesystem.
type LocalDescriptor struct {
	RootPath string `mapstructure:"rootPath" json:"rootPath" validate:"required"`
}

func (LocalDescriptor) StorageKind() string { return KindLocal }

func init() {
	Register(registry.FactoryFunc[model.StorageDescriptor, BlobSource]{
		KindName:   KindLocal,
		Descriptor: func() model.StorageDescriptor { return &LocalDescriptor{} },
		CreateFunc: func(_ context.Context, d model.StorageDescriptor) (BlobSource, error) {
			desc, err := registry.As[LocalDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewLocalSource(desc.RootPath)
		},
	})
}

// LocalSource lists regular files under a root directory, recursively.
type LocalSource struct {
	root string
}

func NewLocalSource(root string) (*LocalSource, error) {
	if root == "" {
		return nil, fmt.Errorf("root path is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %q: %w", root, err)
	}
	return &LocalSource{root: abs}, nil
}

func (s *LocalSource) Root() string { return s.root }

func (s *LocalSource) ListBlobs(ctx context.Context) ([]BlobPath, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("stat root %s: %w", s.root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %s is not a directory", s.root)
	}

	var blobs []BlobPath
	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		blobs = append(blobs, NewBlobPath(filepath.ToSlash(rel), &url.URL{Scheme: "file", Path: filepath.ToSlash(p)}))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", s.root, err)
	}
	return blobs, nil
}

func (s *LocalSource) Open(_ context.Context, blob BlobPath) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(blob.ID)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", blob.URI, err)
	}
	return f, nil
}

func (s *LocalSource) Close() error { return nil }
