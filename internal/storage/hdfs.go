package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/colinmarc/hdfs/v2"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

const KindHDFS = "hdfs"

type HDFSDescriptor struct {
	NameNodes []string `mapstructure:"nameNodes" json:"nameNodes" validate:"required,min=1"`
	User      string   `mapstructure:"user" json:"user,omitempty"`
	RootPath  string   `mapstructure:"rootPath" json:"rootPath" validate:"required"`
}

func (HDFSDescriptor) StorageKind() string { return KindHDFS }

func init() {
	Register(registry.FactoryFunc[model.StorageDescriptor, BlobSource]{
		KindName:   KindHDFS,
		Descriptor: func() model.StorageDescriptor { return &HDFSDescriptor{} },
		CreateFunc: func(_ context.Context, d model.StorageDescriptor) (BlobSource, error) {
			desc, err := registry.As[HDFSDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewHDFSSource(desc)
		},
	})
}

// HDFSSource walks a directory tree on HDFS. The namenode connection is held
// until Close.
type HDFSSource struct {
	client    *hdfs.Client
	nameNode  string
	root      string
	closeOnce sync.Once
	closeErr  error
}

func NewHDFSSource(desc *HDFSDescriptor) (*HDFSSource, error) {
	if len(desc.NameNodes) == 0 {
		return nil, fmt.Errorf("at least one namenode address is required")
	}
	if desc.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}

	client, err := hdfs.NewClient(hdfs.ClientOptions{
		Addresses: desc.NameNodes,
		User:      desc.User,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create HDFS client: %w", err)
	}

	return &HDFSSource{
		client:   client,
		nameNode: desc.NameNodes[0],
		root:     path.Clean("/" + desc.RootPath),
	}, nil
}

func (s *HDFSSource) ListBlobs(ctx context.Context) ([]BlobPath, error) {
	var blobs []BlobPath
	err := s.client.Walk(s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			return nil
		}
		id := strings.TrimPrefix(strings.TrimPrefix(p, s.root), "/")
		blobs = append(blobs, NewBlobPath(id, objectURI("hdfs", s.nameNode, p)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk hdfs://%s%s: %w", s.nameNode, s.root, err)
	}
	return blobs, nil
}

func (s *HDFSSource) Open(_ context.Context, blob BlobPath) (io.ReadCloser, error) {
	reader, err := s.client.Open(path.Join(s.root, blob.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", blob.URI, err)
	}
	return reader, nil
}

func (s *HDFSSource) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.client.Close() })
	return s.closeErr
}
