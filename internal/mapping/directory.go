package mapping

import (
	"fmt"
	"strings"

	"nexus-catalog/internal/storage"
)

const KindDirectory = "directory"

// DirectoryDescriptor names the table after the directory Depth levels above
// the blob: 1 is the immediate parent.
type DirectoryDescriptor struct {
	Depth int `mapstructure:"depth" json:"depth" validate:"min=1"`
}

func (DirectoryDescriptor) MappingKind() string { return KindDirectory }

type DirectoryMapper struct {
	depth int
}

func NewDirectoryMapper(depth int) (*DirectoryMapper, error) {
	if depth < 1 {
		return nil, fmt.Errorf("directory mapping depth must be >= 1, got %d", depth)
	}
	return &DirectoryMapper{depth: depth}, nil
}

func (m *DirectoryMapper) MapToTable(blob storage.BlobPath) (*TableMapping, error) {
	segments := splitPath(blob.Path())
	idx := len(segments) - 1 - m.depth
	if idx < 0 {
		return nil, nil
	}
	return &TableMapping{TableName: segments[idx]}, nil
}

func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
