// Package materializer turns source descriptors into runtime components. It is
// the fail-fast setup phase: any error aborts and releases what was built.
package materializer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

// MaterializedReader is a reader with its format handler, table mapper and
// optional attribute extractor resolved. It is stateless and reusable.
type MaterializedReader struct {
	Type               string
	Label              string
	FormatHandler      format.FormatHandler
	TableMapper        mapping.BlobToTableMapper
	AttributeExtractor *mapping.AttributeExtractor
}

// MaterializedSource owns the blob source of one materialized descriptor.
type MaterializedSource struct {
	Name       string
	BlobSource storage.BlobSource
	Readers    []MaterializedReader
	Conflicts  model.ConflictResolution

	closeOnce sync.Once
	closeErr  error
}

// Close releases the blob source. Safe to call more than once and on a nil or
// partially built source.
func (s *MaterializedSource) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		if s.BlobSource != nil {
			s.closeErr = s.BlobSource.Close()
		}
	})
	return s.closeErr
}

// SourceMaterializer resolves descriptors through the three plugin registries.
type SourceMaterializer struct {
	storage *storage.Registry
	formats *format.Registry
	mappers *mapping.Registry
}

func New(storages *storage.Registry, formats *format.Registry, mappers *mapping.Registry) *SourceMaterializer {
	return &SourceMaterializer{storage: storages, formats: formats, mappers: mappers}
}

// Default uses the process-wide registries.
func Default() *SourceMaterializer {
	return New(storage.DefaultRegistry(), format.DefaultRegistry(), mapping.DefaultRegistry())
}

func (m *SourceMaterializer) CreateBlobSource(ctx context.Context, d model.StorageDescriptor) (storage.BlobSource, error) {
	return m.storage.Create(ctx, d)
}

func (m *SourceMaterializer) CreateFormatHandler(ctx context.Context, d model.FormatDescriptor) (format.FormatHandler, error) {
	return m.formats.Create(ctx, d)
}

func (m *SourceMaterializer) CreateTableMapper(ctx context.Context, d model.TableMappingDescriptor) (mapping.BlobToTableMapper, error) {
	return m.mappers.Create(ctx, d)
}

// ErrNoTableMapping is returned when neither the reader nor the source defines
// a table mapping.
var ErrNoTableMapping = errors.New("no table mapping")

// MaterializeReader resolves one reader. The reader-level table, when present,
// replaces sourceDefault entirely.
func (m *SourceMaterializer) MaterializeReader(ctx context.Context, reader model.ReaderDescriptor, sourceDefault *model.TableDescriptor) (MaterializedReader, error) {
	table := reader.Table
	if table == nil {
		table = sourceDefault
	}
	if table == nil || table.Mapping == nil {
		return MaterializedReader{}, fmt.Errorf("reader '%s' has no table mapping (neither reader-level nor source-level 'table.mapping' is defined): %w",
			reader.Type, ErrNoTableMapping)
	}

	handler, err := m.CreateFormatHandler(ctx, reader.Format)
	if err != nil {
		return MaterializedReader{}, fmt.Errorf("reader '%s': %w", reader.Type, err)
	}
	mapper, err := m.CreateTableMapper(ctx, table.Mapping)
	if err != nil {
		return MaterializedReader{}, fmt.Errorf("reader '%s': %w", reader.Type, err)
	}

	mr := MaterializedReader{
		Type:          reader.Type,
		Label:         reader.Label,
		FormatHandler: handler,
		TableMapper:   mapper,
	}
	if len(table.Attributes) > 0 {
		ex, err := mapping.NewAttributeExtractor(table.Attributes)
		if err != nil {
			return MaterializedReader{}, fmt.Errorf("reader '%s': %w", reader.Type, err)
		}
		mr.AttributeExtractor = ex
	}
	return mr, nil
}

// Materialize builds the blob source once, then every reader. The caller owns
// the result and must Close it.
func (m *SourceMaterializer) Materialize(ctx context.Context, src model.SourceDescriptor) (*MaterializedSource, error) {
	log := logrus.WithField("source", src.Name)

	blobs, err := m.CreateBlobSource(ctx, src.Storage)
	if err != nil {
		return nil, fmt.Errorf("source '%s': %w", src.Name, err)
	}
	out := &MaterializedSource{
		Name:       src.Name,
		BlobSource: blobs,
		Readers:    make([]MaterializedReader, 0, len(src.Readers)),
		Conflicts:  src.Conflicts,
	}
	for i, reader := range src.Readers {
		mr, err := m.MaterializeReader(ctx, reader, src.Table)
		if err != nil {
			if cerr := out.Close(); cerr != nil {
				log.WithError(cerr).Warn("failed to close blob source after materialization error")
			}
			return nil, fmt.Errorf("source '%s' reader %d: %w", src.Name, i, err)
		}
		out.Readers = append(out.Readers, mr)
	}
	log.WithFields(logrus.Fields{
		"storage": storage.KindOf(src.Storage),
		"readers": len(out.Readers),
	}).Debug("source materialized")
	return out, nil
}
