package catalog

import (
	"context"
	"fmt"

	"nexus-catalog/internal/discovery"
	"nexus-catalog/internal/format"
	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

// Table is a discovered table backed by a live materialized source.
type Table struct {
	source *materializer.MaterializedSource
	dt     discovery.DiscoveredTable
}

func newTable(src *materializer.MaterializedSource, dt discovery.DiscoveredTable) *Table {
	return &Table{source: src, dt: dt}
}

func (t *Table) Name() string { return t.dt.Name }

// Schema is nil when inference failed during discovery.
func (t *Table) Schema() *model.RecordSchema { return t.dt.Schema }

func (t *Table) Blobs() []storage.BlobPath { return t.dt.BlobPaths }

func (t *Table) Discovered() discovery.DiscoveredTable { return t.dt }

// Records opens a record source over every blob of the table, in discovery
// order. Blobs are opened one at a time with the format handler of the
// reader that mapped them, and each record carries the blob's attribute
// values.
func (t *Table) Records(ctx context.Context) (format.RecordSource, error) {
	if t.dt.FormatSchema == nil {
		return nil, fmt.Errorf("table '%s' has no schema", t.dt.Name)
	}
	var parts []part
	for _, c := range t.dt.Contributions {
		if c.ReaderIndex < 0 || c.ReaderIndex >= len(t.source.Readers) {
			return nil, fmt.Errorf("table '%s': reader %d is not materialized", t.dt.Name, c.ReaderIndex)
		}
		reader := t.source.Readers[c.ReaderIndex]
		var schema *model.RecordSchema
		if c.ReaderIndex == t.dt.Contributions[0].ReaderIndex {
			schema = t.dt.FormatSchema
		}
		for _, b := range c.Blobs {
			parts = append(parts, part{reader: reader, blob: b, schema: schema})
		}
	}
	// Blobs of readers without attributes still carry the schema's attribute
	// columns, as nulls.
	var nulls map[string]any
	if extra := t.dt.Schema.Len() - t.dt.FormatSchema.Len(); extra > 0 {
		nulls = make(map[string]any, extra)
		for _, f := range t.dt.Schema.Fields[t.dt.FormatSchema.Len():] {
			nulls[f.Name] = nil
		}
	}
	return &concatSource{ctx: ctx, src: t.source.BlobSource, parts: parts, nulls: nulls}, nil
}

type part struct {
	reader materializer.MaterializedReader
	blob   storage.BlobPath
	schema *model.RecordSchema
}

// concatSource chains the record sources of several blobs.
type concatSource struct {
	ctx    context.Context
	src    storage.BlobSource
	parts  []part
	next   int
	cur    format.RecordSource
	attrs  map[string]any
	nulls  map[string]any
	rec    model.Record
	err    error
	closed bool
}

func (s *concatSource) Next() bool {
	s.rec = nil
	if s.closed || s.err != nil {
		return false
	}
	for {
		if s.cur != nil {
			if s.cur.Next() {
				rec := s.cur.Record()
				for k, v := range s.attrs {
					rec[k] = v
				}
				s.rec = rec
				return true
			}
			err := s.cur.Err()
			cerr := s.cur.Close()
			s.cur = nil
			if err == nil {
				err = cerr
			}
			if err != nil {
				s.err = err
				return false
			}
		}
		if s.next >= len(s.parts) {
			return false
		}
		p := s.parts[s.next]
		s.next++
		rs, err := p.reader.FormatHandler.CreateRecordSource(s.ctx, s.src, p.blob, p.schema)
		if err != nil {
			s.err = fmt.Errorf("%s: %w", p.blob.URI, err)
			return false
		}
		s.cur = rs
		s.attrs = s.nulls
		if ex := p.reader.AttributeExtractor; ex != nil {
			s.attrs = ex.Extract(p.blob)
		}
	}
}

func (s *concatSource) Record() model.Record { return s.rec }

func (s *concatSource) Err() error { return s.err }

func (s *concatSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cur != nil {
		err := s.cur.Close()
		s.cur = nil
		return err
	}
	return nil
}
