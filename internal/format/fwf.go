package format

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const KindFWF = "fwf"

// FWFColumn is a fixed-width column; Start is inclusive, End exclusive, both
// zero-based character offsets.
type FWFColumn struct {
	Name  string `mapstructure:"name" json:"name" validate:"required"`
	Start int    `mapstructure:"start" json:"start" validate:"min=0"`
	End   int    `mapstructure:"end" json:"end" validate:"gtfield=Start"`
}

type FWFDescriptor struct {
	Columns        []FWFColumn `mapstructure:"columns" json:"columns" validate:"required,min=1,dive"`
	HasHeader      bool        `mapstructure:"hasHeader" json:"hasHeader,omitempty"`
	KeepPadding    bool        `mapstructure:"keepPadding" json:"keepPadding,omitempty"`
	NullValues     []string    `mapstructure:"nullValues" json:"nullValues,omitempty"`
	SkipEmptyLines *bool       `mapstructure:"skipEmptyLines" json:"skipEmptyLines,omitempty"`
}

func (FWFDescriptor) FormatKind() string { return KindFWF }

func init() {
	register(KindFWF, func() *FWFDescriptor { return &FWFDescriptor{} }, func(d *FWFDescriptor) (FormatHandler, error) {
		return NewFWFHandler(*d)
	})
}

// FWFHandler slices each line into columns by character offsets. Every column
// is a nullable string.
type FWFHandler struct {
	cols      []FWFColumn
	hasHeader bool
	keepPad   bool
	skipEmpty bool
	nulls     nullSet
}

func NewFWFHandler(d FWFDescriptor) (*FWFHandler, error) {
	if len(d.Columns) == 0 {
		return nil, fmt.Errorf("fixed-width format requires at least one column")
	}
	for _, c := range d.Columns {
		if c.Start < 0 || c.End <= c.Start {
			return nil, fmt.Errorf("column %q: invalid range [%d,%d)", c.Name, c.Start, c.End)
		}
	}
	nulls := d.NullValues
	if nulls == nil {
		nulls = []string{""}
	}
	return &FWFHandler{
		cols:      d.Columns,
		hasHeader: d.HasHeader,
		keepPad:   d.KeepPadding,
		skipEmpty: d.SkipEmptyLines == nil || *d.SkipEmptyLines,
		nulls:     newNullSet(nulls),
	}, nil
}

func (h *FWFHandler) InferSchema(context.Context, storage.BlobSource, storage.BlobPath) (*model.RecordSchema, error) {
	fields := make([]model.SchemaField, len(h.cols))
	for i, c := range h.cols {
		fields[i] = model.SchemaField{Name: c.Name, Type: model.StringType(true, c.End-c.Start)}
	}
	return model.NewSchema(fields...), nil
}

func (h *FWFHandler) CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, _ *model.RecordSchema) (RecordSource, error) {
	rc, err := src.Open(ctx, blob)
	if err != nil {
		return nil, err
	}
	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	if h.hasHeader {
		sc.Scan()
	}
	return &fwfSource{h: h, rc: rc, sc: sc, blob: blob}, nil
}

func (h *FWFHandler) slice(line string) model.Record {
	runes := []rune(line)
	rec := make(model.Record, len(h.cols))
	for _, c := range h.cols {
		var v string
		if c.Start < len(runes) {
			end := c.End
			if end > len(runes) {
				end = len(runes)
			}
			v = string(runes[c.Start:end])
		}
		if !h.keepPad {
			v = strings.TrimSpace(v)
		}
		if h.nulls.isNull(v) {
			rec[c.Name] = nil
		} else {
			rec[c.Name] = v
		}
	}
	return rec
}

type fwfSource struct {
	h    *FWFHandler
	rc   io.ReadCloser
	sc   *bufio.Scanner
	blob storage.BlobPath
	cur  model.Record
	err  error
}

func (s *fwfSource) Next() bool {
	if s.rc == nil {
		return false
	}
	for s.sc.Scan() {
		line := strings.TrimRight(s.sc.Text(), "\r")
		if s.h.skipEmpty && strings.TrimSpace(line) == "" {
			continue
		}
		s.cur = s.h.slice(line)
		return true
	}
	if err := s.sc.Err(); err != nil {
		s.err = fmt.Errorf("%s: %w", s.blob.URI, err)
	}
	s.cur = nil
	return false
}

func (s *fwfSource) Record() model.Record { return s.cur }

func (s *fwfSource) Err() error { return s.err }

func (s *fwfSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}
