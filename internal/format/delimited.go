package format

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const (
	KindCSV = "csv"
	KindTSV = "tsv"

	defaultSampleSize = 1000
)

// CSVDescriptor configures delimited text. Without type inference every column
// is a nullable string.
type CSVDescriptor struct {
	Delimiter  string   `mapstructure:"delimiter" json:"delimiter,omitempty"`
	Comment    string   `mapstructure:"comment" json:"comment,omitempty"`
	HasHeader  *bool    `mapstructure:"hasHeader" json:"hasHeader,omitempty"`
	Headers    []string `mapstructure:"headers" json:"headers,omitempty"`
	NullValues []string `mapstructure:"nullValues" json:"nullValues,omitempty"`
	SkipRows   int      `mapstructure:"skipRows" json:"skipRows,omitempty" validate:"min=0"`
	TrimSpace  bool     `mapstructure:"trimSpace" json:"trimSpace,omitempty"`
	InferTypes bool     `mapstructure:"inferTypes" json:"inferTypes,omitempty"`
	SampleSize int      `mapstructure:"sampleSize" json:"sampleSize,omitempty" validate:"min=0"`
}

func (CSVDescriptor) FormatKind() string { return KindCSV }

// TSVDescriptor is CSVDescriptor with a tab delimiter and lazy quoting.
type TSVDescriptor struct {
	CSVDescriptor `mapstructure:",squash"`
}

func (TSVDescriptor) FormatKind() string { return KindTSV }

func init() {
	register(KindCSV, func() *CSVDescriptor { return &CSVDescriptor{} }, func(d *CSVDescriptor) (FormatHandler, error) {
		return NewDelimitedHandler(*d, false)
	})
	register(KindTSV, func() *TSVDescriptor { return &TSVDescriptor{} }, func(d *TSVDescriptor) (FormatHandler, error) {
		cfg := d.CSVDescriptor
		if cfg.Delimiter == "" {
			cfg.Delimiter = "\t"
		}
		return NewDelimitedHandler(cfg, true)
	})
}

// DelimitedHandler reads CSV and TSV blobs with encoding/csv.
type DelimitedHandler struct {
	comma      rune
	comment    rune
	lazyQuotes bool
	hasHeader  bool
	headers    []string
	nulls      nullSet
	skipRows   int
	trim       bool
	infer      bool
	sampleSize int
}

func NewDelimitedHandler(d CSVDescriptor, lazyQuotes bool) (*DelimitedHandler, error) {
	h := &DelimitedHandler{
		comma:      ',',
		lazyQuotes: lazyQuotes,
		hasHeader:  d.HasHeader == nil || *d.HasHeader,
		headers:    d.Headers,
		skipRows:   d.SkipRows,
		trim:       d.TrimSpace,
		infer:      d.InferTypes,
		sampleSize: d.SampleSize,
	}
	if d.Delimiter != "" {
		r, err := singleRune("delimiter", d.Delimiter)
		if err != nil {
			return nil, err
		}
		h.comma = r
	}
	if d.Comment != "" {
		r, err := singleRune("comment", d.Comment)
		if err != nil {
			return nil, err
		}
		h.comment = r
	}
	switch {
	case d.NullValues != nil:
		h.nulls = newNullSet(d.NullValues)
	case d.InferTypes:
		h.nulls = newNullSet(DefaultNullValues)
	default:
		h.nulls = newNullSet([]string{""})
	}
	if h.sampleSize <= 0 {
		h.sampleSize = defaultSampleSize
	}
	return h, nil
}

func singleRune(name, s string) (rune, error) {
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", name, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func (h *DelimitedHandler) newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.Comma = h.comma
	cr.Comment = h.comment
	cr.LazyQuotes = h.lazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return cr
}

// open positions a reader on the first data row and returns the header row, if any.
func (h *DelimitedHandler) open(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (io.ReadCloser, *csv.Reader, []string, error) {
	rc, err := src.Open(ctx, blob)
	if err != nil {
		return nil, nil, nil, err
	}
	cr := h.newReader(rc)
	for i := 0; i < h.skipRows; i++ {
		if _, err := cr.Read(); err != nil {
			rc.Close()
			if errors.Is(err, io.EOF) {
				return nil, nil, nil, fmt.Errorf("%s: fewer than %d rows to skip", blob.URI, h.skipRows)
			}
			return nil, nil, nil, fmt.Errorf("%s: %w", blob.URI, err)
		}
	}
	var header []string
	if h.hasHeader {
		header, err = cr.Read()
		if err != nil && !errors.Is(err, io.EOF) {
			rc.Close()
			return nil, nil, nil, fmt.Errorf("%s: failed to read header row: %w", blob.URI, err)
		}
	}
	return rc, cr, header, nil
}

func (h *DelimitedHandler) InferSchema(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*model.RecordSchema, error) {
	rc, cr, header, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	sampleLimit := 1
	if h.infer {
		sampleLimit = h.sampleSize
	}
	var sample [][]string
	for len(sample) < sampleLimit {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read row: %w", blob.URI, err)
		}
		sample = append(sample, row)
	}

	names := h.columnNames(header, sample)
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: no columns found", blob.URI)
	}

	fields := make([]model.SchemaField, len(names))
	for i, name := range names {
		kind := model.KindString
		if h.infer {
			var det columnDetector
			for _, row := range sample {
				if i >= len(row) {
					continue
				}
				v := h.value(row[i])
				if h.nulls.isNull(v) {
					continue
				}
				det.observe(strings.TrimSpace(v))
			}
			kind = det.kind()
		}
		fields[i] = model.SchemaField{Name: name, Type: model.NewType(kind, true)}
	}
	return model.NewSchema(fields...), nil
}

func (h *DelimitedHandler) columnNames(header []string, sample [][]string) []string {
	if len(h.headers) > 0 {
		return h.headers
	}
	if len(header) > 0 {
		names := make([]string, len(header))
		for i, n := range header {
			n = strings.TrimSpace(n)
			if i == 0 {
				n = strings.TrimPrefix(n, "\ufeff")
			}
			if n == "" {
				n = fmt.Sprintf("column_%d", i+1)
			}
			names[i] = n
		}
		return names
	}
	if len(sample) == 0 {
		return nil
	}
	names := make([]string, len(sample[0]))
	for i := range names {
		names[i] = fmt.Sprintf("column_%d", i+1)
	}
	return names
}

func (h *DelimitedHandler) value(raw string) string {
	if h.trim {
		return strings.TrimSpace(raw)
	}
	return raw
}

func (h *DelimitedHandler) CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) (RecordSource, error) {
	if schema == nil {
		var err error
		if schema, err = h.InferSchema(ctx, src, blob); err != nil {
			return nil, err
		}
	}
	rc, cr, _, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	return &delimitedSource{h: h, rc: rc, cr: cr, fields: schema.Fields, blob: blob}, nil
}

type delimitedSource struct {
	h      *DelimitedHandler
	rc     io.ReadCloser
	cr     *csv.Reader
	fields []model.SchemaField
	blob   storage.BlobPath
	cur    model.Record
	err    error
	done   bool
}

func (s *delimitedSource) Next() bool {
	if s.done {
		return false
	}
	row, err := s.cr.Read()
	if err != nil {
		s.done = true
		s.cur = nil
		if !errors.Is(err, io.EOF) {
			s.err = fmt.Errorf("%s: %w", s.blob.URI, err)
		}
		return false
	}
	rec := make(model.Record, len(s.fields))
	for i, f := range s.fields {
		if i >= len(row) {
			rec[f.Name] = nil
			continue
		}
		v := s.h.value(row[i])
		if s.h.nulls.isNull(v) {
			rec[f.Name] = nil
			continue
		}
		rec[f.Name] = convertText(v, f.Type)
	}
	s.cur = rec
	return true
}

func (s *delimitedSource) Record() model.Record { return s.cur }

func (s *delimitedSource) Err() error { return s.err }

func (s *delimitedSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	s.done = true
	return err
}
