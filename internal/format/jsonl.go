package format

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const KindJSON = "json"

// JSONDescriptor reads newline-delimited JSON objects.
type JSONDescriptor struct {
	SampleSize int `mapstructure:"sampleSize" json:"sampleSize,omitempty" validate:"min=0"`
}

func (JSONDescriptor) FormatKind() string { return KindJSON }

func init() {
	register(KindJSON, func() *JSONDescriptor { return &JSONDescriptor{} }, func(d *JSONDescriptor) (FormatHandler, error) {
		return NewJSONHandler(*d), nil
	})
}

// JSONHandler infers columns from the union of keys over a sample of objects,
// in first-appearance order.
type JSONHandler struct {
	sampleSize int
}

func NewJSONHandler(d JSONDescriptor) *JSONHandler {
	n := d.SampleSize
	if n <= 0 {
		n = defaultSampleSize
	}
	return &JSONHandler{sampleSize: n}
}

func newJSONDecoder(r io.Reader) *json.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

func (h *JSONHandler) InferSchema(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*model.RecordSchema, error) {
	rc, err := src.Open(ctx, blob)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := newJSONDecoder(rc)
	var (
		order []string
		kinds = map[string]map[model.TypeKind]int{}
	)
	for n := 0; n < h.sampleSize; n++ {
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%s: invalid JSON object at record %d: %w", blob.URI, n+1, err)
		}
		for k, v := range obj {
			if _, seen := kinds[k]; !seen {
				kinds[k] = map[model.TypeKind]int{}
			}
			if v != nil {
				kinds[k][jsonKind(v)]++
			}
		}
		order = appendNewKeys(order, obj)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("%s: no JSON objects found", blob.URI)
	}

	fields := make([]model.SchemaField, len(order))
	for i, name := range order {
		det := columnDetector{kinds: kinds[name]}
		fields[i] = model.SchemaField{Name: name, Type: model.NewType(det.kind(), true)}
	}
	return model.NewSchema(fields...), nil
}

// appendNewKeys adds unseen keys. Decoding into a map loses the document
// order, so keys first seen in the same object are appended sorted.
func appendNewKeys(order []string, obj map[string]any) []string {
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		seen[k] = true
	}
	var fresh []string
	for k := range obj {
		if !seen[k] {
			fresh = append(fresh, k)
		}
	}
	sort.Strings(fresh)
	return append(order, fresh...)
}

func jsonKind(v any) model.TypeKind {
	switch x := v.(type) {
	case bool:
		return model.KindBool
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return model.KindBigInt
		}
		return model.KindDouble
	case string:
		return model.KindString
	default:
		// nested objects and arrays are carried as JSON text
		return model.KindString
	}
}

func (h *JSONHandler) CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) (RecordSource, error) {
	if schema == nil {
		var err error
		if schema, err = h.InferSchema(ctx, src, blob); err != nil {
			return nil, err
		}
	}
	rc, err := src.Open(ctx, blob)
	if err != nil {
		return nil, err
	}
	return &jsonSource{rc: rc, dec: newJSONDecoder(rc), fields: schema.Fields, blob: blob}, nil
}

type jsonSource struct {
	rc     io.ReadCloser
	dec    *json.Decoder
	fields []model.SchemaField
	blob   storage.BlobPath
	cur    model.Record
	err    error
}

func (s *jsonSource) Next() bool {
	if s.rc == nil || s.err != nil {
		return false
	}
	var obj map[string]any
	if err := s.dec.Decode(&obj); err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = fmt.Errorf("%s: %w", s.blob.URI, err)
		}
		s.cur = nil
		return false
	}
	rec := make(model.Record, len(s.fields))
	for _, f := range s.fields {
		rec[f.Name] = normalizeValue(obj[f.Name], f.Type)
	}
	s.cur = rec
	return true
}

func (s *jsonSource) Record() model.Record { return s.cur }

func (s *jsonSource) Err() error { return s.err }

func (s *jsonSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}
