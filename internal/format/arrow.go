package format

import (
	"bytes"
	"context"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const KindArrow = "arrow"

// ArrowDescriptor reads Arrow IPC data: the random-access file format by
// default, the streaming format when Stream is set.
type ArrowDescriptor struct {
	Stream bool `mapstructure:"stream" json:"stream,omitempty"`
}

func (ArrowDescriptor) FormatKind() string { return KindArrow }

func init() {
	register(KindArrow, func() *ArrowDescriptor { return &ArrowDescriptor{} }, func(d *ArrowDescriptor) (FormatHandler, error) {
		return &ArrowHandler{stream: d.Stream}, nil
	})
}

type ArrowHandler struct {
	stream bool
}

// arrowBatches abstracts over the file and stream readers.
type arrowBatches interface {
	Schema() *arrow.Schema
	next() (arrow.Record, bool, error)
	close()
}

type arrowFile struct {
	r *ipc.FileReader
	i int
}

func (f *arrowFile) Schema() *arrow.Schema { return f.r.Schema() }

func (f *arrowFile) next() (arrow.Record, bool, error) {
	if f.i >= f.r.NumRecords() {
		return nil, false, nil
	}
	rec, err := f.r.Record(f.i)
	f.i++
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (f *arrowFile) close() { f.r.Close() }

type arrowStream struct {
	r *ipc.Reader
}

func (s *arrowStream) Schema() *arrow.Schema { return s.r.Schema() }

func (s *arrowStream) next() (arrow.Record, bool, error) {
	if !s.r.Next() {
		return nil, false, s.r.Err()
	}
	return s.r.Record(), true, nil
}

func (s *arrowStream) close() { s.r.Release() }

func (h *ArrowHandler) open(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (arrowBatches, error) {
	data, err := storage.ReadAll(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	alloc := ipc.WithAllocator(memory.NewGoAllocator())
	if h.stream {
		r, err := ipc.NewReader(bytes.NewReader(data), alloc)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to open arrow stream: %w", blob.URI, err)
		}
		return &arrowStream{r: r}, nil
	}
	r, err := ipc.NewFileReader(bytes.NewReader(data), alloc)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open arrow file: %w", blob.URI, err)
	}
	return &arrowFile{r: r}, nil
}

func (h *ArrowHandler) InferSchema(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*model.RecordSchema, error) {
	b, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	defer b.close()
	return ArrowSchemaToRecordSchema(b.Schema()), nil
}

func (h *ArrowHandler) CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) (RecordSource, error) {
	b, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		schema = ArrowSchemaToRecordSchema(b.Schema())
	}
	return &arrowSource{batches: b, fields: schema.Fields, blob: blob}, nil
}

type arrowSource struct {
	batches arrowBatches
	fields  []model.SchemaField
	blob    storage.BlobPath
	batch   arrow.Record
	row     int
	cur     model.Record
	err     error
	closed  bool
}

func (s *arrowSource) Next() bool {
	s.cur = nil
	if s.closed || s.err != nil {
		return false
	}
	for s.batch == nil || s.row >= int(s.batch.NumRows()) {
		rec, ok, err := s.batches.next()
		if err != nil {
			s.err = fmt.Errorf("%s: %w", s.blob.URI, err)
			return false
		}
		if !ok {
			return false
		}
		s.batch, s.row = rec, 0
	}
	schema := s.batch.Schema()
	out := make(model.Record, len(s.fields))
	for _, f := range s.fields {
		idx := schema.FieldIndices(f.Name)
		if len(idx) == 0 {
			out[f.Name] = nil
			continue
		}
		col := s.batch.Column(idx[0])
		if col.IsNull(s.row) {
			out[f.Name] = nil
			continue
		}
		out[f.Name] = col.GetOneForMarshal(s.row)
	}
	s.row++
	s.cur = out
	return true
}

func (s *arrowSource) Record() model.Record { return s.cur }

func (s *arrowSource) Err() error { return s.err }

func (s *arrowSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.batches.close()
	return nil
}

// ArrowSchemaToRecordSchema maps Arrow field types to column types.
func ArrowSchemaToRecordSchema(schema *arrow.Schema) *model.RecordSchema {
	fields := make([]model.SchemaField, 0, len(schema.Fields()))
	for _, f := range schema.Fields() {
		fields = append(fields, model.SchemaField{Name: f.Name, Type: arrowType(f.Type, f.Nullable)})
	}
	return model.NewSchema(fields...)
}

func arrowType(t arrow.DataType, nullable bool) model.DatabaseType {
	switch dt := t.(type) {
	case *arrow.FixedSizeBinaryType:
		return model.BinaryType(nullable, dt.ByteWidth)
	case *arrow.Decimal128Type:
		return model.DecimalType(nullable, int(dt.Precision), int(dt.Scale))
	case *arrow.Decimal256Type:
		return model.DecimalType(nullable, int(dt.Precision), int(dt.Scale))
	case *arrow.TimestampType:
		if dt.TimeZone != "" {
			return model.NewType(model.KindTimestampTZ, nullable)
		}
		return model.NewType(model.KindTimestamp, nullable)
	}
	switch t.ID() {
	case arrow.BOOL:
		return model.NewType(model.KindBool, nullable)
	case arrow.INT8, arrow.UINT8:
		return model.NewType(model.KindTinyInt, nullable)
	case arrow.INT16, arrow.UINT16:
		return model.NewType(model.KindSmallInt, nullable)
	case arrow.INT32, arrow.UINT32:
		return model.NewType(model.KindInt, nullable)
	case arrow.INT64, arrow.UINT64:
		return model.NewType(model.KindBigInt, nullable)
	case arrow.FLOAT16, arrow.FLOAT32:
		return model.NewType(model.KindFloat, nullable)
	case arrow.FLOAT64:
		return model.NewType(model.KindDouble, nullable)
	case arrow.STRING, arrow.LARGE_STRING:
		return model.StringType(nullable, model.NotApplicable)
	case arrow.BINARY, arrow.LARGE_BINARY:
		return model.BinaryType(nullable, model.NotApplicable)
	case arrow.DATE32, arrow.DATE64:
		return model.NewType(model.KindDate, nullable)
	case arrow.TIME32, arrow.TIME64:
		return model.NewType(model.KindTime, nullable)
	case arrow.INTERVAL_MONTHS:
		return model.NewType(model.KindIntervalYear, nullable)
	case arrow.INTERVAL_DAY_TIME, arrow.DURATION:
		return model.NewType(model.KindIntervalDay, nullable)
	default:
		return model.StringType(true, model.NotApplicable)
	}
}
