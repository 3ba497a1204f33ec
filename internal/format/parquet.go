package format

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const (
	KindParquet = "parquet"

	defaultParquetBatch = 1000
)

type ParquetDescriptor struct {
	BatchSize int `mapstructure:"batchSize" json:"batchSize,omitempty" validate:"min=0"`
}

func (ParquetDescriptor) FormatKind() string { return KindParquet }

func init() {
	register(KindParquet, func() *ParquetDescriptor { return &ParquetDescriptor{} }, func(d *ParquetDescriptor) (FormatHandler, error) {
		batch := d.BatchSize
		if batch <= 0 {
			batch = defaultParquetBatch
		}
		return &ParquetHandler{batchSize: batch}, nil
	})
}

// ParquetHandler reads the footer schema and decodes rows in batches. The blob
// is buffered in memory since the reader needs to seek.
type ParquetHandler struct {
	batchSize int
}

func (h *ParquetHandler) open(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*reader.ParquetReader, error) {
	data, err := storage.ReadAll(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	pr, err := reader.NewParquetReader(newBytesFile(data), nil, 1)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create parquet reader: %w", blob.URI, err)
	}
	return pr, nil
}

func (h *ParquetHandler) InferSchema(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*model.RecordSchema, error) {
	pr, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	defer pr.ReadStop()
	elements, _ := footerSchema(pr)
	schema, _ := ParquetSchemaToRecordSchema(elements)
	return schema, nil
}

func (h *ParquetHandler) CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) (RecordSource, error) {
	pr, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	elements, keys := footerSchema(pr)
	fileSchema, converted := ParquetSchemaToRecordSchema(elements)
	if schema == nil {
		schema = fileSchema
	}
	return &parquetSource{
		pr:        pr,
		fields:    schema.Fields,
		converted: converted,
		keys:      keys,
		remaining: pr.GetNumRows(),
		batchSize: h.batchSize,
		blob:      blob,
	}, nil
}

type parquetSource struct {
	pr        *reader.ParquetReader
	fields    []model.SchemaField
	converted map[string]parquet.ConvertedType
	keys      map[string]string
	remaining int64
	batchSize int
	blob      storage.BlobPath
	buf       []model.Record
	cur       model.Record
	err       error
	closed    bool
}

func (s *parquetSource) Next() bool {
	s.cur = nil
	if s.closed || s.err != nil {
		return false
	}
	if len(s.buf) == 0 {
		if s.remaining <= 0 {
			return false
		}
		n := int64(s.batchSize)
		if n > s.remaining {
			n = s.remaining
		}
		rows, err := s.pr.ReadByNumber(int(n))
		if err != nil {
			s.err = fmt.Errorf("%s: failed to read parquet rows: %w", s.blob.URI, err)
			return false
		}
		if len(rows) == 0 {
			s.remaining = 0
			return false
		}
		s.remaining -= int64(len(rows))
		if s.buf, err = s.decode(rows); err != nil {
			s.err = err
			return false
		}
	}
	s.cur, s.buf = s.buf[0], s.buf[1:]
	return true
}

// decode turns the reader's generated structs into records through their
// JSON form. The JSON keys are the generated field names, so columns are
// looked up through keys.
func (s *parquetSource) decode(rows []any) ([]model.Record, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode parquet rows: %w", s.blob.URI, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		return nil, fmt.Errorf("%s: failed to decode parquet rows: %w", s.blob.URI, err)
	}
	out := make([]model.Record, len(objs))
	for i, obj := range objs {
		rec := make(model.Record, len(s.fields))
		for _, f := range s.fields {
			key, ok := s.keys[f.Name]
			if !ok {
				key = f.Name
			}
			rec[f.Name] = parquetValue(lookupField(obj, key), f.Type, s.converted[f.Name])
		}
		out[i] = rec
	}
	return out, nil
}

// lookupField falls back to a case-insensitive match for generated field names.
func lookupField(obj map[string]any, name string) any {
	if v, ok := obj[name]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

func parquetValue(v any, t model.DatabaseType, ct parquet.ConvertedType) any {
	n, isNum := v.(json.Number)
	if !isNum {
		return normalizeValue(v, t)
	}
	switch {
	case t.Kind == model.KindDate:
		days, err := n.Int64()
		if err != nil {
			return nil
		}
		return time.Unix(days*86400, 0).UTC()
	case t.Kind == model.KindTimestamp && ct == parquet.ConvertedType_TIMESTAMP_MILLIS:
		ms, err := n.Int64()
		if err != nil {
			return nil
		}
		return time.UnixMilli(ms).UTC()
	case t.Kind == model.KindTimestamp && ct == parquet.ConvertedType_TIMESTAMP_MICROS:
		us, err := n.Int64()
		if err != nil {
			return nil
		}
		return time.UnixMicro(us).UTC()
	case t.Kind == model.KindDouble && ct == parquet.ConvertedType_DECIMAL && t.Scale > 0:
		unscaled, err := n.Float64()
		if err != nil {
			return nil
		}
		for i := 0; i < t.Scale; i++ {
			unscaled /= 10
		}
		return unscaled
	default:
		return normalizeValue(n, t)
	}
}

func (s *parquetSource) Record() model.Record { return s.cur }

func (s *parquetSource) Err() error { return s.err }

func (s *parquetSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pr.ReadStop()
	return nil
}

// footerSchema returns a copy of the footer schema under the external column
// names and the generated field name of every top-level column. The reader
// renames the footer in place when it builds its schema handler.
func footerSchema(pr *reader.ParquetReader) ([]*parquet.SchemaElement, map[string]string) {
	elements := pr.Footer.GetSchema()
	infos := pr.SchemaHandler.Infos
	external := make([]*parquet.SchemaElement, len(elements))
	for i, el := range elements {
		cp := *el
		if i < len(infos) && infos[i] != nil {
			cp.Name = infos[i].ExName
		}
		external[i] = &cp
	}
	keys := make(map[string]string)
	for i := 1; i < len(external); i += subtreeSize(external, i) {
		keys[external[i].GetName()] = elements[i].GetName()
	}
	return external, keys
}

// ParquetSchemaToRecordSchema maps the top-level columns of a footer schema.
// Nested groups become string (JSON text) columns. It also returns each
// column's converted type.
func ParquetSchemaToRecordSchema(elements []*parquet.SchemaElement) (*model.RecordSchema, map[string]parquet.ConvertedType) {
	converted := make(map[string]parquet.ConvertedType)
	if len(elements) == 0 {
		return model.NewSchema(), converted
	}
	var fields []model.SchemaField
	for i := 1; i < len(elements); {
		el := elements[i]
		nullable := el.GetRepetitionType() != parquet.FieldRepetitionType_REQUIRED
		if el.GetNumChildren() > 0 {
			fields = append(fields, model.SchemaField{Name: el.GetName(), Type: model.StringType(true, model.NotApplicable)})
			i += subtreeSize(elements, i)
			continue
		}
		if el.IsSetConvertedType() {
			converted[el.GetName()] = el.GetConvertedType()
		}
		fields = append(fields, model.SchemaField{Name: el.GetName(), Type: parquetType(el, nullable)})
		i++
	}
	return model.NewSchema(fields...), converted
}

func subtreeSize(elements []*parquet.SchemaElement, i int) int {
	size := 1
	children := int(elements[i].GetNumChildren())
	for c := 0; c < children && i+size < len(elements); c++ {
		size += subtreeSize(elements, i+size)
	}
	return size
}

func parquetType(el *parquet.SchemaElement, nullable bool) model.DatabaseType {
	ct := parquet.ConvertedType(-1)
	if el.IsSetConvertedType() {
		ct = el.GetConvertedType()
	}
	if ct == parquet.ConvertedType_DECIMAL {
		return model.DecimalType(nullable, int(el.GetPrecision()), int(el.GetScale()))
	}
	switch el.GetType() {
	case parquet.Type_BOOLEAN:
		return model.NewType(model.KindBool, nullable)
	case parquet.Type_INT32:
		switch ct {
		case parquet.ConvertedType_INT_8, parquet.ConvertedType_UINT_8:
			return model.NewType(model.KindInt, nullable)
		case parquet.ConvertedType_INT_16, parquet.ConvertedType_UINT_16:
			return model.NewType(model.KindSmallInt, nullable)
		case parquet.ConvertedType_DATE:
			return model.NewType(model.KindDate, nullable)
		case parquet.ConvertedType_TIME_MILLIS:
			return model.NewType(model.KindTime, nullable)
		}
		return model.NewType(model.KindInt, nullable)
	case parquet.Type_INT64:
		switch ct {
		case parquet.ConvertedType_TIMESTAMP_MILLIS, parquet.ConvertedType_TIMESTAMP_MICROS:
			return model.NewType(model.KindTimestamp, nullable)
		case parquet.ConvertedType_TIME_MICROS:
			return model.NewType(model.KindTime, nullable)
		}
		return model.NewType(model.KindBigInt, nullable)
	case parquet.Type_INT96:
		return model.BinaryType(nullable, 12)
	case parquet.Type_FLOAT:
		return model.NewType(model.KindFloat, nullable)
	case parquet.Type_DOUBLE:
		return model.NewType(model.KindDouble, nullable)
	case parquet.Type_BYTE_ARRAY:
		switch ct {
		case parquet.ConvertedType_UTF8, parquet.ConvertedType_ENUM, parquet.ConvertedType_JSON:
			return model.StringType(nullable, model.NotApplicable)
		}
		return model.BinaryType(nullable, model.NotApplicable)
	case parquet.Type_FIXED_LEN_BYTE_ARRAY:
		return model.BinaryType(nullable, int(el.GetTypeLength()))
	default:
		return model.StringType(true, model.NotApplicable)
	}
}

// bytesFile is an in-memory source.ParquetFile.
type bytesFile struct {
	data []byte
	r    *bytes.Reader
}

func newBytesFile(data []byte) *bytesFile {
	return &bytesFile{data: data, r: bytes.NewReader(data)}
}

func (f *bytesFile) Read(p []byte) (int, error) { return f.r.Read(p) }

func (f *bytesFile) Seek(offset int64, whence int) (int64, error) {
	return f.r.Seek(offset, whence)
}

func (f *bytesFile) Write([]byte) (int, error) {
	return 0, fmt.Errorf("parquet source is read-only")
}

func (f *bytesFile) Close() error { return nil }

func (f *bytesFile) Open(string) (source.ParquetFile, error) {
	return newBytesFile(f.data), nil
}

func (f *bytesFile) Create(string) (source.ParquetFile, error) {
	return nil, fmt.Errorf("parquet source is read-only")
}

var _ io.ReadSeeker = (*bytesFile)(nil)
