package format

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/linkedin/goavro/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"github.com/xuri/excelize/v2"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const eventSchema = `{
  "type": "record",
  "name": "Event",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "name", "type": ["null", "string"]},
    {"name": "day", "type": {"type": "int", "logicalType": "date"}},
    {"name": "at", "type": {"type": "long", "logicalType": "timestamp-millis"}},
    {"name": "amount", "type": {"type": "bytes", "logicalType": "decimal", "precision": 10, "scale": 2}},
    {"name": "hash", "type": {"type": "fixed", "name": "md5", "size": 16}},
    {"name": "kind", "type": {"type": "enum", "name": "Kind", "symbols": ["A", "B"]}},
    {"name": "tags", "type": {"type": "array", "items": "string"}}
  ]
}`

func TestAvroSchemaToRecordSchema(t *testing.T) {
	schema, err := AvroSchemaToRecordSchema(eventSchema)
	require.NoError(t, err)

	want := map[string]string{
		"id":     "bigint not null",
		"name":   "string",
		"day":    "date not null",
		"at":     "timestamp_tz not null",
		"amount": "double(10,2) not null",
		"hash":   "binary(16) not null",
		"kind":   "string not null",
		"tags":   "string not null",
	}
	require.Equal(t, len(want), schema.Len())
	for _, f := range schema.Fields {
		assert.Equal(t, want[f.Name], f.Type.String(), f.Name)
	}

	_, err = AvroSchemaToRecordSchema(`{"type": "array", "items": "int"}`)
	assert.Error(t, err)
}

func TestAvroReadsContainerFile(t *testing.T) {
	const schema = `{"type": "record", "name": "R", "fields": [
		{"name": "id", "type": "long"},
		{"name": "name", "type": ["null", "string"], "default": null}
	]}`
	var buf bytes.Buffer
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{W: &buf, Schema: schema})
	require.NoError(t, err)
	require.NoError(t, w.Append([]any{
		map[string]any{"id": int64(1), "name": goavro.Union("string", "alice")},
		map[string]any{"id": int64(2), "name": nil},
	}))

	src := storage.NewMemorySource(map[string][]byte{"r.avro": buf.Bytes()})
	blob := src.Blob("r.avro")
	h, err := DefaultRegistry().Create(context.Background(), &AvroDescriptor{})
	require.NoError(t, err)

	inferred, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, inferred.FieldNames())

	records := readAll(t, h, src, blob, inferred)
	require.Len(t, records, 2)
	assert.Equal(t, model.Record{"id": int64(1), "name": "alice"}, records[0])
	assert.Nil(t, records[1]["name"])
}

func TestAvroRejectsGarbage(t *testing.T) {
	src, blob := memBlob(t, "bad.avro", "not an avro file")
	_, err := (&AvroHandler{}).InferSchema(context.Background(), src, blob)
	assert.Error(t, err)
}

func ptr[T any](v T) *T { return &v }

func TestParquetSchemaToRecordSchema(t *testing.T) {
	required := parquet.FieldRepetitionType_REQUIRED
	optional := parquet.FieldRepetitionType_OPTIONAL
	elements := []*parquet.SchemaElement{
		{Name: "schema", NumChildren: ptr(int32(6))},
		{Name: "id", Type: ptr(parquet.Type_INT64), RepetitionType: &required},
		{Name: "name", Type: ptr(parquet.Type_BYTE_ARRAY), ConvertedType: ptr(parquet.ConvertedType_UTF8), RepetitionType: &optional},
		{Name: "day", Type: ptr(parquet.Type_INT32), ConvertedType: ptr(parquet.ConvertedType_DATE), RepetitionType: &optional},
		{Name: "price", Type: ptr(parquet.Type_INT64), ConvertedType: ptr(parquet.ConvertedType_DECIMAL), Precision: ptr(int32(12)), Scale: ptr(int32(3)), RepetitionType: &optional},
		{Name: "address", NumChildren: ptr(int32(1)), RepetitionType: &optional},
		{Name: "city", Type: ptr(parquet.Type_BYTE_ARRAY), RepetitionType: &optional},
		{Name: "flag", Type: ptr(parquet.Type_BOOLEAN), RepetitionType: &required},
	}

	schema, converted := ParquetSchemaToRecordSchema(elements)
	assert.Equal(t, []string{"id", "name", "day", "price", "address", "flag"}, schema.FieldNames())

	types := map[string]model.DatabaseType{}
	for _, f := range schema.Fields {
		types[f.Name] = f.Type
	}
	assert.Equal(t, model.KindBigInt, types["id"].Kind)
	assert.False(t, types["id"].Nullable)
	assert.Equal(t, model.KindString, types["name"].Kind)
	assert.Equal(t, model.KindDate, types["day"].Kind)
	assert.Equal(t, "double(12,3)", types["price"].String())
	assert.Equal(t, model.KindString, types["address"].Kind)
	assert.Equal(t, model.KindBool, types["flag"].Kind)
	assert.Equal(t, parquet.ConvertedType_DATE, converted["day"])
}

type parquetEvent struct {
	ID       int64  `parquet:"name=id, type=INT64"`
	UserName string `parquet:"name=user_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Day      int32  `parquet:"name=day, type=INT32, convertedtype=DATE"`
}

func TestParquetFileKeepsColumnNames(t *testing.T) {
	var buf bytes.Buffer
	pw, err := writer.NewParquetWriterFromWriter(&buf, new(parquetEvent), 1)
	require.NoError(t, err)
	require.NoError(t, pw.Write(parquetEvent{ID: 1, UserName: "alice", Day: 19000}))
	require.NoError(t, pw.Write(parquetEvent{ID: 2, UserName: "bob", Day: 19001}))
	require.NoError(t, pw.WriteStop())

	src := storage.NewMemorySource(map[string][]byte{"events.parquet": buf.Bytes()})
	blob := src.Blob("events.parquet")
	h := &ParquetHandler{batchSize: 1}

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "user_name", "day"}, schema.FieldNames())
	assert.Equal(t, model.KindDate, schema.Fields[2].Type.Kind)

	records := readAll(t, h, src, blob, schema)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, "alice", records[0]["user_name"])
	assert.Equal(t, time.Unix(19000*86400, 0).UTC(), records[0]["day"])
	assert.Equal(t, "bob", records[1]["user_name"])
	assert.NotContains(t, records[0], "User_name")

	// A nil schema falls back to the file schema.
	fallback := readAll(t, h, src, blob, nil)
	require.Len(t, fallback, 2)
	assert.Equal(t, "alice", fallback[0]["user_name"])
}

func TestArrowFileRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"a", ""}, []bool{true, false})
	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.CreateTemp(t.TempDir(), "*.arrow")
	require.NoError(t, err)
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)

	src := storage.NewMemorySource(map[string][]byte{"t.arrow": data})
	blob := src.Blob("t.arrow")
	h := &ArrowHandler{}

	inferred, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, "bigint not null", inferred.Fields[0].Type.String())
	assert.Equal(t, model.KindString, inferred.Fields[1].Type.Kind)

	records := readAll(t, h, src, blob, inferred)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, "a", records[0]["name"])
	assert.Nil(t, records[1]["name"])
}

func TestArrowTypeMapping(t *testing.T) {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "ts", Type: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}, Nullable: true},
		{Name: "local", Type: &arrow.TimestampType{Unit: arrow.Millisecond}, Nullable: true},
		{Name: "dec", Type: &arrow.Decimal128Type{Precision: 9, Scale: 2}, Nullable: true},
		{Name: "d", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
		{Name: "small", Type: arrow.PrimitiveTypes.Int16, Nullable: true},
	}, nil)

	got := ArrowSchemaToRecordSchema(schema)
	assert.Equal(t, model.KindTimestampTZ, got.Fields[0].Type.Kind)
	assert.Equal(t, model.KindTimestamp, got.Fields[1].Type.Kind)
	assert.Equal(t, "double(9,2)", got.Fields[2].Type.String())
	assert.Equal(t, model.KindDate, got.Fields[3].Type.Kind)
	assert.Equal(t, model.KindSmallInt, got.Fields[4].Type.Kind)
}

func TestExcelSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"id", "city"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{1, "Oslo"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{2, "Bergen"}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	src := storage.NewMemorySource(map[string][]byte{"cities.xlsx": buf.Bytes()})
	blob := src.Blob("cities.xlsx")
	h, err := DefaultRegistry().Create(context.Background(), &ExcelDescriptor{InferTypes: true})
	require.NoError(t, err)

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "city"}, schema.FieldNames())
	assert.Equal(t, model.KindBigInt, schema.Fields[0].Type.Kind)

	records := readAll(t, h, src, blob, schema)
	require.Len(t, records, 2)
	assert.Equal(t, model.Record{"id": int64(2), "city": "Bergen"}, records[1])
}
