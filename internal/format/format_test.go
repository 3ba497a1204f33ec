package format

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

func memBlob(t *testing.T, id, content string) (*storage.MemorySource, storage.BlobPath) {
	t.Helper()
	src := storage.NewMemorySource(map[string][]byte{id: []byte(content)})
	return src, src.Blob(id)
}

func readAll(t *testing.T, h FormatHandler, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) []model.Record {
	t.Helper()
	rs, err := h.CreateRecordSource(context.Background(), src, blob, schema)
	require.NoError(t, err)
	records, err := ReadRecords(rs, 0)
	require.NoError(t, err)
	return records
}

func TestDefaultRegistryKnowsBundledFormats(t *testing.T) {
	kinds := DefaultRegistry().Kinds()
	for _, k := range []string{KindCSV, KindTSV, KindFWF, KindJSON, KindAvro, KindParquet, KindArrow, KindExcel} {
		assert.Contains(t, kinds, k)
	}
}

func TestCSVStringSchema(t *testing.T) {
	src, blob := memBlob(t, "a.csv", "id,name\n1,alice\n2,\n")
	h, err := NewDelimitedHandler(CSVDescriptor{}, false)
	require.NoError(t, err)

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, schema.FieldNames())
	for _, f := range schema.Fields {
		assert.Equal(t, model.KindString, f.Type.Kind)
		assert.True(t, f.Type.Nullable)
	}

	records := readAll(t, h, src, blob, schema)
	require.Len(t, records, 2)
	assert.Equal(t, model.Record{"id": "1", "name": "alice"}, records[0])
	assert.Nil(t, records[1]["name"])
}

func TestCSVInferTypes(t *testing.T) {
	content := "id,price,active,day,note\n1,2.5,true,2024-01-02,x\n2,3,false,2024-01-03,NA\n"
	src, blob := memBlob(t, "a.csv", content)
	h, err := NewDelimitedHandler(CSVDescriptor{InferTypes: true}, false)
	require.NoError(t, err)

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)

	kinds := map[string]model.TypeKind{}
	for _, f := range schema.Fields {
		kinds[f.Name] = f.Type.Kind
	}
	assert.Equal(t, model.KindBigInt, kinds["id"])
	assert.Equal(t, model.KindDouble, kinds["price"])
	assert.Equal(t, model.KindBool, kinds["active"])
	assert.Equal(t, model.KindDate, kinds["day"])
	assert.Equal(t, model.KindString, kinds["note"])

	records := readAll(t, h, src, blob, schema)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, 3.0, records[1]["price"])
	assert.Equal(t, false, records[1]["active"])
	assert.Nil(t, records[1]["note"])
}

func TestCSVWithoutHeaderAndSkipRows(t *testing.T) {
	hasHeader := false
	src, blob := memBlob(t, "a.csv", "# generated\n1;x\n2;y\n")
	h, err := NewDelimitedHandler(CSVDescriptor{Delimiter: ";", HasHeader: &hasHeader, SkipRows: 1}, false)
	require.NoError(t, err)

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"column_1", "column_2"}, schema.FieldNames())

	records := readAll(t, h, src, blob, schema)
	require.Len(t, records, 2)
	assert.Equal(t, "y", records[1]["column_2"])
}

func TestCSVExplicitHeaders(t *testing.T) {
	src, blob := memBlob(t, "a.csv", "a,b\n1,2\n")
	h, err := NewDelimitedHandler(CSVDescriptor{Headers: []string{"x", "y"}}, false)
	require.NoError(t, err)

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, schema.FieldNames())
}

func TestCSVEmptyBlobFails(t *testing.T) {
	src, blob := memBlob(t, "a.csv", "")
	h, err := NewDelimitedHandler(CSVDescriptor{}, false)
	require.NoError(t, err)

	_, err = h.InferSchema(context.Background(), src, blob)
	assert.Error(t, err)
}

func TestCSVRejectsMultiCharDelimiter(t *testing.T) {
	_, err := NewDelimitedHandler(CSVDescriptor{Delimiter: "||"}, false)
	assert.Error(t, err)
}

func TestTSVThroughRegistry(t *testing.T) {
	src, blob := memBlob(t, "a.tsv", "k\tv\na\"x\tb\n")
	h, err := DefaultRegistry().Create(context.Background(), &TSVDescriptor{})
	require.NoError(t, err)

	records := readAll(t, h, src, blob, nil)
	require.Len(t, records, 1)
	assert.Equal(t, `a"x`, records[0]["k"])
	assert.Equal(t, "b", records[0]["v"])
}

func TestFWF(t *testing.T) {
	content := "ID  NAME      \n1   alice     \n\n2             \n"
	src, blob := memBlob(t, "a.txt", content)
	h, err := NewFWFHandler(FWFDescriptor{
		Columns:   []FWFColumn{{Name: "id", Start: 0, End: 4}, {Name: "name", Start: 4, End: 14}},
		HasHeader: true,
	})
	require.NoError(t, err)

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, 10, schema.Fields[1].Type.Precision)

	records := readAll(t, h, src, blob, schema)
	require.Len(t, records, 2)
	assert.Equal(t, model.Record{"id": "1", "name": "alice"}, records[0])
	assert.Nil(t, records[1]["name"])

	_, err = NewFWFHandler(FWFDescriptor{Columns: []FWFColumn{{Name: "x", Start: 3, End: 3}}})
	assert.Error(t, err)
}

func TestJSONLines(t *testing.T) {
	content := `{"id": 1, "name": "a", "tags": ["x"]}
{"id": 2, "score": 1.5}
`
	src, blob := memBlob(t, "a.jsonl", content)
	h := NewJSONHandler(JSONDescriptor{})

	schema, err := h.InferSchema(context.Background(), src, blob)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name", "tags", "score"}, schema.FieldNames())

	f, ok := schema.Field("id")
	require.True(t, ok)
	assert.Equal(t, model.KindBigInt, f.Type.Kind)
	f, _ = schema.Field("score")
	assert.Equal(t, model.KindDouble, f.Type.Kind)

	records := readAll(t, h, src, blob, schema)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0]["id"])
	assert.Equal(t, `["x"]`, records[0]["tags"])
	assert.Nil(t, records[1]["name"])
	assert.Equal(t, 1.5, records[1]["score"])
}

func TestJSONInvalidObject(t *testing.T) {
	src, blob := memBlob(t, "a.jsonl", "{not json}\n")
	_, err := NewJSONHandler(JSONDescriptor{}).InferSchema(context.Background(), src, blob)
	assert.Error(t, err)
}

func TestReadRecordsHonoursLimitAndCloses(t *testing.T) {
	var closes int
	rs := NewSliceSource([]model.Record{{"a": 1}, {"a": 2}, {"a": 3}}, func() error {
		closes++
		return nil
	})

	records, err := ReadRecords(rs, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, 1, closes)

	require.NoError(t, rs.Close())
	assert.Equal(t, 1, closes, "second close is a no-op")
	assert.False(t, rs.Next())
}
