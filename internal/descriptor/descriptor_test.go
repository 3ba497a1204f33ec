package descriptor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
	"nexus-catalog/internal/storage"
)

const warehouse = `
name: warehouse
storage:
  type: local
  rootPath: /data/warehouse
table:
  mapping:
    type: directory
    depth: 1
  attributes:
    - name: source_id
      source: CONSTANT
      value: warehouse-01
conflicts: reject
readers:
  - type: csv
    label: raw
    format:
      delimiter: ","
  - type: tsv
    label: processed
    table:
      mapping:
        type: regex
        pattern: '.*/(?P<table>[^/]+)\.tsv$'
      attributes:
        - name: year
          source: REGEX
          pattern: '.*_(?P<year>\d{4})\.tsv$'
          group: year
          type: INT
`

func TestDecode_MultiReaderSource(t *testing.T) {
	desc, err := Decode([]byte(warehouse))
	require.NoError(t, err)

	assert.Equal(t, "warehouse", desc.Name)
	local, ok := desc.Storage.(*storage.LocalDescriptor)
	require.True(t, ok, "got %T", desc.Storage)
	assert.Equal(t, "/data/warehouse", local.RootPath)

	require.NotNil(t, desc.Table)
	dir, ok := desc.Table.Mapping.(*mapping.DirectoryDescriptor)
	require.True(t, ok)
	assert.Equal(t, 1, dir.Depth)
	require.Len(t, desc.Table.Attributes, 1)
	assert.Equal(t, model.AttributeSourceConstant, desc.Table.Attributes[0].Source)
	assert.Equal(t, model.AttributeString, desc.Table.Attributes[0].Type)
	require.NotNil(t, desc.Table.Attributes[0].Value)
	assert.Equal(t, "warehouse-01", *desc.Table.Attributes[0].Value)

	assert.Equal(t, model.ConflictReject, desc.Conflicts.Default)
	require.Len(t, desc.Readers, 2)

	r1 := desc.Readers[0]
	assert.Equal(t, "csv", r1.Type)
	assert.Equal(t, "raw", r1.Label)
	csv, ok := r1.Format.(*format.CSVDescriptor)
	require.True(t, ok, "got %T", r1.Format)
	assert.Equal(t, ",", csv.Delimiter)
	assert.Nil(t, r1.Table)

	r2 := desc.Readers[1]
	assert.Equal(t, format.KindTSV, format.KindOf(r2.Format))
	require.NotNil(t, r2.Table)
	re, ok := r2.Table.Mapping.(*mapping.RegexDescriptor)
	require.True(t, ok)
	assert.Equal(t, mapping.DefaultTableNameGroup, re.TableNameGroup)
	require.Len(t, r2.Table.Attributes, 1)
	assert.Equal(t, model.AttributeSourceRegex, r2.Table.Attributes[0].Source)
	assert.Equal(t, model.AttributeInt, r2.Table.Attributes[0].Type)
}

func TestDecode_DirectoryDefaultDepth(t *testing.T) {
	desc, err := Decode([]byte(`
name: s
storage: {type: local, rootPath: /d}
readers:
  - type: json
    table:
      mapping:
        type: directory
`))
	require.NoError(t, err)
	dir := desc.Readers[0].Table.Mapping.(*mapping.DirectoryDescriptor)
	assert.Equal(t, 1, dir.Depth)
	assert.Equal(t, model.ConflictReject, desc.Conflicts.Default)
	assert.Empty(t, desc.Conflicts.Rules)
}

func TestDecode_Conflicts(t *testing.T) {
	tests := []struct {
		name      string
		conflicts string
		want      model.ConflictResolution
	}{
		{"shorthand union", `union`, model.ConflictResolution{Default: model.ConflictUnion}},
		{"shorthand upper", `REJECT`, model.ConflictResolution{Default: model.ConflictReject}},
		{"map", "\n  default: union\n  orders: reject", model.ConflictResolution{
			Default: model.ConflictUnion,
			Rules:   map[string]model.ConflictStrategy{"orders": model.ConflictReject},
		}},
		{"map without default", "\n  orders: union", model.ConflictResolution{
			Default: model.ConflictReject,
			Rules:   map[string]model.ConflictStrategy{"orders": model.ConflictUnion},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "name: s\nstorage: {type: local, rootPath: /d}\nconflicts: " + tt.conflicts + "\nreaders: []\n"
			desc, err := Decode([]byte(doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, desc.Conflicts)
		})
	}

	_, err := Decode([]byte("name: s\nconflicts: merge\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown strategy "merge"`)
}

func TestDecode_JSON(t *testing.T) {
	desc, err := Decode([]byte(`{
  "name": "logs",
  "storage": {"type": "s3", "bucket": "b", "region": "eu-west-1", "forcePathStyle": true},
  "readers": [{"type": "fwf", "format": {"columns": [{"name": "id", "start": 0, "end": 4}]},
               "table": {"mapping": {"type": "glob", "pattern": "**/*.txt", "tableName": "logs"}}}]
}`))
	require.NoError(t, err)
	s3, ok := desc.Storage.(*storage.S3Descriptor)
	require.True(t, ok)
	assert.True(t, s3.ForcePathStyle)
	fwf, ok := desc.Readers[0].Format.(*format.FWFDescriptor)
	require.True(t, ok)
	assert.Equal(t, []format.FWFColumn{{Name: "id", Start: 0, End: 4}}, fwf.Columns)
	glob, ok := desc.Readers[0].Table.Mapping.(*mapping.GlobDescriptor)
	require.True(t, ok)
	assert.Equal(t, "logs", glob.TableName)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", ``, "empty"},
		{"not a mapping", `[1, 2]`, "expected a mapping"},
		{"unknown top-level key", "name: s\nowner: me\n", "unknown field(s) owner"},
		{"storage without type", "storage: {rootPath: /d}\n", "storage: missing 'type'"},
		{"unknown storage", "storage: {type: ftp}\n", `kind "ftp"`},
		{"unknown format", "readers: [{type: xml}]\n", `readers[0].format`},
		{"unknown field in plugin", "storage: {type: local, rootPath: /d, recursive: true}\n", "recursive"},
		{"table without mapping", "table: {attributes: []}\n", "table.mapping: missing"},
		{"reader without type", "readers: [{label: x}]\n", "readers[0]: missing 'type'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Decode([]byte("storage: {type: ftp}\n"))
	var unknown *registry.UnknownKindError
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, unknown.Known, storage.KindLocal)
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "source.yaml")
	require.NoError(t, os.WriteFile(path, []byte(warehouse), 0o644))

	desc, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, "warehouse", desc.Name)

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	orig, err := Decode([]byte(warehouse))
	require.NoError(t, err)
	orig.Conflicts = model.ConflictResolution{
		Default: model.ConflictUnion,
		Rules:   map[string]model.ConflictStrategy{"orders": model.ConflictReject},
	}

	out, err := Encode(orig)
	require.NoError(t, err)
	assert.Contains(t, string(out), "type: local")
	assert.Regexp(t, `(?m)^name: warehouse\n`, string(out))

	back, err := Decode(out)
	require.NoError(t, err, string(out))
	assert.Equal(t, orig, back)

	js, err := EncodeJSON(orig)
	require.NoError(t, err)
	fromJSON, err := Decode(js)
	require.NoError(t, err, string(js))
	assert.Equal(t, orig, fromJSON)
}

func TestEncode_OmitsReaderTypeFromFormat(t *testing.T) {
	desc := model.SourceDescriptor{
		Name:    "s",
		Storage: &storage.LocalDescriptor{RootPath: "/d"},
		Readers: []model.ReaderDescriptor{{Type: format.KindAvro, Format: &format.AvroDescriptor{}}},
	}
	out, err := Encode(desc)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "format:")
	assert.NotContains(t, string(out), "conflicts:")
}
