package verify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

func strPtr(s string) *string { return &s }

func validDescriptor() model.SourceDescriptor {
	return model.SourceDescriptor{
		Name:    "sales",
		Storage: &storage.LocalDescriptor{RootPath: "/data/sales"},
		Table: &model.TableDescriptor{
			Mapping: &mapping.DirectoryDescriptor{Depth: 1},
		},
		Readers: []model.ReaderDescriptor{
			{Type: "csv", Format: &format.CSVDescriptor{Delimiter: ","}},
		},
	}
}

func messages(issues []model.VerificationIssue) string {
	var sb strings.Builder
	for _, i := range issues {
		sb.WriteString(i.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestDescriptor_Valid(t *testing.T) {
	r := Default().Descriptor(validDescriptor())
	assert.True(t, r.IsValid(), messages(r.Issues))
	assert.Empty(t, r.Issues)
}

func TestDescriptor_SourceLevelErrors(t *testing.T) {
	d := validDescriptor()
	d.Name = "  "
	d.Readers = nil

	r := Default().Descriptor(d)
	require.False(t, r.IsValid())
	msgs := messages(r.Errors())
	assert.Contains(t, msgs, "Source name must not be blank")
	assert.Contains(t, msgs, "defines no readers")
	for _, i := range r.Errors() {
		assert.Equal(t, model.PhaseDescriptor, i.Phase)
	}
}

func TestDescriptor_ReaderChecks(t *testing.T) {
	d := validDescriptor()
	d.Table = nil
	d.Readers = []model.ReaderDescriptor{
		{Type: "", Label: "x", Format: &format.CSVDescriptor{}, Table: &model.TableDescriptor{Mapping: &mapping.DirectoryDescriptor{Depth: 1}}},
		{Type: "csv", Label: "x", Format: &format.CSVDescriptor{}},
	}

	r := Default().Descriptor(d)
	errs := r.Errors()
	require.Len(t, errs, 2, messages(r.Issues))
	assert.Equal(t, model.PhaseReader, errs[0].Phase)
	assert.Contains(t, errs[0].Message, "type must not be blank")
	assert.Contains(t, errs[1].Message, "no table mapping")
	assert.Equal(t, "1", errs[1].Context["readerIndex"])

	warns := r.Warnings()
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Message, "Duplicate reader label 'x'")
}

func TestDescriptor_UnknownKinds(t *testing.T) {
	d := validDescriptor()
	d.Storage = nil
	d.Readers[0].Format = nil
	r := Default().Descriptor(d)
	msgs := messages(r.Errors())
	assert.Contains(t, msgs, "Storage must be defined")
	assert.Contains(t, msgs, "format must be defined")

	v := New(storage.NewRegistry(), format.NewRegistry(), mapping.NewRegistry())
	d = validDescriptor()
	d.Table.Mapping = unknownMapping{}
	r = v.Descriptor(d)
	require.Len(t, r.Errors(), 1)
	assert.Equal(t, model.PhaseTableMapping, r.Errors()[0].Phase)
	assert.Contains(t, r.Errors()[0].Message, "unknown table mapping type 'nope'")
}

type unknownMapping struct{}

func (unknownMapping) MappingKind() string { return "nope" }

func TestDescriptor_StructRules(t *testing.T) {
	d := validDescriptor()
	d.Storage = &storage.LocalDescriptor{}
	d.Readers[0].Format = &format.FWFDescriptor{Columns: []format.FWFColumn{{Name: "id", Start: 4, End: 2}}}

	r := Default().Descriptor(d)
	errs := r.Errors()
	require.Len(t, errs, 2, messages(r.Issues))
	assert.Equal(t, model.PhaseStorage, errs[0].Phase)
	assert.Contains(t, errs[0].Message, "field 'rootPath' is required")
	assert.Equal(t, model.PhaseReader, errs[1].Phase)
	assert.Contains(t, errs[1].Message, "columns[0].end")
}

func TestMapping(t *testing.T) {
	tests := []struct {
		name string
		d    model.TableMappingDescriptor
		want string
	}{
		{"blank regex", &mapping.RegexDescriptor{Pattern: " "}, "must not be blank"},
		{"invalid regex", &mapping.RegexDescriptor{Pattern: "(unclosed"}, "Invalid regex"},
		{"missing group", &mapping.RegexDescriptor{Pattern: `^/(?P<name>\w+)/`, TableNameGroup: "tbl"}, "named group 'tbl'"},
		{"default group", &mapping.RegexDescriptor{Pattern: `^/(\w+)/`}, "named group 'table'"},
		{"zero depth", &mapping.DirectoryDescriptor{Depth: 0}, "at least 1"},
		{"blank glob", &mapping.GlobDescriptor{TableName: "t"}, "glob pattern must not be blank"},
		{"blank glob table", &mapping.GlobDescriptor{Pattern: "*.csv"}, "table name must not be blank"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := Mapping(tt.d)
			require.NotEmpty(t, msgs)
			assert.Contains(t, strings.Join(msgs, "\n"), tt.want)
		})
	}

	assert.Empty(t, Mapping(&mapping.RegexDescriptor{Pattern: `^/(?P<table>\w+)/`}))
	assert.Empty(t, Mapping(mapping.DirectoryDescriptor{Depth: 2}))
	assert.Empty(t, Mapping(&mapping.GlobDescriptor{Pattern: "logs/**/*.json", TableName: "logs"}))
}

func TestAttribute(t *testing.T) {
	tests := []struct {
		name string
		a    model.TableAttributeDescriptor
		want string
	}{
		{"blank name", model.TableAttributeDescriptor{Source: model.AttributeSourceConstant, Value: strPtr("x")}, "name must not be blank"},
		{"regex without pattern", model.TableAttributeDescriptor{Name: "year", Source: model.AttributeSourceRegex, Group: "y"}, "requires a pattern"},
		{"regex without group", model.TableAttributeDescriptor{Name: "year", Source: model.AttributeSourceRegex, Pattern: `(?P<y>\d+)`}, "requires a group"},
		{"group not in pattern", model.TableAttributeDescriptor{Name: "year", Source: model.AttributeSourceRegex, Pattern: `(?P<y>\d+)`, Group: "year"}, "no named group 'year'"},
		{"constant without value", model.TableAttributeDescriptor{Name: "region", Source: model.AttributeSourceConstant}, "requires a value"},
		{"date without format", model.TableAttributeDescriptor{Name: "day", Source: model.AttributeSourceConstant, Value: strPtr("2024-01-01"), Type: model.AttributeDate}, "requires a format"},
		{"bad date format", model.TableAttributeDescriptor{Name: "day", Source: model.AttributeSourceConstant, Value: strPtr("x"), Type: model.AttributeTimestamp, Format: "yyyy-MM-dd'T"}, "invalid date format"},
		{"unknown type", model.TableAttributeDescriptor{Name: "n", Source: model.AttributeSourceConstant, Value: strPtr("1"), Type: "decimal"}, "unknown type 'decimal'"},
		{"unknown source", model.TableAttributeDescriptor{Name: "n", Source: "header"}, "unknown source 'header'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := Attribute(tt.a)
			require.NotEmpty(t, msgs)
			assert.Contains(t, strings.Join(msgs, "\n"), tt.want)
		})
	}

	assert.Empty(t, Attribute(model.TableAttributeDescriptor{
		Name: "year", Source: model.AttributeSourceRegex, Pattern: `/(?P<year>\d{4})/`, Group: "year", Type: model.AttributeInt,
	}))
	assert.Empty(t, Attribute(model.TableAttributeDescriptor{
		Name: "day", Source: model.AttributeSourceConstant, Value: strPtr("2024-01-01"), Type: model.AttributeDate, Format: "yyyy-MM-dd",
	}))
}

func TestDescriptor_DuplicateAttributes(t *testing.T) {
	d := validDescriptor()
	d.Table.Attributes = []model.TableAttributeDescriptor{
		{Name: "region", Source: model.AttributeSourceConstant, Value: strPtr("eu")},
		{Name: "region", Source: model.AttributeSourceConstant, Value: strPtr("us")},
	}
	r := Default().Descriptor(d)
	require.Len(t, r.Errors(), 1)
	assert.Contains(t, r.Errors()[0].Message, "Duplicate table attribute name 'region'")
}

func TestDescriptor_ConflictStrategies(t *testing.T) {
	d := validDescriptor()
	d.Conflicts = model.ConflictResolution{Default: "merge", Rules: map[string]model.ConflictStrategy{"orders": "UNION"}}
	r := Default().Descriptor(d)
	require.Len(t, r.Errors(), 1)
	assert.Equal(t, model.PhaseConflict, r.Errors()[0].Phase)
	assert.Contains(t, r.Errors()[0].Message, "'merge'")
}

func TestSource_Deep(t *testing.T) {
	dir := t.TempDir()
	d := validDescriptor()
	d.Storage = &storage.LocalDescriptor{RootPath: dir}

	r := Default().Source(context.Background(), d, nil)
	assert.True(t, r.IsValid(), messages(r.Issues))
	assert.Empty(t, r.Tables)
	require.NotEmpty(t, r.Infos())
	assert.Contains(t, r.Infos()[0].Message, "Storage is empty")

	d.Name = ""
	r = Default().Source(context.Background(), d, nil)
	assert.False(t, r.IsValid())
	assert.Empty(t, r.Infos(), "discovery must not run when static checks fail")
}
