package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMapping struct{}

func (testMapping) MappingKind() string { return "test" }

func TestEffectiveTableReplacesWholesale(t *testing.T) {
	sourceTable := &TableDescriptor{
		Mapping:    testMapping{},
		Attributes: []TableAttributeDescriptor{{Name: "region", Source: AttributeSourceConstant}},
	}
	readerTable := &TableDescriptor{Mapping: testMapping{}}
	src := SourceDescriptor{Name: "s", Table: sourceTable}

	assert.Same(t, sourceTable, src.EffectiveTable(ReaderDescriptor{Type: "csv"}))

	got := src.EffectiveTable(ReaderDescriptor{Type: "csv", Table: readerTable})
	assert.Same(t, readerTable, got)
	assert.Empty(t, got.Attributes, "source attributes must not leak into a reader table")
}

func TestConflictResolutionDefaults(t *testing.T) {
	var zero ConflictResolution
	assert.Equal(t, ConflictReject, zero.DefaultStrategy())

	c := ConflictResolution{Default: ConflictUnion, Rules: map[string]ConflictStrategy{"orders": ConflictReject}}
	assert.Equal(t, ConflictUnion, c.DefaultStrategy())

	rule, ok := c.RuleFor("orders")
	require.True(t, ok)
	assert.Equal(t, ConflictReject, rule)

	_, ok = c.RuleFor("customers")
	assert.False(t, ok)
}

func TestParseConflictStrategy(t *testing.T) {
	s, ok := ParseConflictStrategy(" UNION ")
	require.True(t, ok)
	assert.Equal(t, ConflictUnion, s)

	_, ok = ParseConflictStrategy("merge")
	assert.False(t, ok)
}

func TestSchemaAppendRenumbers(t *testing.T) {
	base := NewSchema(
		SchemaField{Name: "id", Type: NewType(KindBigInt, false)},
		SchemaField{Name: "name", Type: StringType(true, NotApplicable)},
	)
	extended := base.Append(
		SchemaField{Name: "year", Index: 99, Type: AttributeInt.ColumnType()},
		SchemaField{Name: "id", Type: NewType(KindString, true)},
	)

	assert.Equal(t, []string{"id", "name", "year"}, extended.FieldNames())
	for i, f := range extended.Fields {
		assert.Equal(t, i, f.Index)
	}
	assert.Equal(t, 2, base.Len(), "append must not mutate the receiver")

	var empty *RecordSchema
	assert.Equal(t, 1, empty.Append(SchemaField{Name: "x"}).Len())
}

func TestDatabaseTypeString(t *testing.T) {
	assert.Equal(t, "int not null", NewType(KindInt, false).String())
	assert.Equal(t, "double(10,2)", DecimalType(true, 10, 2).String())
	assert.Equal(t, "binary(16)", BinaryType(true, 16).String())
	assert.Equal(t, "string", StringType(true, NotApplicable).String())
}

func TestAttributeColumnTypesAreNullable(t *testing.T) {
	for _, at := range []AttributeType{AttributeString, AttributeInt, AttributeLong, AttributeFloat,
		AttributeDouble, AttributeBool, AttributeDate, AttributeTimestamp} {
		assert.True(t, at.ColumnType().Nullable, string(at))
	}
	assert.Equal(t, KindBigInt, AttributeLong.ColumnType().Kind)

	at, ok := ParseAttributeType("Boolean")
	require.True(t, ok)
	assert.Equal(t, AttributeBool, at)
	_, ok = ParseAttributeType("uuid")
	assert.False(t, ok)
}

func TestReportFilters(t *testing.T) {
	r := VerificationReport{Issues: []VerificationIssue{
		{Severity: SeverityInfo, Phase: PhaseStorage, Message: "a"},
		{Severity: SeverityError, Phase: PhaseConflict, Message: "b"},
	}}
	assert.False(t, r.IsValid())
	assert.Len(t, r.Errors(), 1)
	assert.Len(t, r.Infos(), 1)
	assert.Empty(t, r.Warnings())

	merged := r.Merge(VerificationReport{Issues: []VerificationIssue{{Severity: SeverityWarning, Message: "c"}}})
	assert.Len(t, merged.Issues, 3)
	assert.Equal(t, "c", merged.Issues[2].Message)
}
