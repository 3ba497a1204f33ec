package model

import "fmt"

// NotApplicable marks precision or scale that does not apply to a type.
const NotApplicable = -1

type TypeKind string

const (
	KindBool         TypeKind = "bool"
	KindTinyInt      TypeKind = "tinyint"
	KindSmallInt     TypeKind = "smallint"
	KindInt          TypeKind = "int"
	KindBigInt       TypeKind = "bigint"
	KindFloat        TypeKind = "float"
	KindDouble       TypeKind = "double"
	KindString       TypeKind = "string"
	KindBinary       TypeKind = "binary"
	KindDate         TypeKind = "date"
	KindTime         TypeKind = "time"
	KindTimestamp    TypeKind = "timestamp"
	KindTimestampTZ  TypeKind = "timestamp_tz"
	KindIntervalDay  TypeKind = "interval_day"
	KindIntervalYear TypeKind = "interval_year"
)

// DatabaseType is a column type with nullability and optional precision/scale.
type DatabaseType struct {
	Kind      TypeKind `json:"kind"`
	Nullable  bool     `json:"nullable"`
	Precision int      `json:"precision"`
	Scale     int      `json:"scale"`
}

func NewType(kind TypeKind, nullable bool) DatabaseType {
	return DatabaseType{Kind: kind, Nullable: nullable, Precision: NotApplicable, Scale: NotApplicable}
}

// StringType returns a string type with an optional maximum length.
func StringType(nullable bool, length int) DatabaseType {
	t := NewType(KindString, nullable)
	t.Precision = length
	return t
}

// BinaryType returns a binary type; length -1 means variable length.
func BinaryType(nullable bool, length int) DatabaseType {
	t := NewType(KindBinary, nullable)
	t.Precision = length
	return t
}

// DecimalType is carried as double with the declared precision and scale kept.
func DecimalType(nullable bool, precision, scale int) DatabaseType {
	return DatabaseType{Kind: KindDouble, Nullable: nullable, Precision: precision, Scale: scale}
}

func (t DatabaseType) WithNullable(nullable bool) DatabaseType {
	t.Nullable = nullable
	return t
}

func (t DatabaseType) String() string {
	s := string(t.Kind)
	switch {
	case t.Precision != NotApplicable && t.Scale != NotApplicable:
		s = fmt.Sprintf("%s(%d,%d)", s, t.Precision, t.Scale)
	case t.Precision != NotApplicable:
		s = fmt.Sprintf("%s(%d)", s, t.Precision)
	}
	if !t.Nullable {
		s += " not null"
	}
	return s
}

// SchemaField is a named, positioned column.
type SchemaField struct {
	Name  string       `json:"name"`
	Index int          `json:"index"`
	Type  DatabaseType `json:"type"`
}

// RecordSchema is an ordered list of fields; Index always equals position.
type RecordSchema struct {
	Fields []SchemaField `json:"fields"`
}

// NewSchema builds a schema and renumbers field indexes by position.
func NewSchema(fields ...SchemaField) *RecordSchema {
	out := make([]SchemaField, len(fields))
	for i, f := range fields {
		f.Index = i
		out[i] = f
	}
	return &RecordSchema{Fields: out}
}

func (s *RecordSchema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Fields)
}

func (s *RecordSchema) FieldNames() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

func (s *RecordSchema) Field(name string) (SchemaField, bool) {
	if s == nil {
		return SchemaField{}, false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return SchemaField{}, false
}

// Append returns a new schema with extra fields added at the end. Fields whose
// name already exists are skipped.
func (s *RecordSchema) Append(fields ...SchemaField) *RecordSchema {
	var base []SchemaField
	if s != nil {
		base = append(base, s.Fields...)
	}
	for _, f := range fields {
		if _, exists := s.Field(f.Name); exists {
			continue
		}
		base = append(base, f)
	}
	return NewSchema(base...)
}

// Record is one row keyed by field name. Missing keys read as null.
type Record map[string]any
