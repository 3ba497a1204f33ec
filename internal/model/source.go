package model

import "strings"

// StorageDescriptor describes where blobs live. Concrete kinds are provided by
// storage plugins and resolved through the storage registry.
type StorageDescriptor interface {
	StorageKind() string
}

// FormatDescriptor describes how the bytes of a blob are decoded.
type FormatDescriptor interface {
	FormatKind() string
}

// TableMappingDescriptor describes how a blob path is classified into a table.
type TableMappingDescriptor interface {
	MappingKind() string
}

type ConflictStrategy string

const (
	ConflictReject ConflictStrategy = "reject"
	ConflictUnion  ConflictStrategy = "union"
)

// ParseConflictStrategy accepts the strategy names case-insensitively.
func ParseConflictStrategy(s string) (ConflictStrategy, bool) {
	switch ConflictStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case ConflictReject:
		return ConflictReject, true
	case ConflictUnion:
		return ConflictUnion, true
	default:
		return "", false
	}
}

// ConflictResolution decides what happens when several readers produce the same
// table name. Rules are per raw table name; Default covers the rest.
type ConflictResolution struct {
	Default ConflictStrategy            `json:"default"`
	Rules   map[string]ConflictStrategy `json:"rules,omitempty"`
}

func DefaultConflictResolution() ConflictResolution {
	return ConflictResolution{Default: ConflictReject}
}

// DefaultStrategy returns Default, treating an unset value as reject.
func (c ConflictResolution) DefaultStrategy() ConflictStrategy {
	if c.Default == "" {
		return ConflictReject
	}
	return c.Default
}

// RuleFor returns the explicit rule for a table name, if any.
func (c ConflictResolution) RuleFor(table string) (ConflictStrategy, bool) {
	s, ok := c.Rules[table]
	return s, ok
}

type AttributeSource string

const (
	AttributeSourceRegex    AttributeSource = "regex"
	AttributeSourceConstant AttributeSource = "constant"
)

type AttributeType string

const (
	AttributeString    AttributeType = "string"
	AttributeInt       AttributeType = "int"
	AttributeLong      AttributeType = "long"
	AttributeFloat     AttributeType = "float"
	AttributeDouble    AttributeType = "double"
	AttributeBool      AttributeType = "bool"
	AttributeDate      AttributeType = "date"
	AttributeTimestamp AttributeType = "timestamp"
)

// ParseAttributeType accepts "boolean" as an alias of "bool".
func ParseAttributeType(s string) (AttributeType, bool) {
	switch t := AttributeType(strings.ToLower(strings.TrimSpace(s))); t {
	case AttributeString, AttributeInt, AttributeLong, AttributeFloat, AttributeDouble,
		AttributeBool, AttributeDate, AttributeTimestamp:
		return t, true
	case "boolean":
		return AttributeBool, true
	case "":
		return AttributeString, true
	default:
		return "", false
	}
}

// ColumnType is the schema type of an attribute column. Attribute columns are
// always nullable since extraction may fail.
func (t AttributeType) ColumnType() DatabaseType {
	switch t {
	case AttributeInt:
		return NewType(KindInt, true)
	case AttributeLong:
		return NewType(KindBigInt, true)
	case AttributeFloat:
		return NewType(KindFloat, true)
	case AttributeDouble:
		return NewType(KindDouble, true)
	case AttributeBool:
		return NewType(KindBool, true)
	case AttributeDate:
		return NewType(KindDate, true)
	case AttributeTimestamp:
		return NewType(KindTimestamp, true)
	default:
		return NewType(KindString, true)
	}
}

// TableAttributeDescriptor declares an extra column whose value comes from the
// blob path (regex) or is a constant.
type TableAttributeDescriptor struct {
	Name    string          `mapstructure:"name" json:"name" validate:"required"`
	Source  AttributeSource `mapstructure:"source" json:"source" validate:"required,oneof=regex constant"`
	Type    AttributeType   `mapstructure:"type" json:"type,omitempty"`
	Format  string          `mapstructure:"format" json:"format,omitempty"`
	Pattern string          `mapstructure:"pattern" json:"pattern,omitempty"`
	Group   string          `mapstructure:"group" json:"group,omitempty"`
	Value   *string         `mapstructure:"value" json:"value,omitempty"`
}

// TableDescriptor bundles a table mapping with optional attribute columns.
type TableDescriptor struct {
	Mapping    TableMappingDescriptor     `json:"mapping"`
	Attributes []TableAttributeDescriptor `json:"attributes,omitempty"`
}

// ReaderDescriptor binds a format to a table mapping. Type is a free-form label
// used in diagnostics, Label disambiguates colliding table names.
type ReaderDescriptor struct {
	Type   string           `json:"type"`
	Label  string           `json:"label,omitempty"`
	Format FormatDescriptor `json:"format"`
	Table  *TableDescriptor `json:"table,omitempty"`
}

// SourceDescriptor is the declarative description of one logical source.
type SourceDescriptor struct {
	Name      string             `json:"name"`
	Storage   StorageDescriptor  `json:"storage"`
	Table     *TableDescriptor   `json:"table,omitempty"`
	Readers   []ReaderDescriptor `json:"readers"`
	Conflicts ConflictResolution `json:"conflicts"`
}

// EffectiveTable returns the reader-level table if present, otherwise the
// source-level default. The reader-level table replaces the default wholesale.
func (s SourceDescriptor) EffectiveTable(reader ReaderDescriptor) *TableDescriptor {
	if reader.Table != nil {
		return reader.Table
	}
	return s.Table
}
