package mapping

import (
	"fmt"
	"regexp"

	"nexus-catalog/internal/storage"
)

const (
	KindRegex             = "regex"
	DefaultTableNameGroup = "table"
)

// RegexDescriptor maps blobs whose path matches Pattern; the table name is the
// value of the named group TableNameGroup.
type RegexDescriptor struct {
	Pattern        string `mapstructure:"pattern" json:"pattern" validate:"required"`
	TableNameGroup string `mapstructure:"tableNameGroup" json:"tableNameGroup,omitempty"`
}

func (RegexDescriptor) MappingKind() string { return KindRegex }

type RegexMapper struct {
	re    *regexp.Regexp
	group int
}

func NewRegexMapper(pattern, group string) (*RegexMapper, error) {
	if group == "" {
		group = DefaultTableNameGroup
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	idx := re.SubexpIndex(group)
	if idx < 0 {
		return nil, fmt.Errorf("regex pattern %q does not contain named group %q", pattern, group)
	}
	return &RegexMapper{re: re, group: idx}, nil
}

func (m *RegexMapper) MapToTable(blob storage.BlobPath) (*TableMapping, error) {
	match := m.re.FindStringSubmatch(blob.Path())
	if match == nil || match[m.group] == "" {
		return nil, nil
	}
	return &TableMapping{TableName: match[m.group], PartitionValues: namedGroups(m.re, match, m.group)}, nil
}

// namedGroups collects the non-empty named groups other than skip.
func namedGroups(re *regexp.Regexp, match []string, skip int) map[string]string {
	var out map[string]string
	for i, name := range re.SubexpNames() {
		if i == 0 || i == skip || name == "" || match[i] == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[name] = match[i]
	}
	return out
}

// NamedGroups lists the named groups of a pattern, in order.
func NamedGroups(re *regexp.Regexp) []string {
	var names []string
	for _, n := range re.SubexpNames() {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}
