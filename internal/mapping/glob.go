package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"nexus-catalog/internal/storage"
)

const KindGlob = "glob"

// GlobDescriptor assigns the fixed TableName to every blob whose path matches
// the glob Pattern.
type GlobDescriptor struct {
	Pattern   string `mapstructure:"pattern" json:"pattern" validate:"required"`
	TableName string `mapstructure:"tableName" json:"tableName" validate:"required"`
}

func (GlobDescriptor) MappingKind() string { return KindGlob }

type GlobMapper struct {
	re        *regexp.Regexp
	tableName string
}

func NewGlobMapper(pattern, tableName string) (*GlobMapper, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("glob pattern must not be blank")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, fmt.Errorf("glob mapping requires a table name")
	}
	re, err := GlobToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	return &GlobMapper{re: re, tableName: tableName}, nil
}

func (m *GlobMapper) MapToTable(blob storage.BlobPath) (*TableMapping, error) {
	if !m.re.MatchString(blob.Path()) {
		return nil, nil
	}
	return &TableMapping{TableName: m.tableName}, nil
}

// GlobToRegexp translates a glob into a regexp anchored at a "/" boundary (or
// the start) and at the end of the path.
//
//	**/    zero or more directories
//	**     anything, across separators
//	*      anything within one segment
//	?      one character within a segment
//	{a,b}  alternatives
//	[abc]  character class, [!abc] negated
func GlobToRegexp(glob string) (*regexp.Regexp, error) {
	var sb strings.Builder
	for i := 0; i < len(glob); {
		c := glob[i]
		switch {
		case c == '*' && i+1 < len(glob) && glob[i+1] == '*':
			if i+2 < len(glob) && glob[i+2] == '/' {
				sb.WriteString("(?:.*/)?")
				i += 3
			} else {
				sb.WriteString(".*")
				i += 2
			}
		case c == '*':
			sb.WriteString("[^/]*")
			i++
		case c == '?':
			sb.WriteString("[^/]")
			i++
		case c == '{':
			end := strings.IndexByte(glob[i:], '}')
			if end <= 0 {
				sb.WriteString(`\{`)
				i++
				continue
			}
			alts := strings.Split(glob[i+1:i+end], ",")
			for j, a := range alts {
				alts[j] = regexp.QuoteMeta(a)
			}
			sb.WriteString("(?:" + strings.Join(alts, "|") + ")")
			i += end + 1
		case c == '[':
			end := strings.IndexByte(glob[i:], ']')
			if end <= 0 {
				sb.WriteString(`\[`)
				i++
				continue
			}
			class := glob[i : i+end+1]
			if strings.HasPrefix(class, "[!") {
				class = "[^" + class[2:]
			}
			sb.WriteString(class)
			i += end + 1
		case strings.IndexByte(`\^$.|+()`, c) >= 0:
			sb.WriteByte('\\')
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	re, err := regexp.Compile("(?:^|/)" + sb.String() + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", glob, err)
	}
	return re, nil
}
