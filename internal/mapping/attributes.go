package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const (
	defaultDateLayout      = "2006-01-02"
	defaultTimestampLayout = "2006-01-02T15:04:05"
)

// AttributeExtractor derives extra column values for a blob, either from a
// regex group over the blob path or from a constant. Values that cannot be
// extracted or coerced are nil.
type AttributeExtractor struct {
	attrs   []model.TableAttributeDescriptor
	regexes []*regexp.Regexp
}

func NewAttributeExtractor(attrs []model.TableAttributeDescriptor) (*AttributeExtractor, error) {
	e := &AttributeExtractor{
		attrs:   append([]model.TableAttributeDescriptor(nil), attrs...),
		regexes: make([]*regexp.Regexp, len(attrs)),
	}
	for i, a := range attrs {
		if a.Source != model.AttributeSourceRegex || strings.TrimSpace(a.Pattern) == "" {
			continue
		}
		re, err := regexp.Compile(a.Pattern)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: invalid regex pattern: %w", a.Name, err)
		}
		e.regexes[i] = re
	}
	return e, nil
}

func (e *AttributeExtractor) Attributes() []model.TableAttributeDescriptor {
	return e.attrs
}

// SchemaFields returns one nullable field per attribute, indexed from startIndex.
func (e *AttributeExtractor) SchemaFields(startIndex int) []model.SchemaField {
	fields := make([]model.SchemaField, len(e.attrs))
	for i, a := range e.attrs {
		fields[i] = model.SchemaField{Name: a.Name, Index: startIndex + i, Type: a.Type.ColumnType()}
	}
	return fields
}

// Extract returns the attribute values for a blob keyed by attribute name.
func (e *AttributeExtractor) Extract(blob storage.BlobPath) map[string]any {
	out := make(map[string]any, len(e.attrs))
	p := blob.Path()
	for i, a := range e.attrs {
		switch a.Source {
		case model.AttributeSourceConstant:
			out[a.Name] = Coerce(a.Value, a.Type, a.Format)
		case model.AttributeSourceRegex:
			out[a.Name] = e.extractRegex(i, p)
		default:
			out[a.Name] = nil
		}
	}
	return out
}

func (e *AttributeExtractor) extractRegex(i int, p string) any {
	re := e.regexes[i]
	if re == nil {
		return nil
	}
	a := e.attrs[i]
	idx := re.SubexpIndex(a.Group)
	if idx < 0 {
		return nil
	}
	m := re.FindStringSubmatch(p)
	if m == nil || idx >= len(m) {
		return nil
	}
	v := m[idx]
	return Coerce(&v, a.Type, a.Format)
}

// Coerce converts a raw string to the attribute type; nil when it cannot.
func Coerce(value *string, t model.AttributeType, format string) any {
	if value == nil {
		return nil
	}
	v := *value
	switch t {
	case model.AttributeString, "":
		return v
	case model.AttributeInt:
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return nil
		}
		return int32(n)
	case model.AttributeLong:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case model.AttributeFloat:
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil
		}
		return float32(f)
	case model.AttributeDouble:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		return f
	case model.AttributeBool:
		switch v {
		case "true":
			return true
		case "false":
			return false
		}
		return nil
	case model.AttributeDate:
		ts, err := time.Parse(Layout(format, defaultDateLayout), v)
		if err != nil {
			return nil
		}
		return ts
	case model.AttributeTimestamp:
		ts, err := time.Parse(Layout(format, defaultTimestampLayout), v)
		if err != nil {
			return nil
		}
		return ts
	default:
		return nil
	}
}

var dateTokens = []struct{ pattern, layout string }{
	{"yyyy", "2006"},
	{"yy", "06"},
	{"MM", "01"},
	{"dd", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
	{"SSS", "000"},
}

// Layout turns a date pattern such as "yyyy-MM-dd'T'HH:mm:ss" into a Go time
// layout. Formats that already look like Go layouts are returned as is.
func Layout(format, fallback string) string {
	if format == "" {
		return fallback
	}
	if strings.Contains(format, "2006") {
		return format
	}
	var sb strings.Builder
	for i := 0; i < len(format); {
		if format[i] == '\'' {
			end := strings.IndexByte(format[i+1:], '\'')
			if end < 0 {
				sb.WriteString(format[i+1:])
				break
			}
			sb.WriteString(format[i+1 : i+1+end])
			i += end + 2
			continue
		}
		matched := false
		for _, tok := range dateTokens {
			if strings.HasPrefix(format[i:], tok.pattern) {
				sb.WriteString(tok.layout)
				i += len(tok.pattern)
				matched = true
				break
			}
		}
		if !matched {
			sb.WriteByte(format[i])
			i++
		}
	}
	return sb.String()
}

// CheckLayout reports date patterns that Layout cannot translate faithfully.
func CheckLayout(format string) error {
	if strings.Contains(format, "2006") {
		return nil
	}
	if strings.Count(format, "'")%2 != 0 {
		return fmt.Errorf("unterminated quote in %q", format)
	}
	return nil
}
