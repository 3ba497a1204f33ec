package format

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"nexus-catalog/internal/model"
)

var (
	datePattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateTimePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)

	timestampLayouts = []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
	}
)

// DefaultNullValues are the text tokens read as null when a descriptor does
// not configure its own.
var DefaultNullValues = []string{"", "NULL", "null", "NA", "N/A", "nil"}

// detectValueKind classifies one non-null text value.
func detectValueKind(value string) model.TypeKind {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return model.KindBigInt
	}
	if _, err := strconv.ParseFloat(value, 64); err == nil {
		return model.KindDouble
	}
	if l := strings.ToLower(value); l == "true" || l == "false" {
		return model.KindBool
	}
	if datePattern.MatchString(value) {
		if _, err := time.Parse("2006-01-02", value); err == nil {
			return model.KindDate
		}
	}
	if dateTimePattern.MatchString(value) {
		if _, err := parseTimestamp(value); err == nil {
			return model.KindTimestamp
		}
	}
	return model.KindString
}

// columnDetector accumulates the kinds seen in one text column.
type columnDetector struct {
	kinds map[model.TypeKind]int
}

func (c *columnDetector) observe(value string) {
	if c.kinds == nil {
		c.kinds = make(map[model.TypeKind]int)
	}
	c.kinds[detectValueKind(value)]++
}

// kind is the narrowest kind every observed value fits. Integers widen to
// double; any other mix falls back to string.
func (c *columnDetector) kind() model.TypeKind {
	switch len(c.kinds) {
	case 0:
		return model.KindString
	case 1:
		for k := range c.kinds {
			return k
		}
	case 2:
		if c.kinds[model.KindBigInt] > 0 && c.kinds[model.KindDouble] > 0 {
			return model.KindDouble
		}
	}
	return model.KindString
}

func parseTimestamp(value string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		var ts time.Time
		if ts, err = time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

// convertText parses a text value according to the column type. Values that do
// not parse are returned as nil.
func convertText(raw string, t model.DatabaseType) any {
	switch t.Kind {
	case model.KindString, "":
		return raw
	case model.KindBool:
		b, err := strconv.ParseBool(strings.ToLower(raw))
		if err != nil {
			return nil
		}
		return b
	case model.KindTinyInt, model.KindSmallInt, model.KindInt, model.KindBigInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil
		}
		return n
	case model.KindFloat, model.KindDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil
		}
		return f
	case model.KindDate:
		d, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
		if err != nil {
			return nil
		}
		return d
	case model.KindTimestamp, model.KindTimestampTZ:
		ts, err := parseTimestamp(strings.TrimSpace(raw))
		if err != nil {
			return nil
		}
		return ts
	default:
		return raw
	}
}

type nullSet map[string]struct{}

func newNullSet(values []string) nullSet {
	if values == nil {
		values = DefaultNullValues
	}
	s := make(nullSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (n nullSet) isNull(v string) bool {
	_, ok := n[v]
	return ok
}
