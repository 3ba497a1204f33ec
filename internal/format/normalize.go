package format

import (
	"encoding/json"
	"time"

	"nexus-catalog/internal/model"
)

// normalizeValue converts a decoded value (JSON, Avro, Parquet) to the Go type
// that matches the column type. Nested values become JSON text.
func normalizeValue(v any, t model.DatabaseType) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		switch t.Kind {
		case model.KindTinyInt, model.KindSmallInt, model.KindInt, model.KindBigInt:
			if n, err := x.Int64(); err == nil {
				return n
			}
			if f, err := x.Float64(); err == nil {
				return int64(f)
			}
			return nil
		case model.KindFloat, model.KindDouble:
			f, err := x.Float64()
			if err != nil {
				return nil
			}
			return f
		case model.KindString:
			return x.String()
		default:
			return normalizeValue(x.String(), t)
		}
	case string:
		switch t.Kind {
		case model.KindString:
			return x
		case model.KindBinary:
			return []byte(x)
		default:
			return convertText(x, t)
		}
	case []byte:
		if t.Kind == model.KindString {
			return string(x)
		}
		return x
	case time.Time, bool, int8, int16, int32, int64, int, float32, float64:
		return x
	case map[string]any, []any:
		if t.Kind == model.KindString {
			b, err := json.Marshal(x)
			if err != nil {
				return nil
			}
			return string(b)
		}
		return x
	default:
		return x
	}
}
