package format

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/linkedin/goavro/v2"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

const KindAvro = "avro"

// AvroDescriptor reads Avro object container files; the schema comes from the
// file header.
type AvroDescriptor struct{}

func (AvroDescriptor) FormatKind() string { return KindAvro }

func init() {
	register(KindAvro, func() *AvroDescriptor { return &AvroDescriptor{} }, func(*AvroDescriptor) (FormatHandler, error) {
		return &AvroHandler{}, nil
	})
}

type AvroHandler struct{}

func (h *AvroHandler) InferSchema(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (*model.RecordSchema, error) {
	rc, ocf, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return AvroSchemaToRecordSchema(ocf.Codec().Schema())
}

func (h *AvroHandler) open(ctx context.Context, src storage.BlobSource, blob storage.BlobPath) (io.ReadCloser, *goavro.OCFReader, error) {
	rc, err := src.Open(ctx, blob)
	if err != nil {
		return nil, nil, err
	}
	ocf, err := goavro.NewOCFReader(rc)
	if err != nil {
		rc.Close()
		return nil, nil, fmt.Errorf("%s: failed to create OCF reader: %w", blob.URI, err)
	}
	return rc, ocf, nil
}

func (h *AvroHandler) CreateRecordSource(ctx context.Context, src storage.BlobSource, blob storage.BlobPath, schema *model.RecordSchema) (RecordSource, error) {
	rc, ocf, err := h.open(ctx, src, blob)
	if err != nil {
		return nil, err
	}
	if schema == nil {
		if schema, err = AvroSchemaToRecordSchema(ocf.Codec().Schema()); err != nil {
			rc.Close()
			return nil, err
		}
	}
	return &avroSource{rc: rc, ocf: ocf, fields: schema.Fields, blob: blob}, nil
}

type avroSource struct {
	rc     io.ReadCloser
	ocf    *goavro.OCFReader
	fields []model.SchemaField
	blob   storage.BlobPath
	cur    model.Record
	err    error
}

func (s *avroSource) Next() bool {
	s.cur = nil
	if s.rc == nil || s.err != nil {
		return false
	}
	if !s.ocf.Scan() {
		if err := s.ocf.Err(); err != nil {
			s.err = fmt.Errorf("%s: %w", s.blob.URI, err)
		}
		return false
	}
	datum, err := s.ocf.Read()
	if err != nil {
		s.err = fmt.Errorf("%s: failed to read avro record: %w", s.blob.URI, err)
		return false
	}
	m, ok := datum.(map[string]any)
	if !ok {
		s.err = fmt.Errorf("%s: avro datum is %T, want record", s.blob.URI, datum)
		return false
	}
	rec := make(model.Record, len(s.fields))
	for _, f := range s.fields {
		rec[f.Name] = normalizeValue(unwrapUnion(m[f.Name]), f.Type)
	}
	s.cur = rec
	return true
}

func (s *avroSource) Record() model.Record { return s.cur }

func (s *avroSource) Err() error { return s.err }

func (s *avroSource) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}

var avroBranchNames = map[string]bool{
	"boolean": true, "int": true, "long": true, "float": true,
	"double": true, "bytes": true, "string": true, "array": true, "map": true,
}

// unwrapUnion strips goavro's {"branch": value} union encoding. Branches are
// primitive names or dotted names such as "long.timestamp-millis".
func unwrapUnion(v any) any {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v
	}
	for branch, inner := range m {
		if avroBranchNames[branch] || strings.Contains(branch, ".") {
			return inner
		}
	}
	return v
}

// AvroSchemaToRecordSchema converts a record schema (as JSON) to columns.
//
//	boolean -> bool, int -> int, long -> bigint, float -> float, double -> double,
//	string/enum -> string, bytes -> binary, fixed -> binary(size),
//	["null", T] -> nullable T, complex types -> string (JSON text)
func AvroSchemaToRecordSchema(schemaJSON string) (*model.RecordSchema, error) {
	var root map[string]any
	if err := json.Unmarshal([]byte(schemaJSON), &root); err != nil {
		return nil, fmt.Errorf("invalid avro schema: %w", err)
	}
	if root["type"] != "record" {
		return nil, fmt.Errorf("avro schema must be a record, got %v", root["type"])
	}
	rawFields, _ := root["fields"].([]any)
	fields := make([]model.SchemaField, 0, len(rawFields))
	for _, rf := range rawFields {
		f, ok := rf.(map[string]any)
		if !ok {
			continue
		}
		name, _ := f["name"].(string)
		fields = append(fields, model.SchemaField{Name: name, Type: avroType(f["type"], false)})
	}
	return model.NewSchema(fields...), nil
}

func avroType(t any, nullable bool) model.DatabaseType {
	switch x := t.(type) {
	case string:
		return avroPrimitive(x, "", nullable)
	case []any:
		var branches []any
		hasNull := false
		for _, b := range x {
			if b == "null" {
				hasNull = true
				continue
			}
			branches = append(branches, b)
		}
		if len(branches) == 1 {
			return avroType(branches[0], nullable || hasNull)
		}
		return model.StringType(true, model.NotApplicable)
	case map[string]any:
		kind, _ := x["type"].(string)
		logical, _ := x["logicalType"].(string)
		switch kind {
		case "fixed":
			if logical == "decimal" {
				return model.DecimalType(nullable, intOf(x["precision"]), intOf(x["scale"]))
			}
			return model.BinaryType(nullable, intOf(x["size"]))
		case "enum":
			return model.StringType(nullable, model.NotApplicable)
		case "array", "map", "record":
			return model.StringType(nullable, model.NotApplicable)
		default:
			if logical == "decimal" {
				return model.DecimalType(nullable, intOf(x["precision"]), intOf(x["scale"]))
			}
			return avroPrimitive(kind, logical, nullable)
		}
	default:
		return model.StringType(true, model.NotApplicable)
	}
}

func avroPrimitive(kind, logical string, nullable bool) model.DatabaseType {
	switch kind {
	case "boolean":
		return model.NewType(model.KindBool, nullable)
	case "int":
		switch logical {
		case "date":
			return model.NewType(model.KindDate, nullable)
		case "time-millis":
			return model.NewType(model.KindTime, nullable)
		}
		return model.NewType(model.KindInt, nullable)
	case "long":
		switch logical {
		case "timestamp-millis", "timestamp-micros":
			return model.NewType(model.KindTimestampTZ, nullable)
		case "local-timestamp-millis", "local-timestamp-micros":
			return model.NewType(model.KindTimestamp, nullable)
		case "time-micros":
			return model.NewType(model.KindTime, nullable)
		}
		return model.NewType(model.KindBigInt, nullable)
	case "float":
		return model.NewType(model.KindFloat, nullable)
	case "double":
		return model.NewType(model.KindDouble, nullable)
	case "bytes":
		return model.BinaryType(nullable, model.NotApplicable)
	case "string":
		return model.StringType(nullable, model.NotApplicable)
	default:
		return model.StringType(true, model.NotApplicable)
	}
}

func intOf(v any) int {
	if f, ok := v.(float64); ok {
		return int(f)
	}
	return model.NotApplicable
}
