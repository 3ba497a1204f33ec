// Package descriptor reads and writes source descriptors as YAML or JSON.
//
// Plugin descriptors are tagged unions: a "type" key picks the registered
// kind and the remaining keys are decoded into that kind's descriptor. A
// reader's "type" doubles as its format kind unless the format block names
// its own.
//
//	name: warehouse
//	storage:
//	  type: local
//	  rootPath: /data/warehouse
//	table:
//	  mapping:
//	    type: directory
//	conflicts: union
//	readers:
//	  - type: csv
//	    format:
//	      delimiter: ";"
package descriptor

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
	"nexus-catalog/internal/storage"
)

const typeKey = "type"

// Codec converts between descriptor documents and model.SourceDescriptor,
// resolving kinds against its registries.
type Codec struct {
	storages *storage.Registry
	formats  *format.Registry
	mappers  *mapping.Registry
}

func New(storages *storage.Registry, formats *format.Registry, mappers *mapping.Registry) *Codec {
	return &Codec{storages: storages, formats: formats, mappers: mappers}
}

// Default resolves kinds against the process-wide registries.
func Default() *Codec {
	return New(storage.DefaultRegistry(), format.DefaultRegistry(), mapping.DefaultRegistry())
}

func Decode(data []byte) (model.SourceDescriptor, error) { return Default().Decode(data) }

func DecodeFile(path string) (model.SourceDescriptor, error) { return Default().DecodeFile(path) }

func Encode(desc model.SourceDescriptor) ([]byte, error) { return Default().Encode(desc) }

func EncodeJSON(desc model.SourceDescriptor) ([]byte, error) { return Default().EncodeJSON(desc) }

func (c *Codec) DecodeFile(path string) (model.SourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.SourceDescriptor{}, fmt.Errorf("failed to read descriptor: %w", err)
	}
	desc, err := c.Decode(data)
	if err != nil {
		return model.SourceDescriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// Decode parses a YAML or JSON document.
func (c *Codec) Decode(data []byte) (model.SourceDescriptor, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return model.SourceDescriptor{}, fmt.Errorf("invalid descriptor document: %w", err)
	}
	if doc == nil {
		return model.SourceDescriptor{}, fmt.Errorf("descriptor document is empty")
	}
	root, err := asMap(doc, "descriptor")
	if err != nil {
		return model.SourceDescriptor{}, err
	}
	return c.source(root)
}

func (c *Codec) source(root map[string]any) (model.SourceDescriptor, error) {
	desc := model.SourceDescriptor{Conflicts: model.DefaultConflictResolution()}
	if err := onlyKeys(root, "descriptor", "name", "storage", "table", "readers", "conflicts"); err != nil {
		return desc, err
	}

	var err error
	if desc.Name, err = asString(root["name"], "name"); err != nil {
		return desc, err
	}

	if raw, ok := root["storage"]; ok && raw != nil {
		m, err := asMap(raw, "storage")
		if err != nil {
			return desc, err
		}
		kind, err := kindOf(m, "storage")
		if err != nil {
			return desc, err
		}
		if desc.Storage, err = decodeTagged(c.storages, kind, m); err != nil {
			return desc, fmt.Errorf("storage: %w", err)
		}
	}

	if raw, ok := root["table"]; ok && raw != nil {
		if desc.Table, err = c.table(raw, "table"); err != nil {
			return desc, err
		}
	}

	if raw, ok := root["readers"]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return desc, fmt.Errorf("readers: expected a list, got %T", raw)
		}
		for i, item := range list {
			reader, err := c.reader(item, fmt.Sprintf("readers[%d]", i))
			if err != nil {
				return desc, err
			}
			desc.Readers = append(desc.Readers, reader)
		}
	}

	if raw, ok := root["conflicts"]; ok && raw != nil {
		if desc.Conflicts, err = conflicts(raw); err != nil {
			return desc, err
		}
	}
	return desc, nil
}

func (c *Codec) reader(raw any, where string) (model.ReaderDescriptor, error) {
	var reader model.ReaderDescriptor
	m, err := asMap(raw, where)
	if err != nil {
		return reader, err
	}
	if err := onlyKeys(m, where, typeKey, "label", "format", "table"); err != nil {
		return reader, err
	}
	if reader.Type, err = asString(m[typeKey], where+".type"); err != nil {
		return reader, err
	}
	if reader.Label, err = asString(m["label"], where+".label"); err != nil {
		return reader, err
	}

	body := map[string]any{}
	if f, ok := m["format"]; ok && f != nil {
		if body, err = asMap(f, where+".format"); err != nil {
			return reader, err
		}
	}
	kind := reader.Type
	if k, ok := body[typeKey]; ok {
		if kind, err = asString(k, where+".format.type"); err != nil {
			return reader, err
		}
	}
	if kind == "" {
		return reader, fmt.Errorf("%s: missing 'type'", where)
	}
	if reader.Format, err = decodeTagged(c.formats, kind, body); err != nil {
		return reader, fmt.Errorf("%s.format: %w", where, err)
	}

	if t, ok := m["table"]; ok && t != nil {
		if reader.Table, err = c.table(t, where+".table"); err != nil {
			return reader, err
		}
	}
	return reader, nil
}

func (c *Codec) table(raw any, where string) (*model.TableDescriptor, error) {
	m, err := asMap(raw, where)
	if err != nil {
		return nil, err
	}
	if err := onlyKeys(m, where, "mapping", "attributes"); err != nil {
		return nil, err
	}
	table := &model.TableDescriptor{}

	mm, err := asMap(m["mapping"], where+".mapping")
	if err != nil {
		return nil, err
	}
	kind, err := kindOf(mm, where+".mapping")
	if err != nil {
		return nil, err
	}
	if table.Mapping, err = decodeTagged(c.mappers, kind, mm); err != nil {
		return nil, fmt.Errorf("%s.mapping: %w", where, err)
	}

	if attrs, ok := m["attributes"]; ok && attrs != nil {
		if err := decodeInto(attrs, &table.Attributes); err != nil {
			return nil, fmt.Errorf("%s.attributes: %w", where, err)
		}
		for i := range table.Attributes {
			normalizeAttribute(&table.Attributes[i])
		}
	}
	return table, nil
}

// normalizeAttribute lower-cases enum values. Unknown types are kept so the
// verifier can report them.
func normalizeAttribute(a *model.TableAttributeDescriptor) {
	a.Source = model.AttributeSource(strings.ToLower(strings.TrimSpace(string(a.Source))))
	if t, ok := model.ParseAttributeType(string(a.Type)); ok {
		a.Type = t
	} else {
		a.Type = model.AttributeType(strings.ToLower(string(a.Type)))
	}
}

// conflicts accepts either a strategy name or a map of "default" plus
// per-table rules.
func conflicts(raw any) (model.ConflictResolution, error) {
	cr := model.DefaultConflictResolution()
	if s, ok := raw.(string); ok {
		strategy, ok := model.ParseConflictStrategy(s)
		if !ok {
			return cr, fmt.Errorf("conflicts: unknown strategy %q (expected reject or union)", s)
		}
		cr.Default = strategy
		return cr, nil
	}
	m, err := asMap(raw, "conflicts")
	if err != nil {
		return cr, err
	}
	for key, v := range m {
		name, err := asString(v, "conflicts."+key)
		if err != nil {
			return cr, err
		}
		strategy, ok := model.ParseConflictStrategy(name)
		if !ok {
			return cr, fmt.Errorf("conflicts.%s: unknown strategy %q (expected reject or union)", key, name)
		}
		if key == "default" {
			cr.Default = strategy
			continue
		}
		if cr.Rules == nil {
			cr.Rules = make(map[string]model.ConflictStrategy)
		}
		cr.Rules[key] = strategy
	}
	return cr, nil
}

func decodeTagged[D any, C any](reg *registry.Registry[D, C], kind string, raw map[string]any) (D, error) {
	d, err := reg.NewDescriptor(kind)
	if err != nil {
		return d, err
	}
	body := make(map[string]any, len(raw))
	for k, v := range raw {
		if k != typeKey {
			body[k] = v
		}
	}
	if err := decodeInto(body, any(d)); err != nil {
		var zero D
		return zero, fmt.Errorf("%s %q: %w", reg.Family(), kind, err)
	}
	return d, nil
}

func decodeInto(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func kindOf(m map[string]any, where string) (string, error) {
	kind, err := asString(m[typeKey], where+".type")
	if err != nil {
		return "", err
	}
	if kind == "" {
		return "", fmt.Errorf("%s: missing 'type'", where)
	}
	return kind, nil
}

// asMap accepts both map shapes yaml.v3 produces.
func asMap(v any, where string) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%s: missing", where)
	default:
		return nil, fmt.Errorf("%s: expected a mapping, got %T", where, v)
	}
}

func asString(v any, where string) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case int, int64, float64, bool:
		return fmt.Sprint(s), nil
	default:
		return "", fmt.Errorf("%s: expected a string, got %T", where, v)
	}
}

func onlyKeys(m map[string]any, where string, allowed ...string) error {
	var unknown []string
	for k := range m {
		found := false
		for _, a := range allowed {
			if k == a {
				found = true
				break
			}
		}
		if !found {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%s: unknown field(s) %s", where, strings.Join(unknown, ", "))
}

// Encode renders desc as YAML with a stable key order.
func (c *Codec) Encode(desc model.SourceDescriptor) ([]byte, error) {
	doc, err := c.document(desc)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

func (c *Codec) EncodeJSON(desc model.SourceDescriptor) ([]byte, error) {
	doc, err := c.document(desc)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

func (c *Codec) document(desc model.SourceDescriptor) (orderedMap, error) {
	doc := orderedMap{{"name", desc.Name}}
	if desc.Storage != nil {
		body, err := tagged(storage.KindOf(desc.Storage), desc.Storage)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		doc = append(doc, entry{"storage", body})
	}
	if desc.Table != nil {
		t, err := encodeTable(*desc.Table)
		if err != nil {
			return nil, fmt.Errorf("table: %w", err)
		}
		doc = append(doc, entry{"table", t})
	}
	if cr := encodeConflicts(desc.Conflicts); cr != nil {
		doc = append(doc, entry{"conflicts", cr})
	}

	readers := make([]orderedMap, 0, len(desc.Readers))
	for i, r := range desc.Readers {
		out := orderedMap{{typeKey, r.Type}}
		if r.Label != "" {
			out = append(out, entry{"label", r.Label})
		}
		if r.Format != nil {
			kind := format.KindOf(r.Format)
			body, err := tagged(kind, r.Format)
			if err != nil {
				return nil, fmt.Errorf("readers[%d].format: %w", i, err)
			}
			if kind == r.Type {
				body = body[1:]
			}
			if len(body) > 0 {
				out = append(out, entry{"format", body})
			}
		}
		if r.Table != nil {
			t, err := encodeTable(*r.Table)
			if err != nil {
				return nil, fmt.Errorf("readers[%d].table: %w", i, err)
			}
			out = append(out, entry{"table", t})
		}
		readers = append(readers, out)
	}
	doc = append(doc, entry{"readers", readers})
	return doc, nil
}

func encodeTable(t model.TableDescriptor) (orderedMap, error) {
	out := orderedMap{}
	if t.Mapping != nil {
		m, err := tagged(mapping.KindOf(t.Mapping), t.Mapping)
		if err != nil {
			return nil, err
		}
		out = append(out, entry{"mapping", m})
	}
	if len(t.Attributes) > 0 {
		attrs, err := plain(t.Attributes)
		if err != nil {
			return nil, err
		}
		out = append(out, entry{"attributes", attrs})
	}
	return out, nil
}

func encodeConflicts(c model.ConflictResolution) any {
	if len(c.Rules) == 0 {
		if c.DefaultStrategy() == model.ConflictReject {
			return nil
		}
		return string(c.DefaultStrategy())
	}
	out := orderedMap{{"default", string(c.DefaultStrategy())}}
	tables := make([]string, 0, len(c.Rules))
	for t := range c.Rules {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		out = append(out, entry{t, string(c.Rules[t])})
	}
	return out
}

// plain converts v to maps and slices through its json tags.
func plain(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(data, &out)
	return out, err
}

// tagged flattens a plugin descriptor through its json tags and puts the
// type key first.
func tagged(kind string, d any) (orderedMap, error) {
	v, err := plain(d)
	if err != nil {
		return nil, err
	}
	fields, _ := v.(map[string]any)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := orderedMap{{typeKey, kind}}
	for _, k := range keys {
		out = append(out, entry{k, fields[k]})
	}
	return out, nil
}
