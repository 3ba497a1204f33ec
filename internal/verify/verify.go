// Package verify checks source descriptors before anything is materialized.
// Checks never stop at the first problem: every finding becomes an issue in
// the returned report.
package verify

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"nexus-catalog/internal/discovery"
	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

// Verifier runs static checks against the plugin registries it was built with.
type Verifier struct {
	storages *storage.Registry
	formats  *format.Registry
	mappers  *mapping.Registry
	validate *validator.Validate
}

func New(storages *storage.Registry, formats *format.Registry, mappers *mapping.Registry) *Verifier {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Verifier{storages: storages, formats: formats, mappers: mappers, validate: v}
}

// Default verifies against the process-wide registries.
func Default() *Verifier {
	return New(storage.DefaultRegistry(), format.DefaultRegistry(), mapping.DefaultRegistry())
}

// Descriptor statically checks a source descriptor. Nothing is opened or
// listed.
func (v *Verifier) Descriptor(desc model.SourceDescriptor) model.VerificationReport {
	var r report

	if strings.TrimSpace(desc.Name) == "" {
		r.errorf(model.PhaseDescriptor, nil, "Source name must not be blank")
	}
	v.storage(&r, desc.Storage)

	if desc.Table != nil {
		v.table(&r, *desc.Table, "source table")
	}
	if len(desc.Readers) == 0 {
		r.errorf(model.PhaseDescriptor, nil, "Source '%s' defines no readers", desc.Name)
	}

	labels := make(map[string]int)
	for i, reader := range desc.Readers {
		ctx := map[string]string{"readerIndex": strconv.Itoa(i), "readerType": reader.Type}
		where := fmt.Sprintf("reader[%d]", i)
		if strings.TrimSpace(reader.Type) == "" {
			r.errorf(model.PhaseReader, ctx, "Reader[%d]: type must not be blank", i)
		}
		if reader.Label != "" {
			if first, dup := labels[reader.Label]; dup {
				r.warnf(model.PhaseDescriptor, ctx,
					"Duplicate reader label '%s' on reader[%d] and reader[%d]: table names may collide", reader.Label, first, i)
			} else {
				labels[reader.Label] = i
			}
		}
		v.format(&r, reader.Format, ctx)
		switch {
		case reader.Table != nil:
			v.table(&r, *reader.Table, where)
		case desc.Table == nil:
			r.errorf(model.PhaseDescriptor, ctx,
				"Reader[%d] (%s) has no table mapping and the source defines no default table", i, reader.Type)
		}
	}

	tables := make([]string, 0, len(desc.Conflicts.Rules))
	for table := range desc.Conflicts.Rules {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	for _, table := range tables {
		strategy := desc.Conflicts.Rules[table]
		if _, ok := model.ParseConflictStrategy(string(strategy)); !ok {
			r.errorf(model.PhaseConflict, map[string]string{"tableName": table},
				"Conflict rule for table '%s' has unknown strategy '%s'", table, strategy)
		}
	}
	if d := desc.Conflicts.Default; d != "" {
		if _, ok := model.ParseConflictStrategy(string(d)); !ok {
			r.errorf(model.PhaseConflict, nil, "Unknown default conflict strategy '%s'", d)
		}
	}
	return r.VerificationReport
}

func (v *Verifier) storage(r *report, d model.StorageDescriptor) {
	if d == nil {
		r.errorf(model.PhaseStorage, nil, "Storage must be defined")
		return
	}
	kind := storage.KindOf(d)
	if !v.storages.IsSupported(kind) {
		r.errorf(model.PhaseStorage, nil, "Unknown storage type '%s' (available: %s)", kind, strings.Join(v.storages.Kinds(), ", "))
		return
	}
	v.fields(r, d, model.PhaseStorage, nil, "storage '"+kind+"'")
}

func (v *Verifier) format(r *report, d model.FormatDescriptor, ctx map[string]string) {
	if d == nil {
		r.errorf(model.PhaseReader, ctx, "Reader[%s]: format must be defined", ctx["readerIndex"])
		return
	}
	kind := format.KindOf(d)
	if !v.formats.IsSupported(kind) {
		r.errorf(model.PhaseReader, ctx, "Unknown format type '%s' (available: %s)", kind, strings.Join(v.formats.Kinds(), ", "))
		return
	}
	v.fields(r, d, model.PhaseReader, ctx, "format '"+kind+"'")
}

func (v *Verifier) table(r *report, t model.TableDescriptor, where string) {
	if t.Mapping == nil {
		r.errorf(model.PhaseTableMapping, nil, "%s: table mapping must be defined", where)
	} else {
		v.mapping(r, t.Mapping, where)
	}

	names := make(map[string]bool)
	for _, a := range t.Attributes {
		if a.Name != "" && names[a.Name] {
			r.errorf(model.PhaseDescriptor, nil, "%s: Duplicate table attribute name '%s'", where, a.Name)
		}
		names[a.Name] = true
		for _, msg := range Attribute(a) {
			r.errorf(model.PhaseDescriptor, nil, "%s: %s", where, msg)
		}
	}
}

func (v *Verifier) mapping(r *report, d model.TableMappingDescriptor, where string) {
	kind := mapping.KindOf(d)
	if !v.mappers.IsSupported(kind) {
		r.errorf(model.PhaseTableMapping, nil, "%s: unknown table mapping type '%s' (available: %s)",
			where, kind, strings.Join(v.mappers.Kinds(), ", "))
		return
	}
	msgs := Mapping(d)
	for _, msg := range msgs {
		r.errorf(model.PhaseTableMapping, nil, "%s: %s", where, msg)
	}
	if len(msgs) == 0 {
		v.fields(r, d, model.PhaseTableMapping, nil, where+" mapping '"+kind+"'")
	}
}

// fields runs the struct-tag rules of a plugin descriptor.
func (v *Verifier) fields(r *report, d any, phase model.Phase, ctx map[string]string, what string) {
	err := v.validate.Struct(d)
	if err == nil {
		return
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		r.errorf(phase, ctx, "%s: %v", what, err)
		return
	}
	for _, fe := range fieldErrs {
		r.errorf(phase, ctx, "%s: field '%s' %s", what, fieldPath(fe), describeRule(fe))
	}
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "gtfield":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	default:
		return fmt.Sprintf("failed '%s' validation", fe.Tag())
	}
}

// Mapping checks the bundled mapping kinds beyond what their tags express.
func Mapping(d model.TableMappingDescriptor) []string {
	var msgs []string
	switch m := d.(type) {
	case *mapping.RegexDescriptor:
		msgs = regexMapping(m.Pattern, m.TableNameGroup)
	case mapping.RegexDescriptor:
		msgs = regexMapping(m.Pattern, m.TableNameGroup)
	case *mapping.DirectoryDescriptor:
		msgs = directoryMapping(m.Depth)
	case mapping.DirectoryDescriptor:
		msgs = directoryMapping(m.Depth)
	case *mapping.GlobDescriptor:
		msgs = globMapping(m.Pattern, m.TableName)
	case mapping.GlobDescriptor:
		msgs = globMapping(m.Pattern, m.TableName)
	}
	return msgs
}

func regexMapping(pattern, group string) []string {
	if strings.TrimSpace(pattern) == "" {
		return []string{"regex pattern must not be blank"}
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return []string{fmt.Sprintf("Invalid regex pattern '%s': %v", pattern, err)}
	}
	if group == "" {
		group = mapping.DefaultTableNameGroup
	}
	if re.SubexpIndex(group) < 0 {
		return []string{fmt.Sprintf("regex pattern '%s' has no named group '%s'", pattern, group)}
	}
	return nil
}

func directoryMapping(depth int) []string {
	if depth < 1 {
		return []string{fmt.Sprintf("directory depth must be at least 1, got %d", depth)}
	}
	return nil
}

func globMapping(pattern, table string) []string {
	var msgs []string
	if strings.TrimSpace(pattern) == "" {
		msgs = append(msgs, "glob pattern must not be blank")
	} else if _, err := mapping.GlobToRegexp(pattern); err != nil {
		msgs = append(msgs, fmt.Sprintf("Invalid glob pattern '%s': %v", pattern, err))
	}
	if strings.TrimSpace(table) == "" {
		msgs = append(msgs, "glob mapping table name must not be blank")
	}
	return msgs
}

// Attribute checks one attribute declaration and returns the problems found.
func Attribute(a model.TableAttributeDescriptor) []string {
	var msgs []string
	label := a.Name
	if strings.TrimSpace(a.Name) == "" {
		msgs = append(msgs, "attribute name must not be blank")
		label = "?"
	}
	t, ok := model.ParseAttributeType(string(a.Type))
	if !ok {
		msgs = append(msgs, fmt.Sprintf("attribute '%s': unknown type '%s'", label, a.Type))
	}

	switch a.Source {
	case model.AttributeSourceRegex:
		switch {
		case strings.TrimSpace(a.Pattern) == "":
			msgs = append(msgs, fmt.Sprintf("attribute '%s': regex source requires a pattern", label))
		case strings.TrimSpace(a.Group) == "":
			msgs = append(msgs, fmt.Sprintf("attribute '%s': regex source requires a group", label))
		default:
			re, err := regexp.Compile(a.Pattern)
			if err != nil {
				msgs = append(msgs, fmt.Sprintf("attribute '%s': Invalid regex pattern: %v", label, err))
			} else if re.SubexpIndex(a.Group) < 0 {
				msgs = append(msgs, fmt.Sprintf("attribute '%s': pattern has no named group '%s'", label, a.Group))
			}
		}
	case model.AttributeSourceConstant:
		if a.Value == nil {
			msgs = append(msgs, fmt.Sprintf("attribute '%s': constant source requires a value", label))
		}
	default:
		msgs = append(msgs, fmt.Sprintf("attribute '%s': unknown source '%s' (expected regex or constant)", label, a.Source))
	}

	if t == model.AttributeDate || t == model.AttributeTimestamp {
		if strings.TrimSpace(a.Format) == "" {
			msgs = append(msgs, fmt.Sprintf("attribute '%s': %s type requires a format", label, t))
		} else if err := mapping.CheckLayout(a.Format); err != nil {
			msgs = append(msgs, fmt.Sprintf("attribute '%s': invalid date format: %v", label, err))
		}
	}
	return msgs
}

// Report is a static report plus, for deep verification, the tables found.
type Report struct {
	model.VerificationReport
	Tables []TableSummary `json:"tables,omitempty"`
}

// TableSummary is a short description of one discovered table.
type TableSummary struct {
	Name       string `json:"name"`
	BlobCount  int    `json:"blobCount"`
	ReaderType string `json:"readerType"`
	Columns    int    `json:"columns"`
}

// Source verifies desc statically and, when that passes, runs a discovery
// against it. Discovery issues are added to the report.
func (v *Verifier) Source(ctx context.Context, desc model.SourceDescriptor, m *materializer.SourceMaterializer) Report {
	static := v.Descriptor(desc)
	if !static.IsValid() {
		return Report{VerificationReport: static}
	}
	result := discovery.DiscoverDescriptor(ctx, desc, discovery.Options{}, m)
	out := Report{VerificationReport: static.Merge(model.VerificationReport{Issues: result.Issues})}
	for _, t := range result.Tables {
		out.Tables = append(out.Tables, TableSummary{
			Name:       t.Name,
			BlobCount:  len(t.BlobPaths),
			ReaderType: t.ReaderType,
			Columns:    t.Schema.Len(),
		})
	}
	return out
}

type report struct {
	model.VerificationReport
}

func (r *report) add(sev model.Severity, phase model.Phase, ctx map[string]string, format string, args ...any) {
	r.Issues = append(r.Issues, model.VerificationIssue{
		Severity: sev,
		Phase:    phase,
		Message:  fmt.Sprintf(format, args...),
		Context:  ctx,
	})
}

func (r *report) errorf(phase model.Phase, ctx map[string]string, format string, args ...any) {
	r.add(model.SeverityError, phase, ctx, format, args...)
}

func (r *report) warnf(phase model.Phase, ctx map[string]string, format string, args ...any) {
	r.add(model.SeverityWarning, phase, ctx, format, args...)
}
