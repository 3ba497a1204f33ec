// Package discovery walks a materialized source end to end and reports the
// tables it finds. A run never fails: every problem becomes an issue on the
// result and the rest of the run carries on.
package discovery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
)

// State is a step of a discovery run.
type State string

const (
	StateListing         State = "LISTING"
	StateMapping         State = "MAPPING"
	StateResolving       State = "RESOLVING"
	StateSchemaInference State = "SCHEMA_INFERENCE"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

type run struct {
	ctx    context.Context
	src    *materializer.MaterializedSource
	opts   Options
	log    issueLog
	logger *logrus.Entry
	result *Result
}

// Discover runs discovery against an already materialized source. The caller
// keeps ownership of src.
func Discover(ctx context.Context, src *materializer.MaterializedSource, opts Options) *Result {
	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	if src != nil {
		result.Source = src.Name
	}
	r := &run{
		ctx:    ctx,
		src:    src,
		opts:   opts,
		result: result,
		logger: logrus.WithFields(logrus.Fields{"source": result.Source, "run_id": result.RunID}),
	}

	if src == nil || src.BlobSource == nil {
		r.log.errorf(model.PhaseReader, nil, "No materialized source to discover")
	} else {
		r.execute()
	}

	result.Issues = r.log.issues
	result.Duration = time.Since(start)
	recordMetrics(result)
	r.logger.WithFields(logrus.Fields{
		"tables":   len(result.Tables),
		"blobs":    result.BlobCount,
		"unmapped": result.UnmappedBlobCount,
		"errors":   len(result.Errors()),
		"warnings": len(result.Warnings()),
		"duration": result.Duration,
	}).Info("discovery finished")
	return result
}

// DiscoverDescriptor materializes desc, discovers it and closes it again. A
// materialization failure yields a result with a single READER error. A nil
// materializer means materializer.Default().
func DiscoverDescriptor(ctx context.Context, desc model.SourceDescriptor, opts Options, m *materializer.SourceMaterializer) *Result {
	if m == nil {
		m = materializer.Default()
	}
	src, err := m.Materialize(ctx, desc)
	if err != nil {
		logrus.WithField("source", desc.Name).WithError(err).Warn("materialization failed")
		result := &Result{
			RunID:  uuid.NewString(),
			Source: desc.Name,
			Issues: []model.VerificationIssue{{
				Severity: model.SeverityError,
				Phase:    model.PhaseReader,
				Message:  "Materialization failed: " + err.Error(),
			}},
		}
		recordMetrics(result)
		return result
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logrus.WithField("source", desc.Name).WithError(cerr).Warn("failed to close materialized source")
		}
	}()
	return Discover(ctx, src, opts)
}

func (r *run) enter(s State) {
	r.logger.WithField("state", s).Debug("discovery state")
}

func (r *run) execute() {
	r.enter(StateListing)
	blobs, ok := r.list()
	if !ok {
		r.enter(StateDone)
		return
	}

	r.enter(StateMapping)
	groups := r.mapBlobs(blobs)

	r.enter(StateResolving)
	resolved := resolve(groups, r.src.Readers, r.src.Conflicts, &r.log)

	r.enter(StateSchemaInference)
	r.result.Tables = make([]DiscoveredTable, 0, len(resolved))
	for _, t := range resolved {
		r.result.Tables = append(r.result.Tables, r.describe(t))
	}
	r.enter(StateDone)
}

func (r *run) list() ([]storage.BlobPath, bool) {
	blobs, err := guard(func() ([]storage.BlobPath, error) {
		return r.src.BlobSource.ListBlobs(r.ctx)
	})
	if err != nil {
		r.log.errorf(model.PhaseStorage, nil, "Failed to list blobs: %v", err)
		return nil, false
	}
	r.result.BlobCount = len(blobs)
	if len(blobs) == 0 {
		r.log.infof(model.PhaseStorage, nil, "Storage is empty: no blobs found")
		return nil, false
	}
	r.log.infof(model.PhaseStorage, nil, "Storage contains %d blob(s)", len(blobs))
	return blobs, true
}

// mapBlobs classifies every blob with every reader. A reader whose mapper
// fails on any blob contributes nothing.
func (r *run) mapBlobs(blobs []storage.BlobPath) []rawGroup {
	var (
		groups []rawGroup
		index  = make(map[string]int)
		mapped = make(map[storage.BlobPath]bool)
	)
	for ri, reader := range r.src.Readers {
		var (
			order   []string
			byTable = make(map[string][]storage.BlobPath)
			failed  bool
		)
		for _, blob := range blobs {
			tm, err := guard(func() (*mapping.TableMapping, error) {
				return reader.TableMapper.MapToTable(blob)
			})
			if err != nil {
				r.log.errorf(model.PhaseTableMapping, blobCtx(ri, reader.Type, blob),
					"Reader[%d] (%s): table mapping failed for blob '%s': %v; reader skipped", ri, reader.Type, blob.URI, err)
				failed = true
				break
			}
			if tm == nil || tm.TableName == "" {
				continue
			}
			if _, seen := byTable[tm.TableName]; !seen {
				order = append(order, tm.TableName)
			}
			byTable[tm.TableName] = append(byTable[tm.TableName], blob)
		}
		if failed {
			continue
		}
		for _, table := range order {
			i, ok := index[table]
			if !ok {
				i = len(groups)
				index[table] = i
				groups = append(groups, rawGroup{name: table})
			}
			groups[i].contributions = append(groups[i].contributions, Contribution{ReaderIndex: ri, Blobs: byTable[table]})
			for _, b := range byTable[table] {
				mapped[b] = true
			}
		}
	}

	unmapped := 0
	for _, b := range blobs {
		if !mapped[b] {
			unmapped++
		}
	}
	r.result.UnmappedBlobCount = unmapped
	if unmapped > 0 {
		r.log.infof(model.PhaseTableMapping, nil, "%d blob(s) did not match any reader's table mapping", unmapped)
	}
	return groups
}

// describe infers the schema of a resolved table from its first blob and
// reads the requested samples.
func (r *run) describe(t resolvedTable) DiscoveredTable {
	first := t.contributions[0]
	reader := r.src.Readers[first.ReaderIndex]
	dt := DiscoveredTable{
		Name:          t.name,
		RawName:       t.rawName,
		ReaderType:    reader.Type,
		ReaderLabel:   reader.Label,
		Resolution:    t.resolution,
		Contributions: t.contributions,
	}
	seen := make(map[int]bool)
	for _, c := range t.contributions {
		dt.BlobPaths = append(dt.BlobPaths, c.Blobs...)
		if !seen[c.ReaderIndex] {
			seen[c.ReaderIndex] = true
			dt.Readers = append(dt.Readers, c.ReaderIndex)
		}
	}
	if len(first.Blobs) == 0 {
		r.log.warnf(model.PhaseSchema, tableCtx(t.name), "Table '%s': no blobs available for schema inference", t.name)
		return dt
	}
	blob := first.Blobs[0]

	schema, err := guard(func() (*model.RecordSchema, error) {
		return reader.FormatHandler.InferSchema(r.ctx, r.src.BlobSource, blob)
	})
	if err == nil && schema == nil {
		err = errNoSchema
	}
	if err != nil {
		r.log.errorf(model.PhaseSchema, tableBlobCtx(t.name, blob), "Table '%s': schema inference failed: %v", t.name, err)
		return dt
	}
	dt.FormatSchema = schema
	dt.Schema = schema

	var attrs map[string]any
	if ex := r.attributeExtractor(t.contributions); ex != nil {
		dt.Schema = schema.Append(ex.SchemaFields(schema.Len())...)
		if ex != reader.AttributeExtractor {
			// The sampled blob's reader has no attributes of its own.
			attrs = make(map[string]any, len(ex.Attributes()))
			for _, a := range ex.Attributes() {
				attrs[a.Name] = nil
			}
		} else {
			attrs = ex.Extract(blob)
			for _, a := range ex.Attributes() {
				if attrs[a.Name] == nil {
					r.log.warnf(model.PhaseSchema, tableBlobCtx(t.name, blob),
						"Table '%s': attribute '%s' resolved to null for blob '%s'", t.name, a.Name, blob.URI)
				}
			}
		}
	}

	if r.opts.MaxSampleRecords > 0 {
		dt.SampleRecords = r.sample(t.name, reader, blob, schema, attrs)
	}
	return dt
}

// attributeExtractor returns the extractor of the first contributing reader
// that has one. Its attributes extend the table schema.
func (r *run) attributeExtractor(contributions []Contribution) *mapping.AttributeExtractor {
	for _, c := range contributions {
		if ex := r.src.Readers[c.ReaderIndex].AttributeExtractor; ex != nil {
			return ex
		}
	}
	return nil
}

func (r *run) sample(table string, reader materializer.MaterializedReader, blob storage.BlobPath, schema *model.RecordSchema, attrs map[string]any) []model.Record {
	records, err := guard(func() ([]model.Record, error) {
		rs, err := reader.FormatHandler.CreateRecordSource(r.ctx, r.src.BlobSource, blob, schema)
		if err != nil {
			return nil, err
		}
		return format.ReadRecords(rs, r.opts.MaxSampleRecords)
	})
	if err != nil {
		r.log.warnf(model.PhaseSchema, tableBlobCtx(table, blob), "Table '%s': failed to read sample records: %v", table, err)
		return records
	}
	if len(attrs) > 0 {
		for _, rec := range records {
			for k, v := range attrs {
				rec[k] = v
			}
		}
	}
	return records
}
