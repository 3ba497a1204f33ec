package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"nexus-catalog/internal/catalog"
	"nexus-catalog/internal/descriptor"
	"nexus-catalog/internal/discovery"
	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/materializer"
	"nexus-catalog/internal/middleware"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/storage"
	"nexus-catalog/internal/utils"
	"nexus-catalog/internal/verify"
)

const (
	defaultRecordLimit = 100
	maxRecordLimit     = 10000
	maxSamples         = 1000
)

// CatalogService is the application layer behind the HTTP API.
type CatalogService interface {
	Plugins() PluginsResponse
	Discover(ctx context.Context, body []byte, samples int) (*discovery.Result, error)
	Verify(ctx context.Context, body []byte, deep bool) (*verify.Report, error)
	ListSources(ctx context.Context) []SourceSummary
	PutSource(ctx context.Context, name string, body []byte) (*discovery.Result, error)
	GetSource(ctx context.Context, name string) (*SourceDetail, error)
	RefreshSource(ctx context.Context, name string) (*discovery.Result, error)
	DeleteSource(ctx context.Context, name string) error
	ReadRecords(ctx context.Context, source, table string, limit int) (*RecordsResponse, error)
}

// PluginsResponse lists the registered kinds of each plugin family.
type PluginsResponse struct {
	Storage []string `json:"storage"`
	Format  []string `json:"format"`
	Mapping []string `json:"mapping"`
}

type SourceSummary struct {
	Name       string    `json:"name"`
	Storage    string    `json:"storage"`
	Readers    int       `json:"readers"`
	Tables     int       `json:"tables"`
	Successful bool      `json:"successful"`
	LoadedAt   time.Time `json:"loadedAt"`
}

type SourceDetail struct {
	SourceSummary
	Result *discovery.Result `json:"result"`
}

type RecordsResponse struct {
	Source    string              `json:"source"`
	Table     string              `json:"table"`
	Schema    *model.RecordSchema `json:"schema"`
	Records   []model.Record      `json:"records"`
	Count     int                 `json:"count"`
	Limit     int                 `json:"limit"`
	Truncated bool                `json:"truncated"`
}

type catalogService struct {
	codec        *descriptor.Codec
	verifier     *verify.Verifier
	materializer *materializer.SourceMaterializer
	manager      *catalog.Manager
	storages     *storage.Registry
	formats      *format.Registry
	mappers      *mapping.Registry
}

// NewCatalogService wires the service to the default plugin registries.
func NewCatalogService(manager *catalog.Manager) CatalogService {
	return &catalogService{
		codec:        descriptor.Default(),
		verifier:     verify.Default(),
		materializer: materializer.Default(),
		manager:      manager,
		storages:     storage.DefaultRegistry(),
		formats:      format.DefaultRegistry(),
		mappers:      mapping.DefaultRegistry(),
	}
}

func (s *catalogService) Plugins() PluginsResponse {
	return PluginsResponse{
		Storage: s.storages.Kinds(),
		Format:  s.formats.Kinds(),
		Mapping: s.mappers.Kinds(),
	}
}

func (s *catalogService) decode(body []byte) (model.SourceDescriptor, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return model.SourceDescriptor{}, utils.NewErrorBuilder(utils.ErrCodeInvalidDescriptor).
			WithMessage("Request body must contain a source descriptor").
			Build()
	}
	desc, err := s.codec.Decode(body)
	if err != nil {
		return model.SourceDescriptor{}, utils.NewInvalidDescriptorError(err)
	}
	return desc, nil
}

func (s *catalogService) Discover(ctx context.Context, body []byte, samples int) (*discovery.Result, error) {
	desc, err := s.decode(body)
	if err != nil {
		return nil, err
	}
	opts := discovery.Options{MaxSampleRecords: clamp(samples, 0, maxSamples)}
	return discovery.DiscoverDescriptor(ctx, desc, opts, s.materializer), nil
}

func (s *catalogService) Verify(ctx context.Context, body []byte, deep bool) (*verify.Report, error) {
	desc, err := s.decode(body)
	if err != nil {
		return nil, err
	}
	if deep {
		r := s.verifier.Source(ctx, desc, s.materializer)
		return &r, nil
	}
	return &verify.Report{VerificationReport: s.verifier.Descriptor(desc)}, nil
}

func (s *catalogService) ListSources(ctx context.Context) []SourceSummary {
	names := s.manager.Names()
	out := make([]SourceSummary, 0, len(names))
	for _, name := range names {
		if e, ok := s.manager.Get(name); ok {
			out = append(out, summarize(name, e, e.Result()))
		}
	}
	return out
}

// PutSource installs the descriptor under name. A descriptor without a name
// takes the path name; a different name is rejected.
func (s *catalogService) PutSource(ctx context.Context, name string, body []byte) (*discovery.Result, error) {
	desc, err := s.decode(body)
	if err != nil {
		return nil, err
	}
	if desc.Name == "" {
		desc.Name = name
	}
	if desc.Name != name {
		return nil, utils.NewErrorBuilder(utils.ErrCodeInvalidDescriptor).
			WithMessage("Descriptor name does not match the source path").
			WithDetails(fmt.Sprintf("descriptor name '%s', path '%s'", desc.Name, name)).
			Build()
	}
	if report := s.verifier.Descriptor(desc); !report.IsValid() {
		msgs := make([]string, 0, len(report.Errors()))
		for _, i := range report.Errors() {
			msgs = append(msgs, i.Message)
		}
		return nil, utils.NewErrorBuilder(utils.ErrCodeInvalidDescriptor).
			WithMessage("Source descriptor failed verification").
			WithDetails(strings.Join(msgs, "; ")).
			Build()
	}
	result, err := s.manager.Put(ctx, desc)
	if err != nil {
		return nil, utils.NewMaterializationError(err)
	}
	return result, nil
}

func (s *catalogService) GetSource(ctx context.Context, name string) (*SourceDetail, error) {
	result, err := s.manager.Result(ctx, name)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	e, ok := s.manager.Get(name)
	if !ok {
		return nil, sourceNotFound(name)
	}
	return &SourceDetail{SourceSummary: summarize(name, e, result), Result: result}, nil
}

func (s *catalogService) RefreshSource(ctx context.Context, name string) (*discovery.Result, error) {
	result, err := s.manager.Refresh(ctx, name)
	if err != nil {
		if errors.Is(err, catalog.ErrSourceNotFound) {
			return nil, sourceNotFound(name)
		}
		return nil, utils.NewMaterializationError(err)
	}
	return result, nil
}

func (s *catalogService) DeleteSource(ctx context.Context, name string) error {
	if !s.manager.Remove(name) {
		return sourceNotFound(name)
	}
	return nil
}

// ReadRecords reads up to limit records of a table. Truncated is set when
// more records were available.
func (s *catalogService) ReadRecords(ctx context.Context, source, table string, limit int) (resp *RecordsResponse, err error) {
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	limit = clamp(limit, 1, maxRecordLimit)

	t, err := s.manager.Table(ctx, source, table)
	if err != nil {
		return nil, mapCatalogError(err)
	}
	defer func() { middleware.RecordTableRead(source, table, recordCount(resp), err) }()

	rs, err := t.Records(ctx)
	if err != nil {
		return nil, readFailed(err)
	}
	defer func() {
		if cerr := rs.Close(); cerr != nil {
			logrus.WithError(cerr).WithFields(logrus.Fields{"source": source, "table": table}).Warn("failed to close record source")
		}
	}()

	out := &RecordsResponse{Source: source, Table: table, Schema: t.Schema(), Records: []model.Record{}, Limit: limit}
	for rs.Next() {
		if len(out.Records) == limit {
			out.Truncated = true
			break
		}
		out.Records = append(out.Records, rs.Record())
	}
	if err := rs.Err(); err != nil {
		return nil, readFailed(err)
	}
	out.Count = len(out.Records)
	return out, nil
}

func summarize(name string, e *catalog.Entry, r *discovery.Result) SourceSummary {
	sum := SourceSummary{
		Name:     name,
		Storage:  storage.KindOf(e.Descriptor.Storage),
		Readers:  len(e.Descriptor.Readers),
		LoadedAt: e.LoadedAt,
	}
	if r != nil {
		sum.Tables = len(r.Tables)
		sum.Successful = r.IsSuccessful()
	}
	return sum
}

func mapCatalogError(err error) error {
	switch {
	case errors.Is(err, catalog.ErrSourceNotFound):
		return utils.NewErrorBuilder(utils.ErrCodeSourceNotFound).WithDetails(err.Error()).Build()
	case errors.Is(err, catalog.ErrTableNotFound):
		return utils.NewErrorBuilder(utils.ErrCodeTableNotFound).WithDetails(err.Error()).Build()
	default:
		return utils.AsAppError(err)
	}
}

func sourceNotFound(name string) error {
	return utils.NewErrorBuilder(utils.ErrCodeSourceNotFound).
		WithDetails(fmt.Sprintf("source '%s' is not managed", name)).
		Build()
}

func readFailed(err error) error {
	return utils.NewErrorBuilder(utils.ErrCodeReadFailed).WithCause(err).Build()
}

func recordCount(r *RecordsResponse) int {
	if r == nil {
		return 0
	}
	return r.Count
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
