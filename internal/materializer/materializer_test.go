package materializer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-catalog/internal/format"
	"nexus-catalog/internal/mapping"
	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
	"nexus-catalog/internal/storage"
)

type bogusStorage struct{}

func (bogusStorage) StorageKind() string { return "bogus" }

type bogusFormat struct{}

func (bogusFormat) FormatKind() string { return "bogus-format" }

type memDescriptor struct{}

func (memDescriptor) StorageKind() string { return "mem" }

// withMemoryStorage returns a materializer whose only storage kind is "mem",
// backed by src.
func withMemoryStorage(src *storage.MemorySource) *SourceMaterializer {
	storages := registry.Of[model.StorageDescriptor, storage.BlobSource]("storage", storage.KindOf,
		registry.FactoryFunc[model.StorageDescriptor, storage.BlobSource]{
			KindName:   "mem",
			Descriptor: func() model.StorageDescriptor { return memDescriptor{} },
			CreateFunc: func(context.Context, model.StorageDescriptor) (storage.BlobSource, error) {
				return src, nil
			},
		})
	return New(storages, format.DefaultRegistry(), mapping.DefaultRegistry())
}

func regexTable(pattern string) *model.TableDescriptor {
	return &model.TableDescriptor{Mapping: &mapping.RegexDescriptor{Pattern: pattern, TableNameGroup: "table"}}
}

func TestCreateFailsForUnregisteredKind(t *testing.T) {
	m := Default()

	_, err := m.CreateBlobSource(context.Background(), bogusStorage{})
	require.Error(t, err)
	var unknown *registry.UnknownKindError
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "bogus")
	assert.Contains(t, unknown.Known, storage.KindLocal)

	_, err = m.CreateFormatHandler(context.Background(), bogusFormat{})
	require.ErrorAs(t, err, &unknown)
	assert.Contains(t, err.Error(), "bogus-format")
}

func TestMaterializeReaderInheritsSourceTable(t *testing.T) {
	m := Default()
	reader := model.ReaderDescriptor{Type: "csv", Format: &format.CSVDescriptor{}}

	mr, err := m.MaterializeReader(context.Background(), reader, regexTable(`(?P<table>[^/]+)\.csv$`))
	require.NoError(t, err)
	assert.Equal(t, "csv", mr.Type)
	assert.NotNil(t, mr.FormatHandler)
	assert.Nil(t, mr.AttributeExtractor)

	tm, err := mr.TableMapper.MapToTable(storage.BlobPath{ID: "a.csv", URI: "file:///data/a.csv"})
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, "a", tm.TableName)
}

func TestMaterializeReaderReplacesSourceTableWholesale(t *testing.T) {
	m := Default()
	value := "eu"
	sourceTable := &model.TableDescriptor{
		Mapping: &mapping.RegexDescriptor{Pattern: `(?P<table>[^/]+)\.csv$`, TableNameGroup: "table"},
		Attributes: []model.TableAttributeDescriptor{
			{Name: "region", Source: model.AttributeSourceConstant, Value: &value},
		},
	}
	reader := model.ReaderDescriptor{
		Type:   "csv",
		Format: &format.CSVDescriptor{},
		Table:  &model.TableDescriptor{Mapping: &mapping.DirectoryDescriptor{Depth: 1}},
	}

	mr, err := m.MaterializeReader(context.Background(), reader, sourceTable)
	require.NoError(t, err)
	assert.Nil(t, mr.AttributeExtractor, "source-level attributes must not leak into a reader-level table")

	tm, err := mr.TableMapper.MapToTable(storage.BlobPath{ID: "orders/a.csv", URI: "file:///data/orders/a.csv"})
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.Equal(t, "orders", tm.TableName)
}

func TestMaterializeReaderWithAttributes(t *testing.T) {
	m := Default()
	value := "eu"
	table := regexTable(`(?P<table>[^/]+)\.csv$`)
	table.Attributes = []model.TableAttributeDescriptor{
		{Name: "region", Source: model.AttributeSourceConstant, Value: &value},
	}

	mr, err := m.MaterializeReader(context.Background(), model.ReaderDescriptor{Type: "csv", Format: &format.CSVDescriptor{}}, table)
	require.NoError(t, err)
	require.NotNil(t, mr.AttributeExtractor)
	assert.Equal(t, "eu", mr.AttributeExtractor.Extract(storage.BlobPath{URI: "file:///a.csv"})["region"])
}

func TestMaterializeReaderWithoutMapping(t *testing.T) {
	_, err := Default().MaterializeReader(context.Background(), model.ReaderDescriptor{Type: "parquet", Format: &format.ParquetDescriptor{}}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoTableMapping))
	assert.Contains(t, err.Error(), "reader 'parquet'")
}

func TestMaterialize(t *testing.T) {
	src := storage.NewMemorySource(map[string][]byte{"a.csv": []byte("x\n1\n")})
	m := withMemoryStorage(src)

	ms, err := m.Materialize(context.Background(), model.SourceDescriptor{
		Name:    "sales",
		Storage: memDescriptor{},
		Table:   regexTable(`(?P<table>[^/]+)\.csv$`),
		Readers: []model.ReaderDescriptor{
			{Type: "csv", Format: &format.CSVDescriptor{}},
			{Type: "tsv", Label: "t", Format: &format.TSVDescriptor{}},
		},
		Conflicts: model.ConflictResolution{Default: model.ConflictUnion},
	})
	require.NoError(t, err)
	assert.Equal(t, "sales", ms.Name)
	assert.Len(t, ms.Readers, 2)
	assert.Equal(t, "t", ms.Readers[1].Label)
	assert.Equal(t, model.ConflictUnion, ms.Conflicts.Default)

	require.NoError(t, ms.Close())
	require.NoError(t, ms.Close())
	assert.Equal(t, 1, src.CloseCount())
}

func TestMaterializeFailsFastAndClosesBlobSource(t *testing.T) {
	src := storage.NewMemorySource(nil)
	m := withMemoryStorage(src)

	ms, err := m.Materialize(context.Background(), model.SourceDescriptor{
		Name:    "broken",
		Storage: memDescriptor{},
		Readers: []model.ReaderDescriptor{
			{Type: "csv", Format: &format.CSVDescriptor{}, Table: regexTable(`(?P<table>.+)`)},
			{Type: "orphan", Format: &format.CSVDescriptor{}},
		},
	})
	require.Error(t, err)
	assert.Nil(t, ms)
	assert.Contains(t, err.Error(), "reader 'orphan' has no table mapping")
	assert.Equal(t, 1, src.CloseCount())
}

func TestMaterializeUnknownStorage(t *testing.T) {
	_, err := Default().Materialize(context.Background(), model.SourceDescriptor{Name: "x", Storage: bogusStorage{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bogus"`)
}

func TestCloseNilSource(t *testing.T) {
	var ms *MaterializedSource
	assert.NoError(t, ms.Close())
	assert.NoError(t, (&MaterializedSource{}).Close())
}
