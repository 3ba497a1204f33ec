package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus-catalog/internal/registry"
)

func TestBlobPathPath(t *testing.T) {
	cases := map[string]string{
		"s3://bucket/sales/2024/orders.csv":   "/sales/2024/orders.csv",
		"file:///tmp/data/a%20b.csv":          "/tmp/data/a b.csv",
		"hdfs://nn:8020/warehouse/t/part.avro": "/warehouse/t/part.avro",
		"relative/path.csv":                   "relative/path.csv",
	}
	for uri, want := range cases {
		assert.Equal(t, want, BlobPath{ID: "x", URI: uri}.Path(), uri)
	}
	assert.Equal(t, "orders.csv", BlobPath{URI: "s3://b/sales/orders.csv"}.Name())
}

func TestBlobPathEquality(t *testing.T) {
	a := BlobPath{ID: "k", URI: "s3://b/k"}
	b := BlobPath{ID: "k", URI: "s3://b/k"}
	assert.Equal(t, a, b)

	seen := map[BlobPath]bool{a: true}
	assert.True(t, seen[b])
}

func TestObjectURIEscapes(t *testing.T) {
	u := objectURI("s3", "bucket", "dir/file name.csv")
	bp := NewBlobPath("dir/file name.csv", u)
	assert.Equal(t, "/dir/file name.csv", bp.Path())
	assert.Equal(t, "dir/x", joinKey("/dir/", "x"))
	assert.Equal(t, "x", joinKey("", "x"))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestLocalSourceListsRecursively(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "orders/2024/a.csv", "id\n1\n")
	writeFile(t, root, "customers/b.csv", "id\n2\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	src, err := NewLocalSource(root)
	require.NoError(t, err)

	blobs, err := src.ListBlobs(context.Background())
	require.NoError(t, err)
	require.Len(t, blobs, 2)

	ids := []string{blobs[0].ID, blobs[1].ID}
	assert.ElementsMatch(t, []string{"orders/2024/a.csv", "customers/b.csv"}, ids)
	for _, b := range blobs {
		assert.Contains(t, b.URI, "file://")
		assert.Equal(t, filepath.ToSlash(filepath.Join(src.Root(), b.ID)), b.Path())
	}

	rc, err := src.Open(context.Background(), blobs[0])
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestLocalSourceMissingRoot(t *testing.T) {
	src, err := NewLocalSource(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)

	_, err = src.ListBlobs(context.Background())
	assert.Error(t, err)

	_, err = NewLocalSource("")
	assert.Error(t, err)
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(map[string][]byte{"b/2.csv": []byte("y"), "a/1.csv": []byte("x")})

	blobs, err := src.ListBlobs(context.Background())
	require.NoError(t, err)
	require.Len(t, blobs, 2)
	assert.Equal(t, "a/1.csv", blobs[0].ID)
	assert.Equal(t, "/a/1.csv", blobs[0].Path())

	data, err := ReadAll(context.Background(), src, blobs[1])
	require.NoError(t, err)
	assert.Equal(t, "y", string(data))

	_, err = src.Open(context.Background(), src.Blob("nope"))
	assert.Error(t, err)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 2, src.CloseCount())
}

func TestDefaultRegistryKnowsBundledKinds(t *testing.T) {
	kinds := DefaultRegistry().Kinds()
	for _, k := range []string{KindLocal, KindS3, KindMinIO, KindAzure, KindHDFS, KindOSS, KindCOS} {
		assert.Contains(t, kinds, k)
	}
}

type unknownStorage struct{}

func (unknownStorage) StorageKind() string { return "ftp" }

func TestRegistryCreate(t *testing.T) {
	root := t.TempDir()
	src, err := NewRegistry().Create(context.Background(), &LocalDescriptor{RootPath: root})
	require.NoError(t, err)
	assert.IsType(t, &LocalSource{}, src)

	_, err = NewRegistry().Create(context.Background(), unknownStorage{})
	var unknown *registry.UnknownKindError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ftp", unknown.Kind)

	_, err = NewRegistry().Create(context.Background(), nil)
	assert.Error(t, err)
}

func TestS3RequiresBucketAndRegion(t *testing.T) {
	_, err := NewS3Source(context.Background(), &S3Descriptor{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = NewS3Source(context.Background(), &S3Descriptor{Bucket: "b"})
	assert.Error(t, err)
}

func TestCOSRequiresRegion(t *testing.T) {
	_, err := NewCOSSource(&COSDescriptor{Bucket: "b-125"})
	assert.Error(t, err)
}
