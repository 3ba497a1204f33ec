package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

const KindMinIO = "minio"

type MinIODescriptor struct {
	Endpoint  string `mapstructure:"endpoint" json:"endpoint" validate:"required"`
	Bucket    string `mapstructure:"bucket" json:"bucket" validate:"required"`
	Prefix    string `mapstructure:"prefix" json:"prefix,omitempty"`
	AccessKey string `mapstructure:"accessKey" json:"accessKey,omitempty"`
	SecretKey string `mapstructure:"secretKey" json:"secretKey,omitempty"`
	Token     string `mapstructure:"token" json:"token,omitempty"`
	Region    string `mapstructure:"region" json:"region,omitempty"`
	Secure    bool   `mapstructure:"secure" json:"secure,omitempty"`
}

func (MinIODescriptor) StorageKind() string { return KindMinIO }

func init() {
	Register(registry.FactoryFunc[model.StorageDescriptor, BlobSource]{
		KindName:   KindMinIO,
		Descriptor: func() model.StorageDescriptor { return &MinIODescriptor{} },
		CreateFunc: func(_ context.Context, d model.StorageDescriptor) (BlobSource, error) {
			desc, err := registry.As[MinIODescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewMinIOSource(desc)
		},
	})
}

type MinIOSource struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinIOSource(desc *MinIODescriptor) (*MinIOSource, error) {
	if desc.Endpoint == "" || desc.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}
	client, err := minio.New(desc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(desc.AccessKey, desc.SecretKey, desc.Token),
		Secure: desc.Secure,
		Region: desc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return &MinIOSource{client: client, bucket: desc.Bucket, prefix: desc.Prefix}, nil
}

func (s *MinIOSource) ListBlobs(ctx context.Context) ([]BlobPath, error) {
	var blobs []BlobPath
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects in %s/%s: %w", s.bucket, s.prefix, obj.Err)
		}
		if isDirMarker(obj.Key) {
			continue
		}
		blobs = append(blobs, NewBlobPath(obj.Key, objectURI("s3", s.bucket, obj.Key)))
	}
	return blobs, nil
}

func (s *MinIOSource) Open(ctx context.Context, blob BlobPath) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, blob.ID, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", blob.URI, err)
	}
	return obj, nil
}

func (s *MinIOSource) Close() error { return nil }
