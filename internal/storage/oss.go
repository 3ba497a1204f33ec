package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

const KindOSS = "oss"

// OSSDescriptor points at an Alibaba Cloud OSS bucket.
type OSSDescriptor struct {
	Endpoint        string `mapstructure:"endpoint" json:"endpoint" validate:"required"`
	Bucket          string `mapstructure:"bucket" json:"bucket" validate:"required"`
	Prefix          string `mapstructure:"prefix" json:"prefix,omitempty"`
	AccessKeyID     string `mapstructure:"accessKeyId" json:"accessKeyId,omitempty"`
	AccessKeySecret string `mapstructure:"accessKeySecret" json:"accessKeySecret,omitempty"`
	SecurityToken   string `mapstructure:"securityToken" json:"securityToken,omitempty"`
}

func (OSSDescriptor) StorageKind() string { return KindOSS }

func init() {
	Register(registry.FactoryFunc[model.StorageDescriptor, BlobSource]{
		KindName:   KindOSS,
		Descriptor: func() model.StorageDescriptor { return &OSSDescriptor{} },
		CreateFunc: func(_ context.Context, d model.StorageDescriptor) (BlobSource, error) {
			desc, err := registry.As[OSSDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewOSSSource(desc)
		},
	})
}

const ossPageSize = 1000

type OSSSource struct {
	bucket *oss.Bucket
	name   string
	prefix string
}

func NewOSSSource(desc *OSSDescriptor) (*OSSSource, error) {
	if desc.Endpoint == "" || desc.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}

	var opts []oss.ClientOption
	if desc.SecurityToken != "" {
		opts = append(opts, oss.SecurityToken(desc.SecurityToken))
	}
	client, err := oss.New(desc.Endpoint, desc.AccessKeyID, desc.AccessKeySecret, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(desc.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", desc.Bucket, err)
	}

	return &OSSSource{bucket: bucket, name: desc.Bucket, prefix: desc.Prefix}, nil
}

func (s *OSSSource) ListBlobs(ctx context.Context) ([]BlobPath, error) {
	var blobs []BlobPath
	marker := ""
	for {
		lor, err := s.bucket.ListObjects(
			oss.Prefix(s.prefix),
			oss.Marker(marker),
			oss.MaxKeys(ossPageSize),
			oss.WithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in oss://%s/%s: %w", s.name, s.prefix, err)
		}
		for _, obj := range lor.Objects {
			if isDirMarker(obj.Key) {
				continue
			}
			blobs = append(blobs, NewBlobPath(obj.Key, objectURI("oss", s.name, obj.Key)))
		}
		if !lor.IsTruncated {
			return blobs, nil
		}
		marker = lor.NextMarker
	}
}

func (s *OSSSource) Open(ctx context.Context, blob BlobPath) (io.ReadCloser, error) {
	reader, err := s.bucket.GetObject(blob.ID, oss.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", blob.URI, err)
	}
	return reader, nil
}

func (s *OSSSource) Close() error { return nil }
