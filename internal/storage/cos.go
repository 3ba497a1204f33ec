package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

const KindCOS = "cos"

// COSDescriptor points at a Tencent Cloud COS bucket. Bucket names carry the
// appid suffix, e.g. "examplebucket-1250000000".
type COSDescriptor struct {
	Bucket    string `mapstructure:"bucket" json:"bucket" validate:"required"`
	Region    string `mapstructure:"region" json:"region" validate:"required"`
	Prefix    string `mapstructure:"prefix" json:"prefix,omitempty"`
	SecretID  string `mapstructure:"secretId" json:"secretId,omitempty"`
	SecretKey string `mapstructure:"secretKey" json:"secretKey,omitempty"`
	HTTPS     bool   `mapstructure:"https" json:"https,omitempty"`
}

func (COSDescriptor) StorageKind() string { return KindCOS }

func init() {
	Register(registry.FactoryFunc[model.StorageDescriptor, BlobSource]{
		KindName:   KindCOS,
		Descriptor: func() model.StorageDescriptor { return &COSDescriptor{HTTPS: true} },
		CreateFunc: func(_ context.Context, d model.StorageDescriptor) (BlobSource, error) {
			desc, err := registry.As[COSDescriptor](d)
			if err != nil {
				return nil, err
			}
			return NewCOSSource(desc)
		},
	})
}

const cosPageSize = 1000

type COSSource struct {
	client *cos.Client
	bucket string
	prefix string
}

func NewCOSSource(desc *COSDescriptor) (*COSSource, error) {
	if desc.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if desc.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	bucketURL, err := cos.NewBucketURL(desc.Bucket, desc.Region, desc.HTTPS)
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket URL: %w", err)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if desc.SecretID != "" {
		httpClient.Transport = &cos.AuthorizationTransport{
			SecretID:  desc.SecretID,
			SecretKey: desc.SecretKey,
		}
	}

	return &COSSource{
		client: cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, httpClient),
		bucket: desc.Bucket,
		prefix: desc.Prefix,
	}, nil
}

func (s *COSSource) ListBlobs(ctx context.Context) ([]BlobPath, error) {
	var blobs []BlobPath
	marker := ""
	for {
		resp, _, err := s.client.Bucket.Get(ctx, &cos.BucketGetOptions{
			Prefix:  s.prefix,
			Marker:  marker,
			MaxKeys: cosPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in cos://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range resp.Contents {
			if isDirMarker(obj.Key) {
				continue
			}
			blobs = append(blobs, NewBlobPath(obj.Key, objectURI("cos", s.bucket, obj.Key)))
		}
		if !resp.IsTruncated {
			return blobs, nil
		}
		marker = resp.NextMarker
	}
}

func (s *COSSource) Open(ctx context.Context, blob BlobPath) (io.ReadCloser, error) {
	resp, err := s.client.Object.Get(ctx, blob.ID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", blob.URI, err)
	}
	return resp.Body, nil
}

func (s *COSSource) Close() error { return nil }
