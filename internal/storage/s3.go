package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"nexus-catalog/internal/model"
	"nexus-catalog/internal/registry"
)

const KindS3 = "s3"

// S3Descriptor points at a bucket (and optional prefix) on S3 or an
// S3-compatible endpoint.
type S3Descriptor struct {
	Bucket         string `mapstructure:"bucket" json:"bucket" validate:"required"`
	Prefix         string `mapstructure:"prefix" json:"prefix,omitempty"`
	Region         string `mapstructure:"region" json:"region" validate:"required"`
	Endpoint       string `mapstructure:"endpoint" json:"endpoint,omitempty"`
	AccessKey      string `mapstructure:"accessKey" json:"accessKey,omitempty"`
	SecretKey      string `mapstructure:"secretKey" json:"secretKey,omitempty"`
	SessionToken   string `mapstructure:"sessionToken" json:"sessionToken,omitempty"`
	ForcePathStyle bool   `mapstructure:"forcePathStyle" json:"forcePathStyle,omitempty"`
}

func (S3Descriptor) StorageKind() string { return KindS3 }

func init() {
	Register(registry.FactoryFunc[model.StorageDescriptor, BlobSource]{
		KindName:   KindS3,
		Descriptor: func() model.StorageDescriptor { return &S3Descriptor{} },
		CreateFunc: func(ctx context.Context, d model.StorageDescriptor) (BlobSource, error) {
			desc, err := registry.As[S3Descriptor](d)
			if err != nil {
				return nil, err
			}
			return NewS3Source(ctx, desc)
		},
	})
}

// S3Source lists objects with ListObjectsV2 and reads them with GetObject.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Source(ctx context.Context, desc *S3Descriptor) (*S3Source, error) {
	if desc.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if desc.Region == "" {
		return nil, fmt.Errorf("region is required")
	}

	cfgOpts := []func(*config.LoadOptions) error{
		config.WithRegion(desc.Region),
	}
	if desc.AccessKey != "" && desc.SecretKey != "" {
		cfgOpts = append(cfgOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(desc.AccessKey, desc.SecretKey, desc.SessionToken),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if desc.Endpoint != "" {
			o.BaseEndpoint = aws.String(desc.Endpoint)
		}
		o.UsePathStyle = desc.ForcePathStyle
	})

	return &S3Source{client: client, bucket: desc.Bucket, prefix: desc.Prefix}, nil
}

func (s *S3Source) ListBlobs(ctx context.Context) ([]BlobPath, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	var blobs []BlobPath
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if isDirMarker(key) {
				continue
			}
			blobs = append(blobs, NewBlobPath(key, objectURI("s3", s.bucket, key)))
		}
	}
	return blobs, nil
}

func (s *S3Source) Open(ctx context.Context, blob BlobPath) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blob.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", blob.URI, err)
	}
	return out.Body, nil
}

func (s *S3Source) Close() error { return nil }
