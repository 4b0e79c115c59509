package s3files

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// hashMetadataKey is the object metadata key holding the content hash.
const hashMetadataKey = "content-sha256"

// =============================================================================
// Manager
// =============================================================================

// S3API is the slice of the S3 client this module needs.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// ClientFactory builds an S3 client for one endpoint and credential pair.
// Every file set carries its own server config, so clients are created per
// object rather than once per manager.
type ClientFactory func(endpoint, accessKey, secretKey string) S3API

// NewClient is the default factory. Path-style addressing keeps MinIO style
// endpoints working without per-bucket DNS.
func NewClient(endpoint, accessKey, secretKey string) S3API {
	return s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	})
}

// Manager reconciles file sets against a bucket by comparing stored content
// hashes against the local ones.
type Manager struct {
	factory ClientFactory
	logger  *slog.Logger
}

// Plan reports whether any file in the set would be uploaded.
func (m *Manager) Plan(ctx context.Context, obj any) (bool, error) {
	set, err := asFileSet(obj)
	if err != nil {
		return false, err
	}

	client := m.factory(set.Endpoint, set.AccessKey, set.SecretKey)
	for _, file := range set.Files {
		upload, err := m.needsUpload(ctx, client, set.Bucket, file)
		if err != nil {
			return false, err
		}
		if upload {
			return true, nil
		}
	}
	return false, nil
}

// Apply uploads every file whose stored hash differs, or all of them when
// forced.
func (m *Manager) Apply(ctx context.Context, obj any, force bool) (bool, error) {
	set, err := asFileSet(obj)
	if err != nil {
		return false, err
	}

	client := m.factory(set.Endpoint, set.AccessKey, set.SecretKey)
	changed := false
	for _, file := range set.Files {
		if !force {
			upload, err := m.needsUpload(ctx, client, set.Bucket, file)
			if err != nil {
				return changed, err
			}
			if !upload {
				continue
			}
		}
		if err := m.upload(ctx, client, set.Bucket, file); err != nil {
			return changed, err
		}
		changed = true
	}
	return changed, nil
}

// Remove deletes every object of the set that is present.
func (m *Manager) Remove(ctx context.Context, obj any) (bool, error) {
	set, err := asFileSet(obj)
	if err != nil {
		return false, err
	}

	client := m.factory(set.Endpoint, set.AccessKey, set.SecretKey)
	changed := false
	for _, file := range set.Files {
		_, err := client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(set.Bucket),
			Key:    aws.String(file.Key),
		})
		var notFound *s3types.NotFound
		if errors.As(err, &notFound) {
			continue
		}
		if err != nil {
			return changed, fmt.Errorf("head s3://%s/%s: %w", set.Bucket, file.Key, err)
		}
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(set.Bucket),
			Key:    aws.String(file.Key),
		}); err != nil {
			return changed, fmt.Errorf("delete s3://%s/%s: %w", set.Bucket, file.Key, err)
		}
		m.logger.Info("removed file", "bucket", set.Bucket, "key", file.Key)
		changed = true
	}
	return changed, nil
}

func (m *Manager) needsUpload(ctx context.Context, client S3API, bucket string, file File) (bool, error) {
	head, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(file.Key),
	})
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("head s3://%s/%s: %w", bucket, file.Key, err)
	}
	return head.Metadata[hashMetadataKey] != file.SHA256, nil
}

func (m *Manager) upload(ctx context.Context, client S3API, bucket string, file File) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.Path, err)
	}
	defer f.Close()

	m.logger.Info("uploading file", "bucket", bucket, "key", file.Key)
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(file.Key),
		Body:     f,
		Metadata: map[string]string{hashMetadataKey: file.SHA256},
	}); err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, file.Key, err)
	}
	return nil
}

func asFileSet(obj any) (*FileSet, error) {
	set, ok := obj.(*FileSet)
	if !ok {
		return nil, fmt.Errorf("expected s3 file set object, got %T", obj)
	}
	return set, nil
}
