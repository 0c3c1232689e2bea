package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Gateway implements Gateway using MinIO/S3-compatible storage.
type S3Gateway struct {
	core   *minio.Core
	client *minio.Client
	bucket string
	region string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	Endpoint  string // host:port (e.g., "localhost:9000")
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// NewS3Gateway creates a new S3Gateway with the given configuration.
func NewS3Gateway(cfg S3Config) (*S3Gateway, error) {
	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &S3Gateway{
		core:   core,
		client: core.Client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// EnsureBucket ensures the bucket exists, creating it if necessary.
func (s *S3Gateway) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return classify("head-bucket", s.bucket, err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{
		Region: s.region,
	})
	return classify("make-bucket", s.bucket, err)
}

// CreateMultipart starts a multipart upload for key.
func (s *S3Gateway) CreateMultipart(ctx context.Context, key string, contentType string) (string, error) {
	uploadID, err := s.core.NewMultipartUpload(ctx, s.bucket, key, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", classify("create-multipart", key, err)
	}
	return uploadID, nil
}

// SignPart returns a presigned PUT URL for one part of an open upload.
func (s *S3Gateway) SignPart(ctx context.Context, key string, uploadID string, partNumber int, expiry time.Duration) (string, error) {
	params := url.Values{}
	params.Set("uploadId", uploadID)
	params.Set("partNumber", strconv.Itoa(partNumber))

	signed, err := s.client.Presign(ctx, http.MethodPut, s.bucket, key, expiry, params)
	if err != nil {
		return "", classify("sign-part", key, err)
	}
	return signed.String(), nil
}

// CompleteMultipart finalizes an upload from the given part manifest.
// The backend accepts retries of this call safely provided the part set is
// unchanged, so callers may re-submit the same manifest after a transient
// failure.
func (s *S3Gateway) CompleteMultipart(ctx context.Context, key string, uploadID string, parts []Part) (string, error) {
	completeParts := make([]minio.CompletePart, 0, len(parts))
	for _, p := range parts {
		completeParts = append(completeParts, minio.CompletePart{
			PartNumber: p.PartNumber,
			ETag:       p.ETag,
		})
	}

	info, err := s.core.CompleteMultipartUpload(ctx, s.bucket, key, uploadID, completeParts, minio.PutObjectOptions{})
	if err != nil {
		return "", classify("complete-multipart", key, err)
	}
	return s.location(info.Key), nil
}

// AbortMultipart discards an open upload. Aborting an upload the backend no
// longer knows about is treated as success.
func (s *S3Gateway) AbortMultipart(ctx context.Context, key string, uploadID string) error {
	err := s.core.AbortMultipartUpload(ctx, s.bucket, key, uploadID)
	if err != nil {
		classed := classify("abort-multipart", key, err)
		if errors.Is(classed, ErrNotFound) {
			return nil
		}
		return classed
	}
	return nil
}

// PutObject stores a small object in one shot.
func (s *S3Gateway) PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string, metadata map[string]string) (string, error) {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: metadata,
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts)
	if err != nil {
		return "", classify("put-object", key, err)
	}
	return s.location(info.Key), nil
}

// PresignPut returns a presigned URL for a direct single-shot client PUT.
func (s *S3Gateway) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	signed, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", classify("presign-put", key, err)
	}
	return signed.String(), nil
}

// PresignGet returns a presigned download URL for a stored object.
func (s *S3Gateway) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", classify("presign-get", key, err)
	}
	return signed.String(), nil
}

// Exists reports whether an object is stored under key.
func (s *S3Gateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		classed := classify("stat-object", key, err)
		if errors.Is(classed, ErrNotFound) {
			return false, nil
		}
		return false, classed
	}
	return true, nil
}

// Rename moves an object to a new key via copy-then-delete. S3 has no
// native rename. A rename onto the same key returns the existing location.
func (s *S3Gateway) Rename(ctx context.Context, sourceKey, destKey string) (string, error) {
	if sourceKey == destKey {
		return s.location(destKey), nil
	}

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: destKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: sourceKey},
	)
	if err != nil {
		return "", classify("copy-object", sourceKey, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, sourceKey, minio.RemoveObjectOptions{}); err != nil {
		return "", classify("remove-object", sourceKey, err)
	}

	return s.location(destKey), nil
}

func (s *S3Gateway) location(key string) string {
	return s.bucket + "/" + key
}

// classify folds a backend error into the gateway taxonomy: transient
// failures wrap ErrUnavailable, permanent rejections wrap ErrRejected, and
// missing objects/uploads wrap ErrNotFound. The original error text is kept
// for logs but callers branch on the sentinels only.
func classify(op string, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	resp := minio.ToErrorResponse(err)
	var sentinel error
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchUpload" || resp.Code == "NoSuchBucket":
		sentinel = ErrNotFound
	case resp.StatusCode == 0:
		// No HTTP response at all: connection refused, DNS, resets.
		sentinel = ErrUnavailable
	case resp.StatusCode >= 500 || resp.Code == "SlowDown" || resp.Code == "RequestTimeout":
		sentinel = ErrUnavailable
	default:
		sentinel = ErrRejected
	}

	return fmt.Errorf("%w: %s %q: %v", sentinel, op, key, err)
}

// Ensure S3Gateway implements Gateway.
var _ Gateway = (*S3Gateway)(nil)
