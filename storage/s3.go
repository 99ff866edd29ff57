package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DownloadSigner mints time-bounded retrieval URLs for purchased assets.
type DownloadSigner interface {
	SignDownload(ctx context.Context, assetRef string, ttl time.Duration) (string, time.Time, error)
}

// S3Signer issues presigned GET URLs against a single bucket.
type S3Signer struct {
	presigner *s3.PresignClient
	bucket    string
}

func NewS3Signer(cfg sdkaws.Config, bucket string) *S3Signer {
	client := s3.NewFromConfig(cfg)
	return &S3Signer{
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
	}
}

// SignDownload normalizes the asset reference to a bucket key and presigns a
// GET for it. The expiry timestamp is computed before the round-trip so the
// advertised lifetime never overstates the real one.
func (s *S3Signer) SignDownload(ctx context.Context, assetRef string, ttl time.Duration) (string, time.Time, error) {
	key, err := ObjectKey(assetRef)
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().Add(ttl)
	presigned, err := s.presigner.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: &s.bucket,
			Key:    &key,
		},
		func(o *s3.PresignOptions) {
			o.Expires = ttl
		})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to presign get object: %w", err)
	}

	return presigned.URL, expiresAt, nil
}

// ObjectKey canonicalizes an asset reference to a bare S3 key. Catalog rows
// carry either a full object URL (https://bucket.s3.../path/to/file.wav) or
// a bare key; both forms resolve to the URL-decoded key with no leading
// slash.
func ObjectKey(assetRef string) (string, error) {
	ref := strings.TrimSpace(assetRef)
	if ref == "" {
		return "", fmt.Errorf("empty asset reference")
	}

	if strings.Contains(ref, "://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", fmt.Errorf("invalid asset URL %q: %w", assetRef, err)
		}
		ref = u.Path
	}

	key, err := url.PathUnescape(strings.TrimPrefix(ref, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid asset key %q: %w", assetRef, err)
	}
	if key == "" {
		return "", fmt.Errorf("asset reference %q resolves to empty key", assetRef)
	}
	return key, nil
}
