package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend reads static files from an S3 bucket, falling back to
// another backend (typically a local directory, or chain of them) for
// anything the bucket doesn't have - useful for serving a small set of
// operator-supplied overrides without a deploy.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
	local  Backend
}

// NewS3Backend returns a Backend reading bucket (under prefix, if any)
// via client, falling back to local when set.
func NewS3Backend(client *s3.Client, bucket, prefix string, local Backend) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix, local: local}
}

// Fetch implements Backend.
func (b *S3Backend) Fetch(ctx context.Context, path string) ([]byte, error) {
	key := b.prefix + strings.TrimPrefix(path, "/")

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		defer out.Body.Close()
		content, readErr := io.ReadAll(out.Body)
		if readErr != nil {
			return nil, fmt.Errorf("cache: read s3 object %s: %w", key, readErr)
		}
		return content, nil
	}

	if !isNoSuchKey(err) {
		return nil, fmt.Errorf("cache: get s3 object %s: %w", key, err)
	}
	if b.local != nil {
		return b.local.Fetch(ctx, path)
	}
	return nil, ErrNotFound
}

func isNoSuchKey(err error) bool {
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &noSuchKey)
}
