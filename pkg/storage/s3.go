package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// DefaultPresignTTL is the lifetime of presigned download URLs.
const DefaultPresignTTL = 7 * 24 * time.Hour

// S3Client abstracts the S3 API operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Presigner creates presigned GET requests. The [s3.PresignClient] type
// satisfies this interface.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Options configures an [S3Store].
type S3Options struct {
	Bucket string

	// Prefix is prepended to all object keys; "" for no prefix.
	Prefix string

	// PublicBaseURL, when set, makes Resolve return PublicBaseURL/key
	// instead of a presigned URL. Use it for public buckets or a CDN.
	PublicBaseURL string

	// Presigner signs download URLs. If both Presigner and PublicBaseURL are
	// unset, Resolve returns an s3:// URI.
	Presigner Presigner

	// PresignTTL defaults to DefaultPresignTTL.
	PresignTTL time.Duration
}

// S3Store implements ObjectStore backed by Amazon S3 or any S3-compatible
// object store (MinIO, R2, etc.).
//
// The caller is responsible for configuring the [s3.Client] with appropriate
// credentials, region, and endpoint.
type S3Store struct {
	client S3Client
	opts   S3Options
}

// NewS3 creates an S3-backed ObjectStore.
func NewS3(client S3Client, opts S3Options) *S3Store {
	opts.Prefix = strings.Trim(opts.Prefix, "/")
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = DefaultPresignTTL
	}
	return &S3Store{client: client, opts: opts}
}

// key builds the full S3 object key for the given storage path.
func (s *S3Store) key(path string) string {
	if s.opts.Prefix == "" {
		return path
	}
	return s.opts.Prefix + "/" + path
}

// Put uploads body via PutObject. Passing an io.ReadSeeker lets the SDK
// rewind the body on retries.
func (s *S3Store) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(s.key(path)),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	_, err := s.client.PutObject(ctx, in)
	return err
}

// Resolve returns the public URL, a presigned GET URL, or an s3:// URI for
// the object, in that order of preference.
func (s *S3Store) Resolve(ctx context.Context, path string) (string, error) {
	key := s.key(path)
	if s.opts.PublicBaseURL != "" {
		return s.opts.PublicBaseURL + "/" + escapeKey(key), nil
	}
	if s.opts.Presigner == nil {
		return "s3://" + s.opts.Bucket + "/" + key, nil
	}
	req, err := s.opts.Presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.opts.PresignTTL))
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes the named object via DeleteObject.
// S3 DeleteObject is already idempotent (returns success for missing keys).
func (s *S3Store) Delete(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(path)),
	})
	return err
}

// Exists checks whether the named object exists via HeadObject.
func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// escapeKey percent-encodes each segment of an object key.
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ ObjectStore = (*S3Store)(nil)
