package imagehost

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	defaultS3Prefix  = "covers/"
	DefaultS3Timeout = 15 * time.Second
)

type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicBaseURL is where the bucket's objects are served from. When empty
	// the S3 endpoint URL plus bucket is used.
	PublicBaseURL string
	Prefix        string
	// Timeout bounds each upload.
	Timeout time.Duration
}

// S3 stores covers in an S3-compatible bucket under content-addressed names,
// so the same image always maps to the same URL.
type S3 struct {
	client     *minio.Client
	bucket     string
	prefix     string
	publicBase string
	timeout    time.Duration
}

func NewS3(opts S3Options) (*S3, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("s3 endpoint and bucket are required")
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultS3Prefix
	}
	publicBase := strings.TrimRight(opts.PublicBaseURL, "/")
	if publicBase == "" {
		publicBase = strings.TrimRight(client.EndpointURL().String(), "/") + "/" + opts.Bucket
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultS3Timeout
	}
	return &S3{client: client, bucket: opts.Bucket, prefix: prefix, publicBase: publicBase, timeout: timeout}, nil
}

func (s *S3) Name() string { return "s3" }

func (s *S3) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: no image data", ErrUploadFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	name := ObjectName(s.prefix, data)
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      "image/jpeg",
		CacheControl:     "public, max-age=31536000, immutable",
		DisableMultipart: true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: put %s: %v", ErrUploadFailed, name, err)
	}
	return s.URL(name), nil
}

// URL returns the public URL for an object name.
func (s *S3) URL(name string) string {
	return s.publicBase + "/" + name
}

// ObjectName derives a stable object name from the image content.
func ObjectName(prefix string, data []byte) string {
	sum := sha256.Sum256(data)
	return prefix + hex.EncodeToString(sum[:16]) + ".jpg"
}
