// Package publish uploads run payloads to S3-compatible object storage so
// a viewer can fetch them without database access.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/roach88/artdr/internal/experiment"
)

// Uploader is the subset of *minio.Client the publisher uses.
type Uploader interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Options configures a connection to the object store.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string

	// Prefix is prepended to every object key.
	Prefix string
}

// Publisher writes payload JSON objects.
type Publisher struct {
	client Uploader
	bucket string
	prefix string
	logger *zap.Logger
}

var _ experiment.Publisher = (*Publisher)(nil)

// New connects to the object store described by opts.
func New(opts Options, logger *zap.Logger) (*Publisher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return NewWithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client Uploader, bucket, prefix string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// Publish uploads payload as JSON under key and returns its s3:// URL.
func (p *Publisher) Publish(ctx context.Context, key string, payload *experiment.Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	object := path.Join(p.prefix, key)
	info, err := p.client.PutObject(ctx, p.bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"config-id": fmt.Sprint(payload.Config.ConfigID),
			"method":    payload.Config.Method,
		},
	})
	if err != nil {
		return "", fmt.Errorf("put %s/%s: %w", p.bucket, object, err)
	}

	p.logger.Debug("object uploaded",
		zap.String("bucket", info.Bucket),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size),
	)
	return fmt.Sprintf("s3://%s/%s", p.bucket, object), nil
}
