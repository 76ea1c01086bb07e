package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/artdr/internal/experiment"
	"github.com/roach88/artdr/internal/params"
)

type fakeUploader struct {
	bucket, key string
	body        []byte
	opts        minio.PutObjectOptions
	err         error
}

func (f *fakeUploader) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.bucket, f.key, f.body, f.opts = bucket, key, body, opts
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func testPayload() *experiment.Payload {
	return &experiment.Payload{
		Config: experiment.ConfigView{
			ConfigID:       3,
			Method:         "umap",
			SubsetStrategy: "random",
			SubsetSize:     1,
			Params:         params.Params{"n_neighbors": params.Int(15)},
			Runtime:        0.5,
			CreatedAt:      "2025-01-02 03:04:05",
		},
		Points: []experiment.PointView{{Filename: "a.jpg", Artist: "a", ConfigID: 3, X: 1, Y: 2}},
	}
}

func TestPublish(t *testing.T) {
	up := &fakeUploader{}
	p := NewWithClient(up, "gallery", "runs", nil)

	loc, err := p.Publish(context.Background(), "configs/3/r1.json", testPayload())
	require.NoError(t, err)

	assert.Equal(t, "s3://gallery/runs/configs/3/r1.json", loc)
	assert.Equal(t, "gallery", up.bucket)
	assert.Equal(t, "runs/configs/3/r1.json", up.key)
	assert.Equal(t, "application/json", up.opts.ContentType)
	assert.Equal(t, "3", up.opts.UserMetadata["config-id"])

	var got map[string]any
	require.NoError(t, json.Unmarshal(up.body, &got))
	assert.Contains(t, got, "config")
	assert.Len(t, got["points"], 1)
}

func TestPublishNoPrefix(t *testing.T) {
	up := &fakeUploader{}
	p := NewWithClient(up, "gallery", "", nil)

	loc, err := p.Publish(context.Background(), "configs/3/r1.json", testPayload())
	require.NoError(t, err)
	assert.Equal(t, "s3://gallery/configs/3/r1.json", loc)
}

func TestPublishError(t *testing.T) {
	p := NewWithClient(&fakeUploader{err: errors.New("access denied")}, "gallery", "", nil)

	_, err := p.Publish(context.Background(), "k.json", testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put gallery/k.json")
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewRejectsBadEndpoint(t *testing.T) {
	_, err := New(Options{Endpoint: "http://bad/endpoint", Bucket: "b"}, nil)
	assert.Error(t, err)
}
