// Package archive copies classified statements into an S3 compatible
// bucket so each saved batch can be traced back to its source file.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	keyPrefix   = "statements"
	contentType = "text/csv"
)

var ErrNoEndpoint = errors.New("archive endpoint required")

// Config points at the bucket.
type Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// objectAPI is the part of *minio.Client used here.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Archive stores statement CSVs.
type Archive struct {
	api    objectAPI
	bucket string
	now    func() time.Time
}

// Object describes a stored statement.
type Object struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Key    string `json:"key" yaml:"key"`
	Size   int64  `json:"size" yaml:"size"`
	ETag   string `json:"etag,omitempty" yaml:"etag,omitempty"`
}

// New creates an archive client. It does not contact the server.
func New(cfg Config) (*Archive, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive bucket required")
	}

	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client for %s: %w", cfg.Endpoint, err)
	}

	return &Archive{api: c, bucket: cfg.Bucket, now: time.Now}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (a *Archive) EnsureBucket(ctx context.Context) error {
	ok, err := a.api.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", a.bucket, err)
	}
	if ok {
		return nil
	}
	if err := a.api.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", a.bucket, err)
	}
	slog.Info("bucket created", "bucket", a.bucket)
	return nil
}

// ObjectKey returns statements/YYYY/MM/<name>.csv for the given time.
func ObjectKey(t time.Time, name string) string {
	return fmt.Sprintf("%s/%04d/%02d/%s.csv", keyPrefix, t.Year(), int(t.Month()), name)
}

// Put stores data under the key derived from name, usually a batch ID.
func (a *Archive) Put(ctx context.Context, name string, data []byte) (*Object, error) {
	if name == "" {
		return nil, errors.New("object name required")
	}
	key := ObjectKey(a.now().UTC(), name)
	info, err := a.api.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}

	slog.Debug("statement archived", "bucket", a.bucket, "key", key, "size", info.Size)
	return &Object{Bucket: a.bucket, Key: key, Size: info.Size, ETag: info.ETag}, nil
}
