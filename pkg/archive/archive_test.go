package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ objectAPI = (*minio.Client)(nil)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	meta    map[string]string
	err     error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, meta: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, b string) (bool, error) {
	return f.buckets[b], f.err
}

func (f *fakeObjects) MakeBucket(_ context.Context, b string, _ minio.MakeBucketOptions) error {
	if f.err != nil {
		return f.err
	}
	f.buckets[b] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, b, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.err != nil {
		return minio.UploadInfo{}, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[b+"/"+key] = data
	f.meta[b+"/"+key] = opts.ContentType
	return minio.UploadInfo{Bucket: b, Key: key, Size: size, ETag: "etag"}, nil
}

func testArchive(f *fakeObjects) *Archive {
	return &Archive{
		api:    f,
		bucket: "expctl",
		now:    func() time.Time { return time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC) },
	}
}

func TestObjectKey(t *testing.T) {
	ts := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "statements/2024/01/abc.csv", ObjectKey(ts, "abc"))
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoEndpoint)

	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)

	a, err := New(Config{Endpoint: "localhost:9000", Bucket: "expctl", AccessKey: "a", SecretKey: "b"})
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()
	f := newFakeObjects()
	a := testArchive(f)

	require.NoError(t, a.EnsureBucket(ctx))
	assert.True(t, f.buckets["expctl"])
	require.NoError(t, a.EnsureBucket(ctx))

	f.err = errors.New("denied")
	assert.Error(t, a.EnsureBucket(ctx))
}

func TestPut(t *testing.T) {
	ctx := context.Background()
	f := newFakeObjects()
	a := testArchive(f)

	obj, err := a.Put(ctx, "batch-1", []byte("data,valor\n"))
	require.NoError(t, err)
	assert.Equal(t, "statements/2024/03/batch-1.csv", obj.Key)
	assert.Equal(t, int64(11), obj.Size)
	assert.Equal(t, "data,valor\n", string(f.objects["expctl/"+obj.Key]))
	assert.Equal(t, contentType, f.meta["expctl/"+obj.Key])

	_, err = a.Put(ctx, "", nil)
	assert.Error(t, err)

	f.err = errors.New("down")
	_, err = a.Put(ctx, "batch-2", []byte("x"))
	assert.Error(t, err)
}
