package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3UploaderUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "listings.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	client := &fakePutter{}
	u := NewS3UploaderWithClient(client, "scrapes", "daily/2024-03-01")

	loc, err := u.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "s3://scrapes/daily/2024-03-01/listings.csv", loc)
	assert.Equal(t, "scrapes", client.bucket)
	assert.Equal(t, "daily/2024-03-01/listings.csv", client.key)
	assert.Equal(t, "a,b\n", string(client.body))
	assert.NotEmpty(t, client.contentType)
}

func TestS3UploaderMirrorErrors(t *testing.T) {
	u := NewS3UploaderWithClient(&fakePutter{err: errors.New("denied")}, "b", "")

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	assert.Error(t, u.Mirror(context.Background(), path, nil))

	assert.Error(t, u.Mirror(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), nil))
}
