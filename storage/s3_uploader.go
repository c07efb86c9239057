package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"listing-scraper/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader copies each committed output file to bucket/prefix.
type S3Uploader struct {
	client ObjectPutter
	bucket string
	prefix string
}

func NewS3Uploader(cfg aws.Config, bucket, prefix string) *S3Uploader {
	return NewS3UploaderWithClient(s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), bucket, prefix)
}

func NewS3UploaderWithClient(client ObjectPutter, bucket, prefix string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

func (u *S3Uploader) key(file string) string {
	return path.Join(u.prefix, filepath.Base(file))
}

// Upload sends the file at file and returns its s3:// location.
func (u *S3Uploader) Upload(ctx context.Context, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file))
	if contentType == "" {
		contentType = "text/csv"
	}

	key := u.key(file)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", file, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

func (u *S3Uploader) Mirror(ctx context.Context, file string, _ []models.ListingRecord) error {
	_, err := u.Upload(ctx, file)
	return err
}
