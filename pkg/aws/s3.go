package aws

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver copies accepted upload files into a bucket for later inspection.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Client creates a new path-style S3 client from AWS config.
func NewS3Client(cfg sdkaws.Config) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
}

// NewS3Archiver builds an archiver writing under prefix in bucket.
func NewS3Archiver(cfg sdkaws.Config, bucket, prefix string) *S3Archiver {
	return &S3Archiver{client: NewS3Client(cfg), bucket: bucket, prefix: prefix}
}

// ArchiveKey returns the object key used for an upload received at t.
func ArchiveKey(prefix, name string, t time.Time) string {
	return path.Join(prefix, t.UTC().Format("2006/01/02"), fmt.Sprintf("%d-%s", t.UnixMilli(), name))
}

// Archive uploads the file at localPath and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, localPath, name string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload for archive: %w", err)
	}
	defer f.Close()

	key := ArchiveKey(a.prefix, name, time.Now())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(a.bucket),
		Key:         sdkaws.String(key),
		Body:        f,
		ContentType: sdkaws.String("text/csv"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive upload to s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}
