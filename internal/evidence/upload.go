package evidence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/zwfm-alarmwatch/internal/util"
)

const uploadTimeout = 2 * time.Minute

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint        string // empty for AWS, otherwise a custom endpoint with path-style addressing
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// IsConfigured reports whether uploads can be attempted.
func (c *S3Config) IsConfigured() bool {
	return util.IsConfigured(c.Bucket, c.AccessKeyID, c.SecretAccessKey)
}

// Uploader stores clips in a bucket.
type Uploader struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewUploader creates an uploader for cfg.
func NewUploader(cfg *S3Config) (*Uploader, error) {
	if !cfg.IsConfigured() {
		return nil, errors.New("S3 is not configured")
	}

	options := []func(*s3.Options){
		func(o *s3.Options) {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
			o.Region = "auto"
		},
	}
	if cfg.Endpoint != "" {
		options = append(options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Uploader{
		client: s3.New(s3.Options{}, options...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Upload stores the file at filePath and returns its object key.
func (u *Uploader) Upload(ctx context.Context, filePath, contentType string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", util.WrapError("open clip", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	info, err := f.Stat()
	if err != nil {
		return "", util.WrapError("stat clip", err)
	}

	key := path.Join(u.prefix, filepath.Base(filePath))

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	slog.Info("evidence clip uploaded", "bucket", u.bucket, "key", key, "size", info.Size())
	return key, nil
}
