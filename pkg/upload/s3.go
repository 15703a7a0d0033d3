package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3Config struct {
	Region    string
	Bucket    string
	Directory string
}

var ErrEmptyS3BucketName = errors.New("empty S3 bucket name")

type s3Uploader struct {
	bucket    string
	directory string
	service   *manager.Uploader
}

func NewS3Uploader(ctx context.Context, config S3Config) (Uploader, error) {
	if config.Bucket == "" {
		return nil, ErrEmptyS3BucketName
	}

	// Load S3 config
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, err
	}

	// Create service
	service := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(service)

	return &s3Uploader{config.Bucket, config.Directory, uploader}, nil
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := s.service.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey(s.directory, key)),
		Body:        body,
		ContentType: aws.String(contentType(key)),
	})
	return err
}

// Append directory if it's not empty
func objectKey(directory string, key string) string {
	if directory == "" {
		return key
	}
	return fmt.Sprintf("%s/%s", directory, key)
}

func contentType(key string) string {
	switch path.Ext(key) {
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
