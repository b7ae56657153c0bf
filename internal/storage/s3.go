package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config describes the bucket split parts are published to.
// Endpoint switches the client to path-style addressing for S3-compatible
// services such as MinIO or LocalStack. Static keys are optional; without
// them the default AWS credential chain is used.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// objectPutter is the slice of the S3 API used for publishing.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Storage keeps temp files on local disk and publishes finished parts
// to S3.
type S3Storage struct {
	*LocalStorage
	client   objectPutter
	bucket   string
	region   string
	endpoint string
}

// NewS3Storage builds an S3-backed store rooted at tempDir.
func NewS3Storage(tempDir string, cfg S3Config) (*S3Storage, error) {
	local, err := NewLocalStorage(tempDir)
	if err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), loadOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &S3Storage{
		LocalStorage: local,
		client:       s3.NewFromConfig(awsCfg, clientOptions(cfg)...),
		bucket:       cfg.Bucket,
		region:       cfg.Region,
		endpoint:     strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

func loadOptions(cfg S3Config) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return opts
	}
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	return append(opts, config.WithCredentialsProvider(creds))
}

func clientOptions(cfg S3Config) []func(*s3.Options) {
	if cfg.Endpoint == "" {
		return nil
	}
	return []func(*s3.Options){func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	}}
}

// Publish stores data under key and returns its public URL.
func (s *S3Storage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: contentType(key),
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("upload to S3: %w", err)
	}
	return s.objectURL(key), nil
}

// contentType is nil for anything but MP3 so S3 falls back to its default.
func contentType(key string) *string {
	if strings.EqualFold(path.Ext(key), ".mp3") {
		return aws.String("audio/mpeg")
	}
	return nil
}

func (s *S3Storage) objectURL(key string) string {
	if s.endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}
	return s.endpoint + "/" + path.Join(s.bucket, key)
}

var _ Storage = (*S3Storage)(nil)
