package ingest

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver receives each flushed page artifact for off-site retention. The
// archive is append-only, mirroring the immutability of the local pages.
type Archiver interface {
	Archive(ctx context.Context, localPath string) error
}

// NopArchiver is the degraded implementation selected when no archive bucket
// is configured.
type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, string) error { return nil }

// S3ArchiverConfig holds configuration for creating an S3Archiver.
//
// Environment variables:
//   - ARCHIVE_S3_BUCKET (required to enable archiving)
//   - ARCHIVE_S3_PREFIX (optional key prefix)
//   - ARCHIVE_S3_REGION (optional, defaults to "us-east-1")
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY (optional; unset uses the
//     default AWS credentials chain)
type S3ArchiverConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// LoadS3ArchiverConfigFromEnv reads the archiver configuration. Returns nil
// when no bucket is configured, which is not an error: archiving is an
// optional capability.
func LoadS3ArchiverConfigFromEnv() *S3ArchiverConfig {
	bucket := os.Getenv("ARCHIVE_S3_BUCKET")
	if bucket == "" {
		return nil
	}
	region := os.Getenv("ARCHIVE_S3_REGION")
	if region == "" {
		region = "us-east-1"
	}
	return &S3ArchiverConfig{
		Bucket:          bucket,
		Prefix:          os.Getenv("ARCHIVE_S3_PREFIX"),
		Region:          region,
		AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
	}
}

// S3Archiver uploads page artifacts to an S3 bucket.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Archiver(ctx context.Context, cfg S3ArchiverConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	return &S3Archiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (a *S3Archiver) Archive(ctx context.Context, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open page for archive: %w", err)
	}
	defer f.Close()

	key := path.Join(a.prefix, filepath.Base(localPath))
	if _, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
		Body:   f,
	}); err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, a.bucket, key, err)
	}
	return nil
}
