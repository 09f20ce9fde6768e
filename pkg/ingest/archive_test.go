package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadS3ArchiverConfigFromEnv(t *testing.T) {
	t.Run("no bucket disables archiving", func(t *testing.T) {
		t.Setenv("ARCHIVE_S3_BUCKET", "")
		require.Nil(t, LoadS3ArchiverConfigFromEnv())
	})

	t.Run("bucket enables archiving with defaults", func(t *testing.T) {
		t.Setenv("ARCHIVE_S3_BUCKET", "civic-raw-pages")
		t.Setenv("ARCHIVE_S3_PREFIX", "")
		t.Setenv("ARCHIVE_S3_REGION", "")

		cfg := LoadS3ArchiverConfigFromEnv()
		require.NotNil(t, cfg)
		require.Equal(t, "civic-raw-pages", cfg.Bucket)
		require.Equal(t, "us-east-1", cfg.Region)
		require.Empty(t, cfg.Prefix)
	})

	t.Run("explicit prefix and region", func(t *testing.T) {
		t.Setenv("ARCHIVE_S3_BUCKET", "civic-raw-pages")
		t.Setenv("ARCHIVE_S3_PREFIX", "nyc311/raw")
		t.Setenv("ARCHIVE_S3_REGION", "us-west-2")

		cfg := LoadS3ArchiverConfigFromEnv()
		require.NotNil(t, cfg)
		require.Equal(t, "nyc311/raw", cfg.Prefix)
		require.Equal(t, "us-west-2", cfg.Region)
	})
}

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	t.Parallel()

	_, err := NewS3Archiver(context.Background(), S3ArchiverConfig{})
	require.ErrorContains(t, err, "archive bucket is required")
}
