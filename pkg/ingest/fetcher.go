package ingest

import (
	"context"
	"log/slog"

	"github.com/civicworks/lake311/pkg/soda"
)

// Fetcher is the remote paged-query dependency of the ingester. The
// production implementation wraps the SODA client with retry/backoff; tests
// substitute stubs.
type Fetcher interface {
	Fetch(ctx context.Context, q soda.Query) ([]soda.Record, error)
	Count(ctx context.Context, where string) (int, error)
}

type sodaFetcher struct {
	log    *slog.Logger
	client *soda.Client
	retry  soda.RetryConfig
}

// NewFetcher wraps a SODA client with the retry policy.
func NewFetcher(log *slog.Logger, client *soda.Client, retry soda.RetryConfig) Fetcher {
	return &sodaFetcher{log: log, client: client, retry: retry}
}

func (f *sodaFetcher) Fetch(ctx context.Context, q soda.Query) ([]soda.Record, error) {
	return soda.FetchWithRetry(ctx, f.log, f.client, q, f.retry)
}

func (f *sodaFetcher) Count(ctx context.Context, where string) (int, error) {
	return soda.CountWithRetry(ctx, f.log, f.client, where, f.retry)
}
