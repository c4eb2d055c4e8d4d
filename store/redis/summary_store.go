package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/hrygo/reviewsense/store"
)

const defaultPrefix = "reviewsense"

// SummaryStore keeps review summaries in Redis hashes, one per key.
// Entries carry no TTL: a stale summary stays readable until replaced.
type SummaryStore struct {
	client redis.UniversalClient
	prefix string
}

// NewSummaryStore creates a SummaryStore. An empty prefix uses
// "reviewsense".
func NewSummaryStore(client redis.UniversalClient, prefix string) *SummaryStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &SummaryStore{client: client, prefix: prefix}
}

// GetReviewSummary returns the summary for key, or nil if none.
func (s *SummaryStore) GetReviewSummary(ctx context.Context, key string) (*store.ReviewSummary, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	fields, err := s.client.HGetAll(ctx, s.dataKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get review summary: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	generatedNs, err := strconv.ParseInt(fields["generated_ns"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt generated_ns for %q: %w", key, err)
	}
	expiresNs, err := strconv.ParseInt(fields["expires_ns"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt expires_ns for %q: %w", key, err)
	}

	return &store.ReviewSummary{
		Key:         key,
		Content:     fields["content"],
		GeneratedNs: generatedNs,
		ExpiresNs:   expiresNs,
	}, nil
}

// UpsertReviewSummary replaces the hash for upsert.Key in one MULTI/EXEC
// transaction, so readers never see a mix of old and new fields.
func (s *SummaryStore) UpsertReviewSummary(ctx context.Context, upsert *store.UpsertReviewSummary) (*store.ReviewSummary, error) {
	if s.client == nil {
		return nil, fmt.Errorf("redis client not configured")
	}
	if upsert.ExpiresNs <= upsert.GeneratedNs {
		return nil, fmt.Errorf("expires_ns must be after generated_ns")
	}

	dataKey := s.dataKey(upsert.Key)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, dataKey)
	pipe.HSet(ctx, dataKey,
		"content", upsert.Content,
		"generated_ns", upsert.GeneratedNs,
		"expires_ns", upsert.ExpiresNs,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to upsert review summary: %w", err)
	}

	return &store.ReviewSummary{
		Key:         upsert.Key,
		Content:     upsert.Content,
		GeneratedNs: upsert.GeneratedNs,
		ExpiresNs:   upsert.ExpiresNs,
	}, nil
}

// Ping checks the connection.
func (s *SummaryStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *SummaryStore) dataKey(key string) string {
	return fmt.Sprintf("%s:summary:%s", s.prefix, key)
}
