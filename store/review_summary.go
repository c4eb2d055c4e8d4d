package store

import "context"

// ReviewSummary is the generated summary stored for a subject key.
// There is at most one row per key; timestamps are unix nanoseconds.
type ReviewSummary struct {
	Key         string
	Content     string
	GeneratedNs int64
	ExpiresNs   int64
}

// FindReviewSummary is the find condition for review summaries.
type FindReviewSummary struct {
	Key   *string
	Limit *int
}

// UpsertReviewSummary replaces the whole summary row for Key.
type UpsertReviewSummary struct {
	Key         string
	Content     string
	GeneratedNs int64
	ExpiresNs   int64
}

// GetReviewSummary gets the summary stored for key, or nil if none.
func (s *Store) GetReviewSummary(ctx context.Context, key string) (*ReviewSummary, error) {
	limit := 1
	list, err := s.ListReviewSummaries(ctx, &FindReviewSummary{
		Key:   &key,
		Limit: &limit,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpsertReviewSummary inserts or replaces a review summary.
func (s *Store) UpsertReviewSummary(ctx context.Context, upsert *UpsertReviewSummary) (*ReviewSummary, error) {
	return s.driver.UpsertReviewSummary(ctx, upsert)
}

// ListReviewSummaries lists review summaries ordered by key.
func (s *Store) ListReviewSummaries(ctx context.Context, find *FindReviewSummary) ([]*ReviewSummary, error) {
	return s.driver.ListReviewSummaries(ctx, find)
}
