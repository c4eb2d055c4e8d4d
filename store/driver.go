package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)
	Migrate(ctx context.Context) error

	// Review model related methods.
	CreateReview(ctx context.Context, create *Review) (*Review, error)
	ListReviews(ctx context.Context, find *FindReview) ([]*Review, error)
	ListReviewedProducts(ctx context.Context) ([]int64, error)

	// ReviewSummary model related methods.
	UpsertReviewSummary(ctx context.Context, upsert *UpsertReviewSummary) (*ReviewSummary, error)
	ListReviewSummaries(ctx context.Context, find *FindReviewSummary) ([]*ReviewSummary, error)
}
