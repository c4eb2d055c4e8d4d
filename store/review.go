package store

import "context"

// Review is a single customer review of a product.
type Review struct {
	ID        int64
	ProductID int64
	Author    string
	Rating    int32
	Content   string
	CreatedTs int64
}

// FindReview is the find condition for reviews. Results are ordered
// newest first.
type FindReview struct {
	ProductID *int64
	Limit     *int
}

// CreateReview stores a new review. A zero CreatedTs is set to the
// current time.
func (s *Store) CreateReview(ctx context.Context, create *Review) (*Review, error) {
	return s.driver.CreateReview(ctx, create)
}

// ListReviews lists reviews, newest first.
func (s *Store) ListReviews(ctx context.Context, find *FindReview) ([]*Review, error) {
	return s.driver.ListReviews(ctx, find)
}

// ListReviewedProducts returns the distinct product ids that have at
// least one review, in ascending order.
func (s *Store) ListReviewedProducts(ctx context.Context) ([]int64, error) {
	return s.driver.ListReviewedProducts(ctx)
}
