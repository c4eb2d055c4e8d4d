package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hrygo/reviewsense/store"
)

func (d *DB) CreateReview(ctx context.Context, create *store.Review) (*store.Review, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	fields := []string{"product_id", "author", "rating", "content", "created_ts"}
	args := []any{create.ProductID, create.Author, create.Rating, create.Content, create.CreatedTs}
	stmt := `INSERT INTO review (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, fmt.Errorf("failed to create review: %w", err)
	}
	return create, nil
}

func (d *DB) ListReviews(ctx context.Context, find *store.FindReview) ([]*store.Review, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ProductID != nil {
		where, args = append(where, "product_id = "+placeholder(len(args)+1)), append(args, *find.ProductID)
	}

	query := `SELECT id, product_id, author, rating, content, created_ts
		FROM review
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []*store.Review
	for rows.Next() {
		var review store.Review
		if err := rows.Scan(
			&review.ID,
			&review.ProductID,
			&review.Author,
			&review.Rating,
			&review.Content,
			&review.CreatedTs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, &review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

func (d *DB) ListReviewedProducts(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT product_id FROM review ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviewed products: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan product id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list reviewed products: %w", err)
	}
	return ids, nil
}
