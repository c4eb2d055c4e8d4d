package sqlite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/reviewsense/store"
)

func (d *DB) CreateReview(ctx context.Context, create *store.Review) (*store.Review, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO review (product_id, author, rating, content, created_ts)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ProductID,
		create.Author,
		create.Rating,
		create.Content,
		create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create review")
	}
	return create, nil
}

func (d *DB) ListReviews(ctx context.Context, find *store.FindReview) ([]*store.Review, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ProductID != nil {
		where, args = append(where, "product_id = ?"), append(args, *find.ProductID)
	}

	query := `SELECT id, product_id, author, rating, content, created_ts
		FROM review
		WHERE ` + where[0]
	for _, cond := range where[1:] {
		query += " AND " + cond
	}
	query += " ORDER BY created_ts DESC, id DESC"

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reviews")
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
			return nil, errors.Wrap(err, "failed to scan review")
		}
		reviews = append(reviews, &review)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return reviews, nil
}

func (d *DB) ListReviewedProducts(ctx context.Context) ([]int64, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT product_id FROM review ORDER BY product_id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list reviewed products")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan product id")
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ids, nil
}
