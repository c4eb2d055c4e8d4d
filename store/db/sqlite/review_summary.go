package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/reviewsense/store"
)

// UpsertReviewSummary inserts or replaces the summary for a key in one
// statement.
func (d *DB) UpsertReviewSummary(ctx context.Context, upsert *store.UpsertReviewSummary) (*store.ReviewSummary, error) {
	stmt := `
		INSERT INTO review_summary (subject_key, content, generated_ns, expires_ns)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (subject_key) DO UPDATE SET
			content = excluded.content,
			generated_ns = excluded.generated_ns,
			expires_ns = excluded.expires_ns
		RETURNING subject_key, content, generated_ns, expires_ns
	`
	var summary store.ReviewSummary
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.Key,
		upsert.Content,
		upsert.GeneratedNs,
		upsert.ExpiresNs,
	).Scan(
		&summary.Key,
		&summary.Content,
		&summary.GeneratedNs,
		&summary.ExpiresNs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert review summary")
	}
	return &summary, nil
}

// ListReviewSummaries lists review summaries.
func (d *DB) ListReviewSummaries(ctx context.Context, find *store.FindReviewSummary) ([]*store.ReviewSummary, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.Key != nil {
		where, args = append(where, "subject_key = ?"), append(args, *find.Key)
	}

	query := `SELECT subject_key, content, generated_ns, expires_ns
		FROM review_summary
		WHERE ` + where[0]
	for _, cond := range where[1:] {
		query += " AND " + cond
	}
	query += " ORDER BY subject_key"

	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list review summaries")
	}
	defer rows.Close()

	var summaries []*store.ReviewSummary
	for rows.Next() {
		var summary store.ReviewSummary
		if err := rows.Scan(
			&summary.Key,
			&summary.Content,
			&summary.GeneratedNs,
			&summary.ExpiresNs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan review summary")
		}
		summaries = append(summaries, &summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}
