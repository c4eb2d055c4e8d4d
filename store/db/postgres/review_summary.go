package postgres

import (
	"context"
	"fmt"

	"github.com/hrygo/reviewsense/store"
)

func (d *DB) UpsertReviewSummary(ctx context.Context, upsert *store.UpsertReviewSummary) (*store.ReviewSummary, error) {
	query := `
		INSERT INTO review_summary (subject_key, content, generated_ns, expires_ns)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_key) DO UPDATE SET
			content = EXCLUDED.content,
			generated_ns = EXCLUDED.generated_ns,
			expires_ns = EXCLUDED.expires_ns
		RETURNING subject_key, content, generated_ns, expires_ns
	`
	var summary store.ReviewSummary
	err := d.db.QueryRowContext(ctx, query,
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
		return nil, fmt.Errorf("failed to upsert review summary: %w", err)
	}
	return &summary, nil
}

func (d *DB) ListReviewSummaries(ctx context.Context, find *store.FindReviewSummary) ([]*store.ReviewSummary, error) {
	query := `
		SELECT subject_key, content, generated_ns, expires_ns
		FROM review_summary
		WHERE 1=1
	`
	var args []any
	argIndex := 1

	if find.Key != nil {
		query += fmt.Sprintf(" AND subject_key = $%d", argIndex)
		args = append(args, *find.Key)
		argIndex++
	}
	query += " ORDER BY subject_key"
	if find.Limit != nil {
		query += fmt.Sprintf(" LIMIT $%d", argIndex)
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list review summaries: %w", err)
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
			return nil, fmt.Errorf("failed to scan review summary: %w", err)
		}
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list review summaries: %w", err)
	}
	return summaries, nil
}
