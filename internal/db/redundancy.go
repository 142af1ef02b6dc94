package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"keywordhub/internal/models"
)

const pairColumns = `keyword_id_a, keyword_id_b, similarity, status, detected_at, processed_at`

func scanPair(row pgx.Row) (*models.RedundancyPair, error) {
	var p models.RedundancyPair
	if err := row.Scan(&p.KeywordIDA, &p.KeywordIDB, &p.Similarity, &p.Status, &p.DetectedAt, &p.ProcessedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertRedundancyPair records a pair. An existing pair keeps its status
// and detection time and takes the new similarity.
func (d *DB) UpsertRedundancyPair(ctx context.Context, pair *models.RedundancyPair) error {
	a, b := models.OrderPair(pair.KeywordIDA, pair.KeywordIDB)
	status := pair.Status
	if status == "" {
		status = models.PairDetected
	}
	query := `
		INSERT INTO keyword_redundancy_pairs (keyword_id_a, keyword_id_b, similarity, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (keyword_id_a, keyword_id_b) DO UPDATE SET similarity = EXCLUDED.similarity
		RETURNING ` + pairColumns
	stored, err := scanPair(d.q.QueryRow(ctx, query, a, b, pair.Similarity, status))
	if err != nil {
		return wrapErr(fmt.Sprintf("redundancy pair %s/%s", a, b), err)
	}
	*pair = *stored
	return nil
}

// GetRedundancyPair returns a pair given its ids in either order.
func (d *DB) GetRedundancyPair(ctx context.Context, a, b uuid.UUID) (*models.RedundancyPair, error) {
	a, b = models.OrderPair(a, b)
	query := `SELECT ` + pairColumns + ` FROM keyword_redundancy_pairs WHERE keyword_id_a = $1 AND keyword_id_b = $2`
	pair, err := scanPair(d.q.QueryRow(ctx, query, a, b))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("redundancy pair %s/%s", a, b), err)
	}
	return pair, nil
}

// ListRedundancyPairs lists pairs by descending similarity. An empty status
// lists all.
func (d *DB) ListRedundancyPairs(ctx context.Context, status string) ([]models.RedundancyPair, error) {
	query := `
		SELECT ` + pairColumns + `
		FROM keyword_redundancy_pairs
		WHERE $1 = '' OR status = $1
		ORDER BY similarity DESC
	`
	rows, err := d.q.Query(ctx, query, status)
	if err != nil {
		return nil, wrapErr("list redundancy pairs", err)
	}
	defer rows.Close()

	var pairs []models.RedundancyPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, wrapErr("list redundancy pairs", err)
		}
		pairs = append(pairs, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list redundancy pairs", err)
	}
	return pairs, nil
}

// SetRedundancyPairStatus marks a pair processed.
func (d *DB) SetRedundancyPairStatus(ctx context.Context, a, b uuid.UUID, status string, at time.Time) error {
	a, b = models.OrderPair(a, b)
	tag, err := d.q.Exec(ctx, `
		UPDATE keyword_redundancy_pairs SET status = $3, processed_at = $4
		WHERE keyword_id_a = $1 AND keyword_id_b = $2
	`, a, b, status, at)
	return mustAffect(fmt.Sprintf("redundancy pair %s/%s", a, b), tag, err)
}
