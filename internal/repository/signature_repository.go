package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/maheshrc27/clipcast/internal/models"
)

type signatureRepository struct {
	db *sql.DB
}

func NewSignatureRepository(db *sql.DB) SignatureRepository {
	return &signatureRepository{db: db}
}

func (r *signatureRepository) Append(ctx context.Context, sig *models.RecentPostSignature) error {
	query := `
		INSERT INTO post_signatures (platform, external_post_id, content_hash, posted_at, visual_hash,
			audio_key, caption_norm, duration_sec)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	err := r.db.QueryRowContext(ctx, query, sig.Platform, sig.ExternalPostID, sig.ContentHash, sig.PostedAt,
		sig.VisualHash, sig.AudioKey, sig.CaptionNorm, sig.DurationSec).Scan(&sig.ID)
	if err != nil {
		return fmt.Errorf("append signature: %w", err)
	}
	return nil
}

func (r *signatureRepository) ListRecent(ctx context.Context, platform string, limit int) ([]*models.RecentPostSignature, error) {
	query := `
		SELECT id, platform, external_post_id, content_hash, posted_at, visual_hash, audio_key, caption_norm, duration_sec
		FROM post_signatures
		WHERE platform = $1
		ORDER BY posted_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, platform, limit)
	if err != nil {
		return nil, fmt.Errorf("list signatures: %w", err)
	}
	defer rows.Close()

	var sigs []*models.RecentPostSignature
	for rows.Next() {
		var s models.RecentPostSignature
		err := rows.Scan(&s.ID, &s.Platform, &s.ExternalPostID, &s.ContentHash, &s.PostedAt, &s.VisualHash,
			&s.AudioKey, &s.CaptionNorm, &s.DurationSec)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, &s)
	}
	return sigs, rows.Err()
}
