package repository

import (
	"context"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
)

type AnomalyRepository struct {
	db DBTX
}

func NewAnomalyRepository(db DBTX) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

func (r *AnomalyRepository) Create(ctx context.Context, provider, kind string, reference *string, detail string) (*models.WebhookAnomaly, error) {
	query := `
		INSERT INTO webhook_anomalies (provider, kind, reference, detail)
		VALUES ($1, $2, $3, $4)
		RETURNING id, provider, kind, reference, detail, created_at
	`
	var a models.WebhookAnomaly
	err := r.db.QueryRow(ctx, query, provider, kind, reference, detail).Scan(
		&a.ID, &a.Provider, &a.Kind, &a.Reference, &a.Detail, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AnomalyRepository) ListRecent(ctx context.Context, limit int) ([]models.WebhookAnomaly, error) {
	query := `
		SELECT id, provider, kind, reference, detail, created_at
		FROM webhook_anomalies
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	anomalies := make([]models.WebhookAnomaly, 0)
	for rows.Next() {
		var a models.WebhookAnomaly
		if err := rows.Scan(&a.ID, &a.Provider, &a.Kind, &a.Reference, &a.Detail, &a.CreatedAt); err != nil {
			return nil, err
		}
		anomalies = append(anomalies, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return anomalies, nil
}
