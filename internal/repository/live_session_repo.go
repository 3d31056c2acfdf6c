package repository

import (
	"context"
	"time"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
)

type CreateLiveSessionInput struct {
	CoachID  int64
	Title    string
	IsPublic bool
	Status   string
	StartsAt time.Time
}

type LiveSessionRepository struct {
	db DBTX
}

func NewLiveSessionRepository(db DBTX) *LiveSessionRepository {
	return &LiveSessionRepository{db: db}
}

const liveSessionColumns = `id, coach_id, title, is_public, status, starts_at, created_at`

func scanLiveSession(row rowScanner) (*models.LiveSession, error) {
	var session models.LiveSession
	err := row.Scan(
		&session.ID,
		&session.CoachID,
		&session.Title,
		&session.IsPublic,
		&session.Status,
		&session.StartsAt,
		&session.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *LiveSessionRepository) Create(ctx context.Context, input CreateLiveSessionInput) (*models.LiveSession, error) {
	status := input.Status
	if status == "" {
		status = models.LiveSessionScheduled
	}
	query := `
		INSERT INTO live_sessions (coach_id, title, is_public, status, starts_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + liveSessionColumns
	return scanLiveSession(r.db.QueryRow(ctx, query, input.CoachID, input.Title, input.IsPublic, status, input.StartsAt))
}

func (r *LiveSessionRepository) GetByID(ctx context.Context, sessionID int64) (*models.LiveSession, error) {
	query := `SELECT ` + liveSessionColumns + ` FROM live_sessions WHERE id = $1`
	return scanLiveSession(r.db.QueryRow(ctx, query, sessionID))
}
