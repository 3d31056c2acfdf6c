package services

import (
	"context"
	"errors"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type accessStore interface {
	GetByID(ctx context.Context, id int64) (*models.UserAccess, error)
	UpdateStatusIfCurrent(ctx context.Context, id int64, currentStatus string, nextStatus string) (*models.UserAccess, error)
}

type AccessService struct {
	accessRepo accessStore
	logger     *zap.Logger
}

func NewAccessService(accessRepo accessStore, logger *zap.Logger) *AccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessService{accessRepo: accessRepo, logger: logger}
}

func (s *AccessService) Revoke(ctx context.Context, accessID int64) (*models.UserAccess, error) {
	return s.transition(ctx, accessID, models.AccessActive, models.AccessRevoked)
}

func (s *AccessService) Reactivate(ctx context.Context, accessID int64) (*models.UserAccess, error) {
	return s.transition(ctx, accessID, models.AccessRevoked, models.AccessActive)
}

func (s *AccessService) transition(ctx context.Context, accessID int64, from, to string) (*models.UserAccess, error) {
	if accessID <= 0 {
		return nil, ErrInvalidInput
	}

	access, err := s.accessRepo.UpdateStatusIfCurrent(ctx, accessID, from, to)
	if err == nil {
		s.logger.Info("access status changed",
			zap.Int64("access_id", accessID),
			zap.String("from", from),
			zap.String("to", to),
		)
		return access, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	if _, err := s.accessRepo.GetByID(ctx, accessID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccessNotFound
		}
		return nil, err
	}
	return nil, ErrInvalidStateTransition
}
