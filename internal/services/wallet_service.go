package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WalletView pairs the mirror with the authoritative ledger figures.
type WalletView struct {
	Currency      string         `json:"currency" yaml:"currency"`
	Mirror        ledger.Figures `json:"mirror" yaml:"mirror"`
	Ledger        ledger.Figures `json:"ledger" yaml:"ledger"`
	LedgerBalance int64          `json:"ledger_balance" yaml:"ledger_balance"`
	InSync        bool           `json:"in_sync" yaml:"in_sync"`
}

type WalletService struct {
	db     txPool
	ledger *ledger.Service
	logger *zap.Logger
}

func NewWalletService(db txPool, ledgerService *ledger.Service, logger *zap.Logger) *WalletService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WalletService{db: db, ledger: ledgerService, logger: logger}
}

func (s *WalletService) CoachWallet(ctx context.Context, coachID int64) ([]WalletView, error) {
	return s.wallet(ctx, &coachID)
}

func (s *WalletService) PlatformWallet(ctx context.Context) ([]WalletView, error) {
	return s.wallet(ctx, nil)
}

// wallet reads the mirror, the ledger figures and the balance from one
// snapshot so a concurrent posting cannot show up in only some of them.
func (s *WalletService) wallet(ctx context.Context, ownerID *int64) ([]WalletView, error) {
	var views []WalletView
	err := database.WithTx(ctx, s.db, database.Snapshot, func(tx pgx.Tx) error {
		currencies, err := s.ledger.Currencies(ctx, tx, ownerID)
		if err != nil {
			return err
		}

		views = make([]WalletView, 0, len(currencies))
		for _, currency := range currencies {
			drift, err := s.ledger.Inspect(ctx, tx, ownerID, currency)
			if err != nil {
				return err
			}
			balance, err := s.ledger.Balance(ctx, tx, ownerID, currency)
			if err != nil {
				return err
			}
			views = append(views, WalletView{
				Currency:      currency,
				Mirror:        drift.Mirror,
				Ledger:        drift.Ledger,
				LedgerBalance: balance,
				InSync:        drift.InSync(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, view := range views {
		if !view.InSync {
			s.logger.Warn("wallet mirror out of sync",
				zap.Int64p("owner_id", ownerID),
				zap.String("currency", view.Currency),
			)
		}
	}
	return views, nil
}

func (s *WalletService) Entries(ctx context.Context, ownerID *int64, currency string, limit int) ([]models.LedgerEntry, error) {
	return s.ledger.Entries(ctx, s.db, ownerID, currency, limit)
}

// Reconcile rebuilds one mirror row from the ledger.
func (s *WalletService) Reconcile(ctx context.Context, ownerID *int64, currency string) (*ledger.Drift, error) {
	var drift *ledger.Drift
	err := database.WithTx(ctx, s.db, database.Serializable, func(tx pgx.Tx) error {
		var err error
		drift, err = s.ledger.Reconcile(ctx, tx, ownerID, currency)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", currency, err)
	}
	return drift, nil
}

// ReconcileAll walks every owner with ledger rows and returns the drifts found.
func (s *WalletService) ReconcileAll(ctx context.Context) ([]ledger.Drift, error) {
	owners, err := s.ledger.Owners(ctx, s.db)
	if err != nil {
		return nil, err
	}

	drifts := make([]ledger.Drift, 0)
	for _, owner := range owners {
		drift, err := s.Reconcile(ctx, owner.UserID, owner.Currency)
		if err != nil {
			return drifts, err
		}
		if !drift.InSync() {
			drifts = append(drifts, *drift)
		}
	}
	return drifts, nil
}

type settingsWriter interface {
	Set(ctx context.Context, key string, value string) (int64, error)
}

// SetCommission validates and stores a new commission percent.
func SetCommission(ctx context.Context, settings settingsWriter, raw string) (Commission, error) {
	percent, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || percent.LessThan(decimal.Zero) || percent.GreaterThan(hundred) {
		return Commission{}, fmt.Errorf("%w: commission must be a number between 0 and 100", ErrInvalidInput)
	}
	if !percent.Equal(percent.Truncate(CommissionScale)) {
		return Commission{}, fmt.Errorf("%w: commission allows at most %d decimal places", ErrInvalidInput, CommissionScale)
	}
	version, err := settings.Set(ctx, repository.SettingCommissionPercent, percent.String())
	if err != nil {
		return Commission{}, err
	}
	return Commission{Percent: percent, Version: version}, nil
}
