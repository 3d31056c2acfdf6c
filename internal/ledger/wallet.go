package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type phase int

const (
	phasePosted phase = iota + 1
	phaseCleared
	phaseRebuild
)

// Posting is the capability required to touch coach_balances or
// platform_wallets. It has no exported constructor; the zero value is rejected.
type Posting struct {
	tx      pgx.Tx
	entry   models.LedgerEntry
	phase   phase
	target  *Figures
	applied bool
}

// Entry is the ledger row the posting stands for. Rebuild postings have none.
func (p *Posting) Entry() models.LedgerEntry {
	return p.entry
}

// Figures is one owner's wallet in a currency. For the platform, Available is
// the wallet balance and Pending is always zero.
type Figures struct {
	Available   int64 `json:"available" yaml:"available"`
	Pending     int64 `json:"pending" yaml:"pending"`
	TotalEarned int64 `json:"total_earned" yaml:"total_earned"`
}

type Drift struct {
	OwnerID  *int64  `json:"owner_id,omitempty" yaml:"owner_id,omitempty"`
	Currency string  `json:"currency" yaml:"currency"`
	Mirror   Figures `json:"mirror" yaml:"mirror"`
	Ledger   Figures `json:"ledger" yaml:"ledger"`
}

func (d Drift) InSync() bool {
	return d.Mirror == d.Ledger
}

type Owner struct {
	UserID   *int64 `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Currency string `json:"currency" yaml:"currency"`
}

// Apply moves the wallet mirror by the deltas the posting justifies. It must
// run before the posting's transaction commits, and only once per posting.
func (s *Service) Apply(ctx context.Context, p *Posting) error {
	if p == nil || p.tx == nil || p.phase == 0 {
		return ErrUnguardedWalletWrite
	}
	if p.applied {
		return ErrPostingSpent
	}

	var err error
	switch p.phase {
	case phasePosted:
		err = s.applyPosted(ctx, p)
	case phaseCleared:
		err = addCoachDeltas(ctx, p.tx, *p.entry.UserID, p.entry.Currency, Figures{Pending: p.entry.Amount})
	case phaseRebuild:
		err = s.applyRebuild(ctx, p)
	default:
		err = ErrUnguardedWalletWrite
	}
	if err != nil {
		return err
	}
	p.applied = true
	return nil
}

func (s *Service) applyPosted(ctx context.Context, p *Posting) error {
	e := p.entry
	switch e.Type {
	case models.LedgerPlatformRevenue:
		return addPlatformDeltas(ctx, p.tx, e.Currency, e.Amount, e.Amount)
	case models.LedgerCoachEarning:
		return addCoachDeltas(ctx, p.tx, *e.UserID, e.Currency, Figures{Available: e.Amount, TotalEarned: e.Amount})
	case models.LedgerPayout:
		// amount is negative: available shrinks, pending grows
		return addCoachDeltas(ctx, p.tx, *e.UserID, e.Currency, Figures{Available: e.Amount, Pending: -e.Amount})
	case models.LedgerPayoutReversal:
		return addCoachDeltas(ctx, p.tx, *e.UserID, e.Currency, Figures{Available: e.Amount, Pending: -e.Amount})
	}
	return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, e.Type)
}

func (s *Service) applyRebuild(ctx context.Context, p *Posting) error {
	if p.target == nil {
		return ErrUnguardedWalletWrite
	}
	if p.entry.UserID == nil {
		query := `
			INSERT INTO platform_wallets (currency, balance, total_earned)
			VALUES ($1, $2, $3)
			ON CONFLICT (currency) DO UPDATE
			SET balance = EXCLUDED.balance,
				total_earned = EXCLUDED.total_earned,
				updated_at = NOW()
		`
		_, err := p.tx.Exec(ctx, query, p.entry.Currency, p.target.Available, p.target.TotalEarned)
		return err
	}

	query := `
		INSERT INTO coach_balances (coach_id, currency, available_amount, pending_amount, total_earned)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (coach_id, currency) DO UPDATE
		SET available_amount = EXCLUDED.available_amount,
			pending_amount = EXCLUDED.pending_amount,
			total_earned = EXCLUDED.total_earned,
			updated_at = NOW()
	`
	_, err := p.tx.Exec(ctx, query, *p.entry.UserID, p.entry.Currency, p.target.Available, p.target.Pending, p.target.TotalEarned)
	return err
}

func addCoachDeltas(ctx context.Context, tx pgx.Tx, coachID int64, currency string, delta Figures) error {
	query := `
		INSERT INTO coach_balances (coach_id, currency, available_amount, pending_amount, total_earned)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (coach_id, currency) DO UPDATE
		SET available_amount = coach_balances.available_amount + EXCLUDED.available_amount,
			pending_amount = coach_balances.pending_amount + EXCLUDED.pending_amount,
			total_earned = coach_balances.total_earned + EXCLUDED.total_earned,
			updated_at = NOW()
	`
	_, err := tx.Exec(ctx, query, coachID, currency, delta.Available, delta.Pending, delta.TotalEarned)
	return err
}

func addPlatformDeltas(ctx context.Context, tx pgx.Tx, currency string, balance, earned int64) error {
	query := `
		INSERT INTO platform_wallets (currency, balance, total_earned)
		VALUES ($1, $2, $3)
		ON CONFLICT (currency) DO UPDATE
		SET balance = platform_wallets.balance + EXCLUDED.balance,
			total_earned = platform_wallets.total_earned + EXCLUDED.total_earned,
			updated_at = NOW()
	`
	_, err := tx.Exec(ctx, query, currency, balance, earned)
	return err
}

// LedgerFigures derives what the mirror should hold from ledger rows alone.
func (s *Service) LedgerFigures(ctx context.Context, db repository.DBTX, ownerID *int64, currency string) (Figures, error) {
	var f Figures
	if ownerID == nil {
		query := `
			SELECT COALESCE(SUM(amount), 0)::bigint,
				COALESCE(SUM(amount) FILTER (WHERE type = 'PLATFORM_REVENUE'), 0)::bigint
			FROM ledger_entries
			WHERE user_id IS NULL AND currency = $1
		`
		err := db.QueryRow(ctx, query, currency).Scan(&f.Available, &f.TotalEarned)
		return f, err
	}

	query := `
		SELECT
			COALESCE(SUM(le.amount), 0)::bigint,
			(COALESCE(SUM(-le.amount) FILTER (WHERE le.type = 'PAYOUT' AND p.status <> 'COMPLETED'), 0)
				- COALESCE(SUM(le.amount) FILTER (WHERE le.type = 'PAYOUT_REVERSAL'), 0))::bigint,
			COALESCE(SUM(le.amount) FILTER (WHERE le.type = 'COACH_EARNING'), 0)::bigint
		FROM ledger_entries le
		LEFT JOIN payouts p ON p.id = le.payout_id
		WHERE le.user_id = $1 AND le.currency = $2
	`
	err := db.QueryRow(ctx, query, *ownerID, currency).Scan(&f.Available, &f.Pending, &f.TotalEarned)
	return f, err
}

func mirrorFigures(ctx context.Context, db repository.DBTX, ownerID *int64, currency string, forUpdate bool) (Figures, error) {
	var f Figures
	var query string
	var args []any
	if ownerID == nil {
		query = `SELECT balance, 0::bigint, total_earned FROM platform_wallets WHERE currency = $1`
		args = []any{currency}
	} else {
		query = `
			SELECT available_amount, pending_amount, total_earned
			FROM coach_balances
			WHERE coach_id = $1 AND currency = $2`
		args = []any{*ownerID, currency}
	}
	if forUpdate {
		query += ` FOR UPDATE`
	}

	err := db.QueryRow(ctx, query, args...).Scan(&f.Available, &f.Pending, &f.TotalEarned)
	if errors.Is(err, pgx.ErrNoRows) {
		return Figures{}, nil
	}
	return f, err
}

// Inspect compares the mirror with the ledger without writing anything.
func (s *Service) Inspect(ctx context.Context, db repository.DBTX, ownerID *int64, currency string) (*Drift, error) {
	mirror, err := mirrorFigures(ctx, db, ownerID, currency, false)
	if err != nil {
		return nil, err
	}
	derived, err := s.LedgerFigures(ctx, db, ownerID, currency)
	if err != nil {
		return nil, err
	}
	return &Drift{OwnerID: ownerID, Currency: currency, Mirror: mirror, Ledger: derived}, nil
}

// Reconcile rewrites the mirror from the ledger when they disagree and
// returns the drift observed before the rewrite.
func (s *Service) Reconcile(ctx context.Context, tx pgx.Tx, ownerID *int64, currency string) (*Drift, error) {
	mirror, err := mirrorFigures(ctx, tx, ownerID, currency, true)
	if err != nil {
		return nil, err
	}
	derived, err := s.LedgerFigures(ctx, tx, ownerID, currency)
	if err != nil {
		return nil, err
	}
	drift := &Drift{OwnerID: ownerID, Currency: currency, Mirror: mirror, Ledger: derived}
	if drift.InSync() {
		return drift, nil
	}

	s.logger.Warn("wallet mirror drifted from ledger",
		zap.Int64p("owner_id", ownerID),
		zap.String("currency", currency),
		zap.Int64("mirror_available", mirror.Available),
		zap.Int64("ledger_available", derived.Available),
		zap.Int64("mirror_pending", mirror.Pending),
		zap.Int64("ledger_pending", derived.Pending),
	)

	rebuild := &Posting{
		tx:     tx,
		entry:  models.LedgerEntry{UserID: ownerID, Currency: currency},
		phase:  phaseRebuild,
		target: &derived,
	}
	if err := s.Apply(ctx, rebuild); err != nil {
		return nil, err
	}
	return drift, nil
}

// Owners lists every (owner, currency) pair that has ledger rows.
func (s *Service) Owners(ctx context.Context, db repository.DBTX) ([]Owner, error) {
	rows, err := db.Query(ctx, `SELECT DISTINCT user_id, currency FROM ledger_entries ORDER BY user_id NULLS FIRST, currency`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := make([]Owner, 0)
	for rows.Next() {
		var o Owner
		if err := rows.Scan(&o.UserID, &o.Currency); err != nil {
			return nil, err
		}
		owners = append(owners, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return owners, nil
}

// Currencies lists the currencies an owner has ledger rows in.
func (s *Service) Currencies(ctx context.Context, db repository.DBTX, ownerID *int64) ([]string, error) {
	rows, err := db.Query(ctx, `SELECT DISTINCT currency FROM ledger_entries WHERE user_id IS NOT DISTINCT FROM $1 ORDER BY currency`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	currencies := make([]string, 0, 1)
	for rows.Next() {
		var currency string
		if err := rows.Scan(&currency); err != nil {
			return nil, err
		}
		currencies = append(currencies, currency)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return currencies, nil
}
