// Package ledger owns the append-only ledger_entries table and the wallet
// mirrors derived from it. Mirror rows can only be written with a *Posting,
// and a Posting can only be minted here, inside the transaction that wrote or
// verified the ledger row backing the change.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/afroboost/Tribeat-v4-sub000/internal/database"
	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

var (
	ErrInvalidEntry         = errors.New("invalid ledger entry")
	ErrEntryNotFound        = errors.New("ledger entry not found")
	ErrUnguardedWalletWrite = errors.New("wallet write without a ledger posting")
	ErrPostingSpent         = errors.New("ledger posting already applied")
	ErrPayoutNotCleared     = errors.New("payout is not completed")
	ErrPayoutNotFailed      = errors.New("payout is not failed")
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type Service struct {
	logger *zap.Logger
}

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger}
}

const entryColumns = `
	id, type, amount, currency, user_id, transaction_id::text, payout_id, note, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := row.Scan(
		&entry.ID,
		&entry.Type,
		&entry.Amount,
		&entry.Currency,
		&entry.UserID,
		&entry.TransactionID,
		&entry.PayoutID,
		&entry.Note,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Validate checks sign, owner and reference rules before anything reaches the database.
func Validate(entry models.LedgerEntry) error {
	if !currencyPattern.MatchString(entry.Currency) {
		return fmt.Errorf("%w: currency %q", ErrInvalidEntry, entry.Currency)
	}

	switch entry.Type {
	case models.LedgerPlatformRevenue:
		if entry.UserID != nil {
			return fmt.Errorf("%w: platform revenue must not have an owner", ErrInvalidEntry)
		}
		if entry.TransactionID == nil {
			return fmt.Errorf("%w: platform revenue needs a transaction", ErrInvalidEntry)
		}
		if entry.Amount < 0 {
			return fmt.Errorf("%w: credit must not be negative", ErrInvalidEntry)
		}
	case models.LedgerCoachEarning:
		if entry.UserID == nil || entry.TransactionID == nil {
			return fmt.Errorf("%w: coach earning needs an owner and a transaction", ErrInvalidEntry)
		}
		if entry.Amount < 0 {
			return fmt.Errorf("%w: credit must not be negative", ErrInvalidEntry)
		}
	case models.LedgerPayout:
		if entry.UserID == nil || entry.PayoutID == nil {
			return fmt.Errorf("%w: payout needs an owner and a payout id", ErrInvalidEntry)
		}
		if entry.Amount >= 0 {
			return fmt.Errorf("%w: payout must be negative", ErrInvalidEntry)
		}
	case models.LedgerPayoutReversal:
		if entry.UserID == nil || entry.PayoutID == nil {
			return fmt.Errorf("%w: reversal needs an owner and a payout id", ErrInvalidEntry)
		}
		if entry.Amount <= 0 {
			return fmt.Errorf("%w: reversal must be positive", ErrInvalidEntry)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, entry.Type)
	}
	return nil
}

// Post appends entry inside tx. A uniqueness violation on the idempotence key
// is not an error: it returns created=false and a nil Posting, and the caller
// must treat the entry as already posted.
func (s *Service) Post(ctx context.Context, tx pgx.Tx, entry models.LedgerEntry) (*Posting, bool, error) {
	if err := Validate(entry); err != nil {
		return nil, false, err
	}

	// A failed INSERT poisons the enclosing transaction, so it runs in a savepoint.
	sp, err := tx.Begin(ctx)
	if err != nil {
		return nil, false, err
	}

	query := `
		INSERT INTO ledger_entries (type, amount, currency, user_id, transaction_id, payout_id, note)
		VALUES ($1, $2, $3, $4, $5::uuid, $6, $7)
		RETURNING ` + entryColumns
	posted, err := scanEntry(sp.QueryRow(
		ctx,
		query,
		entry.Type,
		entry.Amount,
		entry.Currency,
		entry.UserID,
		entry.TransactionID,
		entry.PayoutID,
		entry.Note,
	))
	if err != nil {
		_ = sp.Rollback(ctx)
		if database.IsUniqueViolation(err) {
			s.logger.Info("ledger entry already posted",
				zap.String("type", entry.Type),
				zap.Stringp("transaction_id", entry.TransactionID),
				zap.Int64p("payout_id", entry.PayoutID),
			)
			return nil, false, nil
		}
		return nil, false, err
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, false, err
	}

	return &Posting{tx: tx, entry: *posted, phase: phasePosted}, true, nil
}

// Balance is the authoritative balance of an owner: the plain sum of its
// entries. A nil ownerID selects the platform.
func (s *Service) Balance(ctx context.Context, db repository.DBTX, ownerID *int64, currency string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::bigint
		FROM ledger_entries
		WHERE user_id IS NOT DISTINCT FROM $1 AND currency = $2
	`
	var balance int64
	if err := db.QueryRow(ctx, query, ownerID, currency).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

// AvailableForPayout nets earnings against reserved payouts and their reversals.
func (s *Service) AvailableForPayout(ctx context.Context, db repository.DBTX, coachID int64, currency string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::bigint
		FROM ledger_entries
		WHERE user_id = $1
			AND currency = $2
			AND type IN ('COACH_EARNING', 'PAYOUT', 'PAYOUT_REVERSAL')
	`
	var available int64
	if err := db.QueryRow(ctx, query, coachID, currency).Scan(&available); err != nil {
		return 0, err
	}
	return available, nil
}

// Entries lists an owner's entries newest first. An empty currency matches all.
func (s *Service) Entries(ctx context.Context, db repository.DBTX, ownerID *int64, currency string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE user_id IS NOT DISTINCT FROM $1::bigint AND ($2::text = '' OR currency = $2::text)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := db.Query(ctx, query, ownerID, currency, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) EntriesForTransaction(ctx context.Context, db repository.DBTX, transactionID string) ([]models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE transaction_id = $1::uuid ORDER BY id`
	rows, err := db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0, 2)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// PayoutEntry returns the reserving PAYOUT entry of a payout.
func (s *Service) PayoutEntry(ctx context.Context, db repository.DBTX, payoutID int64) (*models.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE payout_id = $1 AND type = 'PAYOUT'`
	entry, err := scanEntry(db.QueryRow(ctx, query, payoutID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	return entry, err
}

// ClearPayout mints the Posting that releases a completed payout's reservation
// from the pending mirror. It never writes a ledger row: the PAYOUT entry
// already carries the money movement.
func (s *Service) ClearPayout(ctx context.Context, tx pgx.Tx, payoutID int64) (*Posting, error) {
	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM payouts WHERE id = $1`, payoutID).Scan(&status); err != nil {
		return nil, err
	}
	if status != models.PayoutCompleted {
		return nil, ErrPayoutNotCleared
	}

	entry, err := s.PayoutEntry(ctx, tx, payoutID)
	if err != nil {
		return nil, err
	}
	return &Posting{tx: tx, entry: *entry, phase: phaseCleared}, nil
}

// Reverse posts the PAYOUT_REVERSAL offsetting a failed payout's reservation.
func (s *Service) Reverse(ctx context.Context, tx pgx.Tx, payoutID int64, note *string) (*Posting, bool, error) {
	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM payouts WHERE id = $1`, payoutID).Scan(&status); err != nil {
		return nil, false, err
	}
	if status != models.PayoutFailed {
		return nil, false, ErrPayoutNotFailed
	}

	reserved, err := s.PayoutEntry(ctx, tx, payoutID)
	if err != nil {
		return nil, false, err
	}

	return s.Post(ctx, tx, models.LedgerEntry{
		Type:     models.LedgerPayoutReversal,
		Amount:   -reserved.Amount,
		Currency: reserved.Currency,
		UserID:   reserved.UserID,
		PayoutID: reserved.PayoutID,
		Note:     note,
	})
}
