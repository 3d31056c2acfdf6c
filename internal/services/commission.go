package services

import (
	"context"
	"errors"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const DefaultCommissionPercent = 20

// CommissionScale is the most decimal places a commission percent may carry.
const CommissionScale = 4

var hundred = decimal.NewFromInt(100)

// Commission is the platform's share, captured once per settlement.
type Commission struct {
	Percent decimal.Decimal
	Version int64
}

func DefaultCommission() Commission {
	return Commission{Percent: decimal.NewFromInt(DefaultCommissionPercent)}
}

// ParseCommission falls back to the default on anything non-numeric, clamps
// numeric values to [0, 100] and truncates them to CommissionScale places.
func ParseCommission(raw string, version int64) Commission {
	percent, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Commission{Percent: decimal.NewFromInt(DefaultCommissionPercent), Version: version}
	}
	if percent.LessThan(decimal.Zero) {
		percent = decimal.Zero
	}
	if percent.GreaterThan(hundred) {
		percent = hundred
	}
	return Commission{Percent: percent.Truncate(CommissionScale), Version: version}
}

// Split floors the platform cut; the coach keeps the remainder so the two
// always add up to amount.
func (c Commission) Split(amount int64) (platformCut int64, coachCut int64) {
	if amount <= 0 {
		return 0, amount
	}
	platformCut = decimal.NewFromInt(amount).Mul(c.Percent).Shift(-2).Floor().IntPart()
	return platformCut, amount - platformCut
}

type settingsReader interface {
	Get(ctx context.Context, key string) (string, int64, error)
}

func LoadCommission(ctx context.Context, settings settingsReader) (Commission, error) {
	raw, version, err := settings.Get(ctx, repository.SettingCommissionPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultCommission(), nil
	}
	if err != nil {
		return Commission{}, err
	}
	return ParseCommission(raw, version), nil
}
