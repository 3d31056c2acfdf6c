package services

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCommissionSplitScenario(t *testing.T) {
	platformCut, coachCut := ParseCommission("20", 1).Split(5000)
	require.EqualValues(t, 1000, platformCut)
	require.EqualValues(t, 4000, coachCut)
}

func TestCommissionSplitConservesAmount(t *testing.T) {
	amounts := []int64{0, 1, 2, 3, 7, 99, 100, 101, 333, 999, 1001, 4999, 5000, 123457, 999_999, 9_999_999, 10_000_000}
	for step := int64(1); step <= 10_000_000; step += 77_773 {
		amounts = append(amounts, step)
	}

	for percent := 0; percent <= 100; percent++ {
		commission := Commission{Percent: decimal.NewFromInt(int64(percent))}
		for _, amount := range amounts {
			platformCut, coachCut := commission.Split(amount)
			if platformCut+coachCut != amount {
				t.Fatalf("split(%d, %d%%) = %d + %d", amount, percent, platformCut, coachCut)
			}
			if platformCut < 0 || coachCut < 0 {
				t.Fatalf("split(%d, %d%%) produced a negative cut", amount, percent)
			}
			if want := amount * int64(percent) / 100; platformCut != want {
				t.Fatalf("split(%d, %d%%) platform cut %d, want %d", amount, percent, platformCut, want)
			}
		}
	}
}

func TestParseCommission(t *testing.T) {
	cases := map[string]string{
		"20":     "20",
		" 12.5 ": "12.5",
		"-4":     "0",
		"250":    "100",
		"abc":    "20",
		"":       "20",
	}
	for raw, want := range cases {
		got := ParseCommission(raw, 3)
		require.Equal(t, want, got.Percent.String(), "raw %q", raw)
		require.EqualValues(t, 3, got.Version)
	}
}

func TestCommissionSplitFloorsFractionalPercent(t *testing.T) {
	platformCut, coachCut := ParseCommission("12.5", 1).Split(999)
	require.EqualValues(t, 124, platformCut)
	require.EqualValues(t, 875, coachCut)
}

func TestCommissionSplitIsExactForLongFractions(t *testing.T) {
	// Div rounds to a fixed precision; 99.99...% of 1 must still floor to 0
	commission := Commission{Percent: decimal.RequireFromString("99.99999999999999999999")}
	platformCut, coachCut := commission.Split(1)
	require.EqualValues(t, 0, platformCut)
	require.EqualValues(t, 1, coachCut)

	platformCut, coachCut = commission.Split(10_000_000)
	require.EqualValues(t, 9_999_999, platformCut)
	require.EqualValues(t, 1, coachCut)
}

func TestParseCommissionTruncatesExcessPrecision(t *testing.T) {
	commission := ParseCommission("99.99999999999999999999", 1)
	require.Equal(t, "99.9999", commission.Percent.String())

	platformCut, coachCut := commission.Split(1)
	require.EqualValues(t, 0, platformCut)
	require.EqualValues(t, 1, coachCut)
}

type stubSettings struct {
	value   string
	version int64
	err     error
	setKey  string
	setVal  string
}

func (s *stubSettings) Get(_ context.Context, _ string) (string, int64, error) {
	return s.value, s.version, s.err
}

func (s *stubSettings) Set(_ context.Context, key string, value string) (int64, error) {
	s.setKey = key
	s.setVal = value
	return s.version + 1, s.err
}

func TestLoadCommission(t *testing.T) {
	commission, err := LoadCommission(context.Background(), &stubSettings{err: pgx.ErrNoRows})
	require.NoError(t, err)
	require.Equal(t, "20", commission.Percent.String())

	commission, err = LoadCommission(context.Background(), &stubSettings{value: "15", version: 4})
	require.NoError(t, err)
	require.Equal(t, "15", commission.Percent.String())
	require.EqualValues(t, 4, commission.Version)

	boom := errors.New("boom")
	_, err = LoadCommission(context.Background(), &stubSettings{err: boom})
	require.ErrorIs(t, err, boom)
}

func TestSetCommissionValidates(t *testing.T) {
	settings := &stubSettings{version: 2}

	commission, err := SetCommission(context.Background(), settings, "25")
	require.NoError(t, err)
	require.EqualValues(t, 3, commission.Version)
	require.Equal(t, "commission_percent", settings.setKey)
	require.Equal(t, "25", settings.setVal)

	_, err = SetCommission(context.Background(), settings, "12.3450")
	require.NoError(t, err)

	for _, raw := range []string{"abc", "-1", "100.5", "99.99999999999999999999", "12.34567"} {
		_, err := SetCommission(context.Background(), settings, raw)
		require.ErrorIs(t, err, ErrInvalidInput, raw)
	}
}
