package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/pkg/utils"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(viper.New())
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestTokenCommandMintsValidToken(t *testing.T) {
	out, err := runCLI(t, "token", "--user", "7", "--role", "coach", "--jwt-secret", "cli-secret")
	require.NoError(t, err)

	var report tokenReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, int64(7), report.UserID)

	claims, err := utils.ValidateToken(report.Token, "cli-secret")
	require.NoError(t, err)
	require.Equal(t, "7", claims.UserID)
	require.Equal(t, "coach", claims.Role)
}

func TestTokenCommandReadsSecretFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "env-secret")

	out, err := runCLI(t, "token", "--user", "1", "-o", "yaml")
	require.NoError(t, err)

	var report tokenReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	require.Equal(t, "admin", report.Role)

	_, err = utils.ValidateToken(report.Token, "env-secret")
	require.NoError(t, err)
}

func TestTokenCommandRejectsBadInput(t *testing.T) {
	_, err := runCLI(t, "token", "--user", "1", "--role", "root", "--jwt-secret", "x")
	require.ErrorContains(t, err, "unknown role")

	_, err = runCLI(t, "token", "--user", "0", "--jwt-secret", "x")
	require.Error(t, err)

	_, err = runCLI(t, "token", "--user", "1", "--jwt-secret", "x", "--output", "xml")
	require.ErrorContains(t, err, "unsupported output format")
}

func TestDatabaseCommandsRequireURL(t *testing.T) {
	t.Setenv("DB_URL", "")

	_, err := runCLI(t, "reconcile")
	require.ErrorContains(t, err, "DB_URL")

	_, err = runCLI(t, "compensate", "12", "--note", "refund")
	require.ErrorContains(t, err, "DB_URL")
}

func TestArgumentChecksRunBeforeConnecting(t *testing.T) {
	_, err := runCLI(t, "balance")
	require.ErrorContains(t, err, "exactly one")

	_, err = runCLI(t, "balance", "--coach", "3", "--platform")
	require.ErrorContains(t, err, "exactly one")

	_, err = runCLI(t, "compensate", "abc", "--note", "x")
	require.ErrorContains(t, err, "invalid payout id")

	_, err = runCLI(t, "compensate", "5")
	require.ErrorContains(t, err, "--note")

	_, err = runCLI(t, "anomalies", "--limit", "0")
	require.ErrorContains(t, err, "--limit")
}

func TestRenderYAMLUsesSnakeCaseKeys(t *testing.T) {
	owner := int64(9)
	report := reconcileReport{
		Repaired: 1,
		Drifts: []ledger.Drift{{
			OwnerID:  &owner,
			Currency: "EUR",
			Mirror:   ledger.Figures{Available: 100},
			Ledger:   ledger.Figures{Available: 80, TotalEarned: 80},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, render(&buf, "yaml", report))
	out := buf.String()
	require.True(t, strings.Contains(out, "owner_id: 9"), out)
	require.True(t, strings.Contains(out, "total_earned: 80"), out)
}

func TestPayoutAccountValidatesArguments(t *testing.T) {
	_, err := runCLI(t, "payout-account", "x", "acct_1")
	require.ErrorContains(t, err, "invalid coach id")

	_, err = runCLI(t, "payout-account", "4", " ")
	require.ErrorContains(t, err, "account id is empty")
}
