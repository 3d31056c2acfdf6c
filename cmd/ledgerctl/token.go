package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type tokenReport struct {
	Token     string    `json:"token" yaml:"token"`
	UserID    int64     `json:"user_id" yaml:"user_id"`
	Role      string    `json:"role" yaml:"role"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

func tokenCmd(v *viper.Viper) *cobra.Command {
	var userID int64
	var role string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an operator or test user",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := outputFormat(v)
			if err != nil {
				return err
			}
			if userID <= 0 {
				return fmt.Errorf("--user must be a positive id")
			}
			switch role {
			case models.RoleUser, models.RoleCoach, models.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}

			token, err := utils.GenerateTokenWithTTL(strconv.FormatInt(userID, 10), role, v.GetString("jwt-secret"), ttl)
			if err != nil {
				return err
			}
			report := tokenReport{
				Token:     token,
				UserID:    userID,
				Role:      role,
				ExpiresAt: time.Now().Add(ttl).UTC().Truncate(time.Second),
			}
			return render(cmd.OutOrStdout(), format, report)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "user id placed in the token")
	cmd.Flags().StringVar(&role, "role", models.RoleAdmin, "role claim: user, coach or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
