package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/afroboost/Tribeat-v4-sub000/internal/models"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func payoutAccountCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "payout-account <coach-id> <account-id>",
		Short: "Link a coach to the connected account that receives transfers",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coachID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || coachID <= 0 {
				return fmt.Errorf("invalid coach id %q", args[0])
			}
			accountID := strings.TrimSpace(args[1])
			if accountID == "" {
				return fmt.Errorf("account id is empty")
			}
			e, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.close()

			users := repository.NewUserRepository(e.db)
			user, err := users.GetByID(cmd.Context(), coachID)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("user %d not found", coachID)
			}
			if err != nil {
				return err
			}
			if user.Role != models.RoleCoach {
				return fmt.Errorf("user %d is not a coach", coachID)
			}
			if err := users.SetPayoutAccount(cmd.Context(), coachID, accountID); err != nil {
				return err
			}
			user.PayoutAccountID = &accountID
			return render(e.out, e.format, user)
		},
	}
}
