package main

import (
	"fmt"

	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type balanceReport struct {
	Owner   string                `json:"owner" yaml:"owner"`
	Wallets []services.WalletView `json:"wallets" yaml:"wallets"`
}

func balanceCmd(v *viper.Viper) *cobra.Command {
	var coachID int64
	var platform bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show a wallet next to the ledger figures it mirrors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if platform == (coachID > 0) {
				return fmt.Errorf("pass exactly one of --coach or --platform")
			}
			e, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.close()

			wallets := services.NewWalletService(e.db, ledger.NewService(e.logger), e.logger)
			report := balanceReport{Owner: "platform"}
			if platform {
				report.Wallets, err = wallets.PlatformWallet(cmd.Context())
			} else {
				report.Owner = fmt.Sprintf("coach:%d", coachID)
				report.Wallets, err = wallets.CoachWallet(cmd.Context(), coachID)
			}
			if err != nil {
				return err
			}
			return render(e.out, e.format, report)
		},
	}

	cmd.Flags().Int64Var(&coachID, "coach", 0, "coach user id")
	cmd.Flags().BoolVar(&platform, "platform", false, "show the platform wallet")
	return cmd
}
