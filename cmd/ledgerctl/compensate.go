package main

import (
	"fmt"
	"strconv"

	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func compensateCmd(v *viper.Viper) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "compensate <payout-id>",
		Short: "Release the reservation of a failed payout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payoutID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || payoutID <= 0 {
				return fmt.Errorf("invalid payout id %q", args[0])
			}
			if note == "" {
				return fmt.Errorf("--note is required")
			}
			e, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.close()

			payouts := services.NewPayoutService(
				e.db,
				ledger.NewService(e.logger),
				nil,
				repository.NewAnomalyRepository(e.db),
				nil,
				e.logger,
			)
			entry, err := payouts.CompensatePayout(cmd.Context(), payoutID, note)
			if err != nil {
				return err
			}
			return render(e.out, e.format, entry)
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "reason recorded on the reversal entry")
	return cmd
}
