package main

import (
	"github.com/afroboost/Tribeat-v4-sub000/internal/ledger"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type reconcileReport struct {
	Repaired int            `json:"repaired" yaml:"repaired"`
	Drifts   []ledger.Drift `json:"drifts" yaml:"drifts"`
}

func reconcileCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Rebuild every wallet mirror from the ledger and report what drifted",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.close()

			wallets := services.NewWalletService(e.db, ledger.NewService(e.logger), e.logger)
			drifts, err := wallets.ReconcileAll(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range drifts {
				e.logger.Warn("wallet mirror repaired",
					zap.Int64p("owner_id", d.OwnerID),
					zap.String("currency", d.Currency),
					zap.Int64("mirror_available", d.Mirror.Available),
					zap.Int64("ledger_available", d.Ledger.Available),
				)
			}
			return render(e.out, e.format, reconcileReport{Repaired: len(drifts), Drifts: drifts})
		},
	}
}
