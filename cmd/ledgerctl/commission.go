package main

import (
	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/afroboost/Tribeat-v4-sub000/internal/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type commissionReport struct {
	Percent string `json:"percent" yaml:"percent"`
	Version int64  `json:"version" yaml:"version"`
}

func commissionCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commission",
		Short: "Read or change the platform commission",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the commission applied to new settlements",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.close()

			commission, err := services.LoadCommission(cmd.Context(), repository.NewSettingsRepository(e.db))
			if err != nil {
				return err
			}
			return render(e.out, e.format, commissionReport{Percent: commission.Percent.String(), Version: commission.Version})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <percent>",
		Short: "Change the commission; settled transactions keep their snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.close()

			commission, err := services.SetCommission(cmd.Context(), repository.NewSettingsRepository(e.db), args[0])
			if err != nil {
				return err
			}
			return render(e.out, e.format, commissionReport{Percent: commission.Percent.String(), Version: commission.Version})
		},
	})
	return cmd
}
