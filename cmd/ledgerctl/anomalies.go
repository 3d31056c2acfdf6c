package main

import (
	"fmt"

	"github.com/afroboost/Tribeat-v4-sub000/internal/repository"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func anomaliesCmd(v *viper.Viper) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "List webhook events that were acknowledged but could not be applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 || limit > 1000 {
				return fmt.Errorf("--limit must be between 1 and 1000")
			}
			e, err := openEnv(cmd, v)
			if err != nil {
				return err
			}
			defer e.close()

			anomalies, err := repository.NewAnomalyRepository(e.db).ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return render(e.out, e.format, anomalies)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows to show")
	return cmd
}
