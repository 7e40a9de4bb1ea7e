package main

import (
	"github.com/eaglebank/transactions-svc/internal/repository"
	"github.com/eaglebank/transactions-svc/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo risk rules and accounts, replacing existing accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in, err := setup(ctx)
		if err != nil {
			return err
		}
		defer in.close()

		return seed.Run(ctx,
			repository.NewRiskRuleRepository(in.pg),
			repository.NewAccountRepository(in.db),
			in.logger,
		)
	},
}
