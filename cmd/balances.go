package cmd

import (
	"context"
	"encoding/csv"
	"strconv"

	"github.com/spf13/cobra"

	"ridebook/config"
	"ridebook/db/pg"
)

func balancesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balances",
		Short: "dump every stored balance as CSV",
		Long:  `balances prints each user's balance exactly as stored, without decoding it, so corrupt values show up as they are. NULL is printed as an empty field.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, gdb, err := openStore(config.Load())
			if err != nil {
				return err
			}
			defer pg.CloseGORM(gdb)

			rows, err := store.RawBalanceList(context.Background())
			if err != nil {
				return err
			}

			w := csv.NewWriter(cmd.OutOrStdout())
			_ = w.Write([]string{"user_id", "balance"})
			for _, row := range rows {
				balance := ""
				if row.Value != nil {
					balance = *row.Value
				}
				_ = w.Write([]string{strconv.FormatInt(row.UserID, 10), balance})
			}
			w.Flush()
			return w.Error()
		},
	}
}
