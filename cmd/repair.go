package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ridebook/config"
	"ridebook/db/pg"
	"ridebook/logger"
	"ridebook/repair"
)

func repairCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repair",
		Short:   "reset balances that do not decode or are out of range",
		Long:    `repair scans every user balance and resets the corrupt ones to 0.00 in a single write. With --dry-run it only lists them.`,
		Example: `ridebook repair --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			cfg := config.Load()
			log := logger.New(cfg.ServiceName, cfg.LoggerLevel)
			store, gdb, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer pg.CloseGORM(gdb)

			repairer := repair.New(store, log)
			ctx := context.Background()
			out := cmd.OutOrStdout()

			if dryRun {
				corrections, err := repairer.Scan(ctx)
				if err != nil {
					return err
				}
				for _, c := range corrections {
					raw := "NULL"
					if c.Raw != nil {
						raw = *c.Raw
					}
					fmt.Fprintf(out, "%d\t%s\t%q\n", c.UserID, c.Reason, raw)
				}
				fmt.Fprintf(out, "%d balance(s) would be reset\n", len(corrections))
				return nil
			}

			ids, err := repairer.ScanAndRepairAll(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			fmt.Fprintf(out, "%d balance(s) reset\n", len(ids))
			return nil
		},
	}

	cmd.Flags().Bool("dry-run", false, "only list the balances that would be reset")

	return cmd
}
