package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ridebook/config"
	"ridebook/db/db"
	"ridebook/db/pg"
	"ridebook/money"
)

var seedInputPath string

func seedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "seed",
		Short:   "create users from a CSV file",
		Long:    `seed reads username,first_name,last_name,role,balance rows (after a header row) and creates one user per row. Nothing is written unless every row is valid.`,
		Example: `ridebook seed --input users.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if seedInputPath == "" {
				return cmd.Help()
			}

			inputFile, err := os.Open(seedInputPath)
			if err != nil {
				return err
			}
			defer inputFile.Close()

			csvContent, err := csv.NewReader(inputFile).ReadAll()
			if err != nil {
				return err
			}
			users, err := ParseCSVToUsers(csvContent)
			if err != nil {
				return fmt.Errorf("failed to parse CSV: %w", err)
			}
			if len(users) == 0 {
				return fmt.Errorf("no users found in the CSV")
			}

			store, gdb, err := openStore(config.Load())
			if err != nil {
				return err
			}
			defer pg.CloseGORM(gdb)

			ctx := context.Background()
			for i := range users {
				if err := store.CreateUser(ctx, &users[i]); err != nil {
					return fmt.Errorf("create user %q: %w", users[i].Username, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", users[i].ID, users[i].Username, users[i].Role)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&seedInputPath, "input", "i", "", "csv input file path (required)")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		log.Fatal(err)
	}

	return cmd
}

// ParseCSVToUsers turns seed rows into users. The first row is a header.
func ParseCSVToUsers(csvContent [][]string) ([]db.User, error) {
	if len(csvContent) == 0 {
		return nil, fmt.Errorf("CSV is empty")
	}

	// skip the header row
	dataRows := csvContent[1:]

	users := make([]db.User, 0, len(dataRows))
	for i, row := range dataRows {
		if len(row) != 5 {
			return nil, fmt.Errorf("row %d: expected 5 columns, but got %d", i+2, len(row)) // +2 to account for the header row
		}
		for j := range row {
			row[j] = strings.TrimSpace(row[j])
		}

		if row[0] == "" {
			return nil, fmt.Errorf("row %d: username is empty", i+2)
		}
		role := db.Role(strings.ToLower(row[3]))
		if !role.Valid() {
			return nil, fmt.Errorf("row %d: unknown role %q", i+2, row[3])
		}
		balance, err := money.Decode(&row[4])
		if err != nil {
			return nil, fmt.Errorf("row %d: balance: %w", i+2, err)
		}
		if balance.IsNegative() {
			return nil, fmt.Errorf("row %d: balance %s is negative", i+2, row[4])
		}

		users = append(users, db.User{
			Username:  row[0],
			FirstName: row[1],
			LastName:  row[2],
			Role:      role,
			Balance:   balance,
		})
	}
	return users, nil
}
