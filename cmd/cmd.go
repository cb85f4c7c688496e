package cmd

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "ridebook",
	Short: "book rides and settle their fares",
	Long:  `ridebook takes ride bookings from customers, lets riders accept and complete them, and moves the fare from customer to rider when a ride is dropped off`,
}

func init() {
	RootCmd.AddCommand(serverCommand())
	RootCmd.AddCommand(migrateCommand())
	RootCmd.AddCommand(repairCommand())
	RootCmd.AddCommand(balancesCommand())
	RootCmd.AddCommand(seedCommand())
}
