package main

import (
	"fmt"
	"os"

	"ridebook/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ridebook: %v\n", err)
		os.Exit(1)
	}
}
