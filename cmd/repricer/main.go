package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "repricer",
	Short:   "Replacement-cost pricing and depreciation pipeline for insurance claim inventories",
	Version: version,
}

func init() {
	rootCmd.AddCommand(runCmd)
}
