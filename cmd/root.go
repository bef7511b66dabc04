package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/compoundpi/compoundpi/cmd/gen"
)

var rootCmd = &cobra.Command{
	Use:   "cpid",
	Short: "compoundpi daemon",
	Long:  `cpid coordinates a fleet of cameras over the Compound Pi protocol.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gen.RootCmd)
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
