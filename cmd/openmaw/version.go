package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmaw-ai/openmaw/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.Load().Version)
	},
}
