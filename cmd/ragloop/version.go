package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/ragloop"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of ragloop",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ragloop version %s\n", strings.TrimSpace(ragloop.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
