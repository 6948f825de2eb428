package main

import (
	"fmt"

	"github.com/alvmarrod/proxy-weaver/internal/version"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "proxyweaver %s\n", version.Get())
	},
}
