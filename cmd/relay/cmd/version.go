package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"relay/internal/version"
)

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.Long())
	},
}

func init() {
	cmdRoot.AddCommand(cmdVersion)
}
