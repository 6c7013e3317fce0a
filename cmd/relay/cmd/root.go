package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relay/internal/version"
)

var cmdRoot = &cobra.Command{
	Use:     "relay",
	Short:   "Replicate Kafka topics between clusters",
	Version: version.Long(),
}

func Execute() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
