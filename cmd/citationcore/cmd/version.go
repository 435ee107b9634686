package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the citationcore version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("%s v%s\n", appName, appVersion)
		return nil
	},
}
