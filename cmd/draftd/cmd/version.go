package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		if jsonOut {
			_ = json.NewEncoder(os.Stdout).Encode(map[string]string{
				"version": appVersion,
				"commit":  appCommit,
				"built":   appDate,
			})
			return
		}
		fmt.Printf("draftd %s\n", appVersion)
		fmt.Printf("  commit: %s\n", appCommit)
		fmt.Printf("  built:  %s\n", appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
