package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hometab",
	Short: "Self-hosted new-tab bookmarks with cloud autosync",
	Long: `hometab serves the bookmark collection of a browser new-tab page,
keeps a cached copy on this device and reconciles it with the signed-in
user's document in the remote store.

Configuration is read from HOMETAB_* environment variables.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ hometab: %v\n", err)
		os.Exit(1)
	}
}
