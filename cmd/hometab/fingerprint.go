package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/hometab/internal/app"
	"github.com/MrSnakeDoc/hometab/internal/config"
	"github.com/MrSnakeDoc/hometab/internal/domain"
	"github.com/MrSnakeDoc/hometab/internal/utils"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Show the cached collection's fingerprint and the last synced one",
	Long: `Fingerprint computes the sync fingerprint of the collection cached on this
device. With --user it also prints the fingerprint last pushed for that
user, so "in sync" can be checked without starting the server.`,
	Args: cobra.NoArgs,
	RunE: runFingerprint,
}

var (
	fingerprintUser    string
	fingerprintLocalDB string
)

func init() {
	rootCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().StringVarP(&fingerprintUser, "user", "u", "",
		"user id to compare against")
	fingerprintCmd.Flags().StringVar(&fingerprintLocalDB, "local-db", "",
		"device cache file (default $HOMETAB_LOCAL_DB)")
}

func runFingerprint(cmd *cobra.Command, _ []string) error {
	cfg := config.LoadOffline()
	if fingerprintLocalDB != "" {
		cfg.LocalDB = fingerprintLocalDB
	}

	lc, err := app.OpenLocal(cfg.LocalDB)
	if err != nil {
		return err
	}
	defer utils.Close(lc)

	records, settings, _, err := lc.Cache.LoadSnapshot()
	if err != nil {
		return err
	}
	current := domain.ComputeFingerprint(records, settings)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "records:  %d (%d valid)\n", len(records), domain.CountValid(records))
	fmt.Fprintf(out, "current:  %s\n", current)

	if fingerprintUser == "" {
		return nil
	}
	last, ok, err := lc.Cache.LoadFingerprint(fingerprintUser)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "synced:   never (user %s)\n", fingerprintUser)
		return nil
	}
	fmt.Fprintf(out, "synced:   %s\n", last)
	if last == current {
		fmt.Fprintln(out, "status:   in sync")
	} else {
		fmt.Fprintln(out, "status:   local changes not pushed")
	}
	return nil
}
