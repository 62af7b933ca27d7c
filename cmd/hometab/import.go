package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/hometab/internal/app"
	"github.com/MrSnakeDoc/hometab/internal/config"
	"github.com/MrSnakeDoc/hometab/internal/sources/homepage"
	"github.com/MrSnakeDoc/hometab/internal/utils"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import gethomepage services and bookmarks into the device cache",
	Long: `Import reads gethomepage services.yaml and bookmarks.yaml and adds every
entry whose URL is not already in the cached collection. The next running
server picks the records up and pushes them once a user signs in.`,
	Example: `  hometab import --services /srv/homepage/services.yaml
  hometab import --bookmarks ./bookmarks.yaml --local-db ./hometab.db`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

var (
	importServices  string
	importBookmarks string
	importLocalDB   string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importServices, "services", "",
		"gethomepage services.yaml (default $HOMETAB_HOMEPAGE_SERVICES)")
	importCmd.Flags().StringVar(&importBookmarks, "bookmarks", "",
		"gethomepage bookmarks.yaml (default $HOMETAB_HOMEPAGE_BOOKMARKS)")
	importCmd.Flags().StringVar(&importLocalDB, "local-db", "",
		"device cache file (default $HOMETAB_LOCAL_DB)")
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg := config.LoadOffline()
	if importLocalDB != "" {
		cfg.LocalDB = importLocalDB
	}
	src := homepage.Source{
		ServicesPath:  firstNonEmpty(importServices, cfg.HomepageServices),
		BookmarksPath: firstNonEmpty(importBookmarks, cfg.HomepageBookmarks),
	}
	if len(src.Paths()) == 0 {
		return fmt.Errorf("no homepage file given, use --services or --bookmarks")
	}

	loggerClient := newLogger(cfg)
	defer func() { _ = loggerClient.Sync() }()

	records, err := src.Load()
	if err != nil {
		return err
	}

	lc, err := app.OpenLocal(cfg.LocalDB)
	if err != nil {
		return err
	}
	defer utils.MustClose(lc, "local cache", loggerClient)

	ws := lc.Workspace(loggerClient)
	added, err := ws.Import(records)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d of %d records into %s (%d total)\n",
		added, len(records), cfg.LocalDB, ws.Count())
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
