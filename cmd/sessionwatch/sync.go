package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sessionwatch/sessionwatch/internal/gitlog"
	"github.com/sessionwatch/sessionwatch/internal/ingest"
	"github.com/sessionwatch/sessionwatch/internal/watch"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "One-shot scan of the session tree into the database",
	Long: `Scan the whole watched tree once and exit.

Every tracked file is parsed from its recorded byte offset, so a sync
over an already indexed tree is cheap and never duplicates rows. After
the scan, commits are imported for every known project.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		st, err := openStore(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		importer := gitlog.NewImporter(st,
			&gitlog.CLI{Timeout: gitTimeout(cfg)},
			newLogger(cfg, "[gitlog] "))
		router := ingest.NewRouter(cfg.Root, st, importer, newLogger(cfg, "[ingest] "))

		coordinator, err := watch.NewWithConfig(cfg.Root, router, nil, &watch.Config{
			Logger: newLogger(cfg, "[watch] "),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer coordinator.Close()

		ctx := context.Background()
		if err := coordinator.Scan(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during scan: %v\n", err)
			os.Exit(1)
		}

		if err := importer.ImportAll(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error importing commits: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Sync complete")
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
