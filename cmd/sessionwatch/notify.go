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

var notifyCmd = &cobra.Command{
	Use:   "notify <path>",
	Short: "Ingest a single changed file (hook entry point)",
	Long: `Process one changed file synchronously and exit.

This is the entry point for hook-based triggering: the agent invokes it
after writing a file, passing the changed path. Ingestion is idempotent,
so racing with a running serve daemon over the same file is harmless;
whichever processes it first wins and the other is a no-op.

Paths outside the watched tree, or on the private deny list, are
ignored and exit successfully.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if watch.Denied(cfg.Root, args[0]) {
			return
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

		topic, err := router.Dispatch(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error processing %s: %v\n", args[0], err)
			os.Exit(1)
		}
		if topic == "" {
			return
		}
		fmt.Println(topic)
	},
}

func init() {
	rootCmd.AddCommand(notifyCmd)
}
