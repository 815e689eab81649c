package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sessionwatch/sessionwatch/internal/gitlog"
	"github.com/sessionwatch/sessionwatch/internal/ingest"
	"github.com/sessionwatch/sessionwatch/internal/live"
	"github.com/sessionwatch/sessionwatch/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the session tree and serve live change notifications",
	Long: `Run the full pipeline as a daemon.

On startup the whole tree is scanned once to catch changes made while
the daemon was down, then the tree is watched continuously. Every
settled file change is parsed into the database and announced to
WebSocket subscribers on /ws.

Example usage:
  sessionwatch serve                       # defaults
  sessionwatch serve --listen :9000        # custom notification port
  sessionwatch serve --no-scan             # skip the startup scan`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.ListenAddr = listen
		}
		if noScan, _ := cmd.Flags().GetBool("no-scan"); noScan {
			cfg.ScanOnStart = false
		}

		st, err := openStore(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		server := live.NewServer(&live.Config{
			Addr:   cfg.ListenAddr,
			Logger: newLogger(cfg, "[live] "),
		})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting live server: %v\n", err)
			os.Exit(1)
		}

		importer := gitlog.NewImporter(st,
			&gitlog.CLI{Timeout: gitTimeout(cfg)},
			newLogger(cfg, "[gitlog] "))
		router := ingest.NewRouter(cfg.Root, st, importer, newLogger(cfg, "[ingest] "))

		coordinator, err := watch.NewWithConfig(cfg.Root, router, server, &watch.Config{
			DebounceInterval: cfg.Debounce,
			ScanOnStart:      cfg.ScanOnStart,
			Logger:           newLogger(cfg, "[watch] "),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Watching %s\n", cfg.Root)
		fmt.Printf("Database: %s\n", st.Path())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.Addr())

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := coordinator.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "live notification listen address")
	serveCmd.Flags().Bool("no-scan", false, "skip the startup catch-up scan")
	rootCmd.AddCommand(serveCmd)
}
