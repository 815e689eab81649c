package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what has been indexed so far",
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

		ctx := context.Background()

		projects, err := st.Projects(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		historyCount, err := st.HistoryCount(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Println(titleStyle.Render("sessionwatch"))
		fmt.Println(dimStyle.Render("database: " + st.Path()))
		fmt.Println()

		if len(projects) == 0 {
			fmt.Println(dimStyle.Render("No projects indexed yet. Run 'sessionwatch sync' first."))
			return
		}

		fmt.Printf("%s\n", headerStyle.Render(fmt.Sprintf("%-40s %9s %9s %9s", "PROJECT", "SESSIONS", "MESSAGES", "COMMITS")))
		for _, p := range projects {
			commits, err := st.CommitCount(ctx, p.ID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			name := p.DisplayName
			if name == "" {
				name = p.Path
			}
			if len(name) > 40 {
				name = name[:37] + "..."
			}
			fmt.Println(valueStyle.Render(fmt.Sprintf("%-40s %9d %9d %9d",
				name, p.SessionCount, p.MessageCount, commits)))
		}

		fmt.Println()
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d prompt history entries", historyCount)))

		if _, updated, err := st.Stats(ctx); err == nil && !updated.IsZero() {
			fmt.Println(dimStyle.Render("stats snapshot from " + updated.Local().Format("2006-01-02 15:04:05")))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
