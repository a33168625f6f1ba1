package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/waitline/waitline/cmd/waitline/commands"
	"github.com/waitline/waitline/logger"
)

var rootCmd = &cobra.Command{
	Use:   "waitline",
	Short: "Waitline - queue admission and live wait-time service",
	Long: `Waitline manages physical and virtual waiting lines: tickets are
admitted under queue-specific gating rules, move through their lifecycle,
and every change is fanned out to live viewers over websockets.

Available commands:
  serve   - Start the waitline HTTP and websocket server
  db      - Manage the waitline database
  version - Show version information

Examples:
  waitline serve                 # Start the server
  waitline db migrate            # Apply pending migrations
  waitline db stats              # Show database statistics`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func main() {
	defer logger.Cleanup()

	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to a config file (default: waitline.toml lookup)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
