package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/waitline/waitline/errors"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the waitline database",
	Long: `Manage database operations: apply migrations and inspect
queue, ticket, and event-log statistics.

Examples:
  waitline db migrate   # Apply pending migrations
  waitline db stats     # Show database statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	// OpenWithMigrations applies everything pending.
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database %s is up to date\n", cfg.Database.Path)
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	var queues, tickets, waiting, beingServed, history, events int
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM queues", &queues},
		{"SELECT COUNT(*) FROM tickets", &tickets},
		{"SELECT COUNT(*) FROM tickets WHERE status = 'WAITING'", &waiting},
		{"SELECT COUNT(*) FROM tickets WHERE status = 'BEING_SERVED'", &beingServed},
		{"SELECT COUNT(*) FROM queue_history", &history},
		{"SELECT COUNT(*) FROM events", &events},
	}
	for _, c := range counts {
		if err := database.QueryRow(c.query).Scan(c.dest); err != nil {
			return errors.Wrap(err, "failed to query statistics")
		}
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
	fmt.Printf("Database Path:    %s\n", cfg.Database.Path)
	fmt.Printf("Queues:           %d\n", queues)
	fmt.Printf("Live Tickets:     %d (%d waiting, %d being served)\n", tickets, waiting, beingServed)
	fmt.Printf("History Records:  %d\n", history)
	fmt.Printf("Logged Events:    %d\n", events)
	return nil
}
