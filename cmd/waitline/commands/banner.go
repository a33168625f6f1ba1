package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/waitline/waitline/config"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(cfg *config.Config) {
	pterm.DefaultBox.
		WithTitle("waitline").
		WithTitleTopCenter().
		Println("queue admission · ticket lifecycle · live wait estimates")

	pterm.Info.Printf("Version:  %s\n", Version)
	pterm.Info.Printf("Port:     %d\n", cfg.Server.Port)
	pterm.Info.Printf("Database: %s\n", cfg.Database.Path)
	pterm.Info.Printf("Lookback: %dh\n", cfg.Estimator.LookbackHours)
	fmt.Println()
	pterm.Println(pterm.LightBlue("Press Ctrl+C to stop"))
}
