package main

import (
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/dwsmith1983/releasepub/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "publisher",
		Short: "Release publishing completion pipeline",
		Long: `publisher inspects release publishing attempts in the status store and
completes publishing for attempts whose content and files stages have finished:
methodologies, cache refresh, notifications, data sets and published events.`,
		Version: version,
	}
	root.PersistentFlags().StringVar(&commands.ConfigPath, "config", commands.ConfigPath, "path to publisher.yaml")

	root.AddCommand(
		commands.NewScheduledCmd(),
		commands.NewReadyCmd(),
		commands.NewStagesCmd(),
		commands.NewCompleteCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
