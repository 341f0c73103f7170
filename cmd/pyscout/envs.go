package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/karrtikr/pyscout/internal/python"
)

var envsCmd = &cobra.Command{
	Use:   "envs",
	Short: "List discovered Python environments",
	Long: `List every Python environment reachable from the workspace.

The first run performs full discovery; later runs answer from the
on-disk cache while discovery refreshes it in the background. Partial
entries have been seen on disk but not yet executed, complete entries
carry the interpreter's reported version and architecture.

Examples:
  pyscout envs                 # List environments
  pyscout envs --refresh       # Re-run discovery and wait for it
  pyscout envs --json          # Machine-readable output
  pyscout envs --watch         # Keep running, re-discover on changes`,
	Run: func(cmd *cobra.Command, args []string) {
		refresh, _ := cmd.Flags().GetBool("refresh")
		asJSON, _ := cmd.Flags().GetBool("json")
		watch, _ := cmd.Flags().GetBool("watch")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		app, err := newApp()
		if err != nil {
			fail(err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var records []python.Record
		if refresh {
			records = app.coll.Refresh(ctx)
		} else {
			records = app.coll.Environments(ctx)
		}

		if asJSON {
			out, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				fail(err)
			}
			fmt.Println(string(out))
		} else {
			printRecords(records)
		}

		if watch {
			watchEnvironments(app)
		}
	},
}

func printRecords(records []python.Record) {
	if len(records) == 0 {
		fmt.Println("No Python environments found.")
		return
	}

	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	for _, rec := range records {
		marker := yellow("…")
		version := "pending"
		if rec.Tier == python.TierComplete {
			marker = green("✓")
			version = rec.Version.String()
			if rec.Architecture != python.ArchUnknown {
				version += " " + string(rec.Architecture)
			}
		}
		label := string(rec.Kind)
		if rec.EnvName != "" {
			label += ":" + rec.EnvName
		}
		fmt.Printf("%s %-12s %-20s %s\n", marker, cyan(label), version, rec.Path)
	}
	fmt.Printf("\n%d environment(s)\n", len(records))
}

// watchEnvironments blocks, printing change events as filesystem
// activity triggers re-discovery.
func watchEnvironments(app *app) {
	if err := app.coll.Watch(settings.WatcherSettle); err != nil {
		fail(fmt.Errorf("starting watcher: %w", err))
	}
	events := app.coll.Subscribe()
	fmt.Fprintln(os.Stderr, "Watching for environment changes (Ctrl-C to stop)...")
	for ev := range events {
		fmt.Printf("%s %s %s\n", time.Now().Format("15:04:05"), ev.Reason, ev.Path)
	}
}

func init() {
	envsCmd.Flags().Bool("refresh", false, "Re-run discovery to completion, pruning vanished interpreters")
	envsCmd.Flags().Bool("json", false, "Emit JSON instead of a table")
	envsCmd.Flags().Bool("watch", false, "Stay running and report environment changes")
	envsCmd.Flags().Duration("timeout", 60*time.Second, "Overall discovery timeout")
	rootCmd.AddCommand(envsCmd)
}
