package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/karrtikr/pyscout/internal/python"
	"github.com/karrtikr/pyscout/internal/workerpool"
)

var infoCmd = &cobra.Command{
	Use:   "info <interpreter-path>",
	Short: "Show details for one interpreter",
	Long: `Execute the interpreter at the given path and report its version,
architecture and prefix, together with anything discovery knows about
the environment it belongs to.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fail(err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), settings.ShellTimeout+5*time.Second)
		defer cancel()

		path := python.NormalizePath(args[0])
		info := app.info.GetInfo(ctx, path, workerpool.PriorityFront)
		if info == nil {
			fail(fmt.Errorf("%s is not a runnable Python interpreter", path))
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %s\n", cyan("Path:"), info.Path)
		fmt.Printf("%s %s\n", cyan("Version:"), info.Version.String())
		fmt.Printf("%s %s\n", cyan("Architecture:"), info.Architecture)
		fmt.Printf("%s %s\n", cyan("Prefix:"), info.SysPrefix)

		if rec, ok := app.coll.Lookup(path); ok {
			fmt.Printf("%s %s\n", cyan("Kind:"), rec.Kind)
			if rec.EnvName != "" {
				fmt.Printf("%s %s\n", cyan("Environment:"), rec.EnvName)
			}
			fmt.Printf("%s %s\n", cyan("Found via:"), rec.Source)
		}
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
