package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/karrtikr/pyscout/internal/jupyter"
	"github.com/karrtikr/pyscout/internal/python"
)

var notebookCmd = &cobra.Command{
	Use:   "notebook",
	Short: "Resolve notebook tooling against discovered interpreters",
}

var notebookInterpreterCmd = &cobra.Command{
	Use:   "interpreter",
	Short: "Pick the interpreter that should run notebooks",
	Long: `Choose the best interpreter for running notebooks. The active
interpreter wins when it has ipykernel installed; otherwise every
discovered interpreter is scored by version closeness to the active
one and by kernel support.

Examples:
  pyscout notebook interpreter
  pyscout notebook interpreter --active /usr/bin/python3`,
	Run: func(cmd *cobra.Command, args []string) {
		active, _ := cmd.Flags().GetString("active")

		app, err := newApp()
		if err != nil {
			fail(err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if active != "" {
			app.jupyter.SetActiveInterpreter(python.NormalizePath(active))
		}

		best := app.jupyter.BestNotebookInterpreter(ctx)
		if best == nil {
			fail(fmt.Errorf("no Python interpreter can run notebooks; install ipykernel into an environment"))
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %s\n", cyan("Interpreter:"), best.Path)
		if best.Version != nil {
			fmt.Printf("%s %s\n", cyan("Version:"), best.Version.String())
		}
		if best.Kind != python.KindUnknown {
			fmt.Printf("%s %s\n", cyan("Kind:"), best.Kind)
		}
	},
}

var notebookCommandCmd = &cobra.Command{
	Use:   "command <notebook|nbconvert|kernelspec|ipykernel>",
	Short: "Show how a notebook tool would be invoked",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		active, _ := cmd.Flags().GetString("active")

		app, err := newApp()
		if err != nil {
			fail(err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		if active != "" {
			app.jupyter.SetActiveInterpreter(python.NormalizePath(active))
		}

		resolved, err := app.jupyter.Resolve(ctx, jupyter.CommandName(args[0]))
		if err != nil {
			fail(err)
		}

		exe, argv := resolved.Argv()
		fmt.Printf("%s", exe)
		for _, a := range argv {
			fmt.Printf(" %s", a)
		}
		fmt.Println()
	},
}

func init() {
	notebookInterpreterCmd.Flags().String("active", "", "Path of the currently selected interpreter")
	notebookCommandCmd.Flags().String("active", "", "Path of the currently selected interpreter")
	notebookCmd.AddCommand(notebookInterpreterCmd)
	notebookCmd.AddCommand(notebookCommandCmd)
	rootCmd.AddCommand(notebookCmd)
}
