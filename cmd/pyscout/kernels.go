package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/karrtikr/pyscout/internal/python"
)

var kernelsCmd = &cobra.Command{
	Use:   "kernels",
	Short: "Inspect Jupyter kernel specs",
}

var kernelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed kernel specs",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fail(err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		specs := app.jupyter.ListKernelSpecs(ctx)
		if len(specs) == 0 {
			fmt.Println("No kernel specs found. Is jupyter installed in any environment?")
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		for _, spec := range specs {
			fmt.Printf("%-24s %-10s %-28s %s\n", cyan(spec.Name), spec.Language, spec.DisplayName, spec.ExecutablePath)
		}
	},
}

var kernelsMatchCmd = &cobra.Command{
	Use:   "match <interpreter-path>",
	Short: "Find the kernel spec matching an interpreter",
	Long: `Score every installed kernel spec against the given interpreter and
print the best match. When nothing matches, a fresh spec is generated
with ipykernel if the interpreter supports it.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := newApp()
		if err != nil {
			fail(err)
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		app.jupyter.SetActiveInterpreter(python.NormalizePath(args[0]))
		spec := app.jupyter.MatchingKernelSpec(ctx)
		if spec == nil {
			fail(fmt.Errorf("no usable kernel spec for %s", args[0]))
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s %s\n", cyan("Name:"), spec.Name)
		fmt.Printf("%s %s\n", cyan("Display name:"), spec.DisplayName)
		fmt.Printf("%s %s\n", cyan("Language:"), spec.Language)
		fmt.Printf("%s %s\n", cyan("Interpreter:"), spec.ExecutablePath)
		if spec.SpecFile != "" {
			fmt.Printf("%s %s\n", cyan("Spec file:"), spec.SpecFile)
		}
	},
}

func init() {
	kernelsCmd.AddCommand(kernelsListCmd)
	kernelsCmd.AddCommand(kernelsMatchCmd)
	rootCmd.AddCommand(kernelsCmd)
}
