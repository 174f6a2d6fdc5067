// Package main provides the todoai CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	apiURL  string
	noColor bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "todoai",
		Short: "todoai - watch and steer remote todo execution",
		Long: `todoai: interactive client for the todo execution service.

Watches a todo's live event stream, pauses for approval before risky
actions run, and lets you inject follow-up instructions mid-stream.

Use 'todoai watch <todo-id>' for a one-shot watch.
Use 'todoai resume <todo-id>' to watch interactively with follow-ups.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Override service endpoint (default TODOAI_API_URL)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(watchCmd(), resumeCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("todoai %s\n", version)
		},
	}
}
