package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-preview"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "formflux",
		Short: "FormFlux - Flux-style form state for Go UIs",
		Long: `FormFlux is a flux-style state management layer for form-heavy Go
applications: action creators, a synchronous dispatcher, a form store,
and a live protocol for mirroring form actions to a server.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	// Add commands
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTailCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
