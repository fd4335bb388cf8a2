package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recera/formflux/cmd/formflux/internal/ui"
)

func newTailCommand() *cobra.Command {
	var addr string
	var livePath string
	var session string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream form actions from a running server",
		Long: `Connects to a FormFlux server in tail mode and renders every form
action the server processes, live, in an interactive terminal view.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			url := fmt.Sprintf("ws://%s%s%s?mode=tail", addr, livePath, session)
			return ui.RunTailTUI(url)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "localhost:8090", "Server address")
	cmd.Flags().StringVar(&livePath, "live-path", "/formflux/live/", "Live endpoint prefix")
	cmd.Flags().StringVar(&session, "session", "tail-cli", "Tail session ID")

	return cmd
}
