package main

import (
	"os"

	"github.com/spf13/cobra"

	"meshbridge/internal/interfaces/cli/importtags"
	"meshbridge/internal/interfaces/cli/server"
	"meshbridge/internal/interfaces/cli/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "meshbridge",
		Short: "MeshCore radio mesh bridge",
		Long:  `Meshbridge connects a MeshCore companion radio to the local network: it ingests the device event stream into a queryable store, fans events out to webhooks and websocket clients, and queues outbound commands toward the radio.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		importtags.NewCommand(),
		version.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
