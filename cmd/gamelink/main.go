package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gamelink",
		Short: "Realtime sync client and connectivity diagnostics",
		Long: `gamelink drives and diagnoses the realtime event link between a device
and the game server.

  • diagnose: probe one endpoint with a throwaway connection
  • scan:     find the working port among a candidate list
  • listen:   connect as a live client and print events`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		diagnoseCmd(),
		scanCmd(),
		listenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
