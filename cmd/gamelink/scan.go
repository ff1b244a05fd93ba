package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldhunt/gamelink/diag"
)

func scanCmd() *cobra.Command {
	var (
		ports  []int
		useTLS bool
	)

	cmd := &cobra.Command{
		Use:   "scan <host>",
		Short: "Find the working port among a candidate list",
		Long: `Probes every candidate port concurrently with its own throwaway
connection. The first port to complete the handshake is reported as the
working endpoint; the rest are listed with their failure causes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			prober := diag.NewProber()
			result := prober.ScanPorts(ctx, args[0], ports, useTLS)

			if result.Winner != nil {
				fmt.Printf("working endpoint: port %d (handshake %s)\n",
					result.WinnerPort, result.Winner.HandshakeLatency.Round(time.Millisecond))
			} else {
				fmt.Println("no working endpoint found")
			}
			for _, f := range result.Failures {
				if f.Connected {
					fmt.Printf("  port %d: handshake ok, completed after winner\n", f.Port)
					continue
				}
				fmt.Printf("  port %d: %v\n", f.Port, f.Err)
			}
			if result.Winner == nil {
				return diag.ErrNoWorkingPort
			}
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&ports, "ports", []int{8080, 3000, 5000}, "candidate ports to probe")
	cmd.Flags().BoolVar(&useTLS, "tls", false, "probe over https/wss")

	return cmd
}
