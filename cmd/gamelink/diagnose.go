package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldhunt/gamelink/diag"
	"github.com/fieldhunt/gamelink/realtime"
)

func diagnoseCmd() *cobra.Command {
	var (
		timeout   time.Duration
		healthURL string
	)

	cmd := &cobra.Command{
		Use:   "diagnose <base-url>",
		Short: "Probe one endpoint with a throwaway connection",
		Long: `Opens a throwaway connection to the given base URL (http/https),
runs the full handshake, and reports handshake latency and whether a
heartbeat reply was observed. The probe never touches a live client.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if healthURL != "" {
				poller := realtime.NewHealthPoller(nil, healthURL)
				if err := poller.Check(); err != nil {
					fmt.Printf("health endpoint: UNHEALTHY (%v)\n", err)
				} else {
					fmt.Println("health endpoint: healthy")
				}
			}

			prober := diag.NewProber(diag.WithTimeout(timeout))
			result := prober.Probe(ctx, args[0])

			if result.Err != nil {
				fmt.Printf("connection:      FAILED (%v)\n", result.Err)
				return nil
			}
			fmt.Println("connection:      ok")
			fmt.Printf("handshake:       %s\n", result.HandshakeLatency.Round(time.Millisecond))
			if result.PongObserved {
				fmt.Println("heartbeat:       pong observed")
			} else {
				fmt.Println("heartbeat:       no pong within window")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "handshake timeout for the probe")
	cmd.Flags().StringVar(&healthURL, "health", "", "also check this HTTP health endpoint first")

	return cmd
}
