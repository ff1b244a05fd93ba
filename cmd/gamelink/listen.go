package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fieldhunt/gamelink/realtime"
)

func listenCmd() *cobra.Command {
	var (
		device    string
		healthURL string
	)

	cmd := &cobra.Command{
		Use:   "listen <base-url>",
		Short: "Connect as a live client and print events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

			opts := []realtime.Option{realtime.WithLogger(logger)}
			if device != "" {
				opts = append(opts, realtime.WithDeviceUUID(device))
			}
			client := realtime.New(args[0], opts...)
			defer client.Disconnect()

			client.OnStateChange(func(ev realtime.StateEvent) {
				if ev.Err != nil {
					fmt.Printf("state: %s -> %s (%v)\n", ev.Old, ev.New, ev.Err)
					return
				}
				fmt.Printf("state: %s -> %s\n", ev.Old, ev.New)
			})

			printEvent := func(name string) func(any) {
				return func(v any) { fmt.Printf("event: %s %+v\n", name, v) }
			}
			for _, name := range []string{
				realtime.EventObjectCollected,
				realtime.EventObjectUncollected,
				realtime.EventAllFindsReset,
				realtime.EventObjectCreated,
				realtime.EventObjectDeleted,
				realtime.EventNPCCreated,
				realtime.EventNPCUpdated,
				realtime.EventNPCDeleted,
				realtime.EventLocationInterval,
				realtime.EventGameModeChanged,
				realtime.EventAdminPing,
			} {
				client.On(name, printEvent(name))
			}

			if err := client.Connect(); err != nil {
				return err
			}

			var poller *realtime.HealthPoller
			if healthURL != "" {
				poller = realtime.NewHealthPoller(client, healthURL)
				poller.Start()
				defer poller.Stop()
			}

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			return nil
		},
	}

	cmd.Flags().StringVar(&device, "device", "", "device UUID for register_device (default: generated)")
	cmd.Flags().StringVar(&healthURL, "health", "", "poll this HTTP health endpoint to drive reconnects")

	return cmd
}
