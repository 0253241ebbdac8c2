// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/mystira/devhub/internal/services"
	"github.com/spf13/cobra"
)

type servicesFlags struct {
	address string
}

func newServicesCommand() *cobra.Command {
	flags := &servicesFlags{}

	cmd := &cobra.Command{
		Use:   "services",
		Short: "Manage the local development services.",
		Long: heredoc.Doc(`
			Manage the local development services declared in devhub.yaml.

			When a bridge is running, list and stop address the services it
			supervises. Start runs services in the foreground of the current
			terminal and stops them on interrupt.`),
	}

	cmd.PersistentFlags().StringVar(
		&flags.address, "address", "127.0.0.1:8765", "The address of a running bridge.")

	cmd.AddCommand(newServicesListCommand(flags))
	cmd.AddCommand(newServicesStartCommand())
	cmd.AddCommand(newServicesStopCommand(flags))

	return cmd
}

func newServicesListCommand(flags *servicesFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List services and their status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if statuses, err := remoteStatuses(cmd.Context(), flags.address); err == nil {
				printStatuses(cmd, statuses)
				return nil
			}

			// No bridge running, fall back to the manifest.
			app, err := newHost(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}

			printStatuses(cmd, app.manager.Statuses())
			return nil
		},
	}
}

func newServicesStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start [service...]",
		Short: "Build and run services in the foreground.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newHost(ctx, rootFlags)
			if err != nil {
				return err
			}

			unsubscribe := app.manager.Subscribe(func(event services.LogEvent) {
				line := fmt.Sprintf("[%s] %s", event.Service, event.Message)
				if event.Type == "stderr" {
					color.Yellow("%s", line)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			})
			defer unsubscribe()

			if len(args) == 0 {
				if err := app.manager.StartAll(ctx); err != nil {
					return err
				}
			} else {
				for _, name := range args {
					if _, err := app.manager.Start(ctx, name); err != nil {
						return err
					}
				}
			}

			printStatuses(cmd, app.manager.Statuses())
			color.White("Press Ctrl+C to stop.")

			<-ctx.Done()
			return app.manager.StopAll(cmd.Context())
		},
	}
}

func newServicesStopCommand(flags *servicesFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop [service]",
		Short: "Stop services supervised by a running bridge.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			command := "service.stop-all"
			var callArgs map[string]any
			if len(args) == 1 {
				command = "service.stop"
				callArgs = map[string]any{"name": args[0]}
			}

			response, err := callBridge(ctx, flags.address, command, callArgs)
			if err != nil {
				return err
			}
			if !response.Success {
				return fmt.Errorf("stopping services: %s", response.Error)
			}

			color.Green("Stopped.")
			return nil
		},
	}
}

// remoteStatuses fetches the service statuses from a running bridge.
func remoteStatuses(ctx context.Context, addr string) ([]services.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	response, err := callBridge(ctx, addr, "service.status", nil)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, fmt.Errorf("bridge error: %s", response.Error)
	}

	// Round-trip through JSON, the result arrives as []any.
	payload, err := json.Marshal(response.Result)
	if err != nil {
		return nil, err
	}

	var statuses []services.Status
	if err := json.Unmarshal(payload, &statuses); err != nil {
		return nil, err
	}

	return statuses, nil
}

func printStatuses(cmd *cobra.Command, statuses []services.Status) {
	for _, status := range statuses {
		if status.Running {
			color.Green("  %-12s running  pid %-7d %s", status.Name, status.Pid, status.Url)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-12s stopped\n", status.Name)
		}
	}
}
