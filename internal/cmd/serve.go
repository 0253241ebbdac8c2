// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/mystira/devhub/internal/bridge"
	"github.com/mystira/devhub/internal/provisioning"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	host string
	port int
}

func newServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the command bridge for the desktop shell.",
		Long: heredoc.Doc(`
			Host the websocket command bridge the desktop shell connects to.

			The bridge exposes every panel operation as a named command and pushes
			service log and status events to connected shells. Infrastructure
			template changes under the environment's deployment directory reset
			the readiness session automatically.

			The server runs until interrupted.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.host, "host", "127.0.0.1", "The address to bind to.")
	cmd.Flags().IntVar(&flags.port, "port", 8765, "The port to listen on.")

	return cmd
}

func runServe(cmd *cobra.Command, flags *serveFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newHost(ctx, rootFlags)
	if err != nil {
		return err
	}

	dispatcher := bridge.NewDispatcher()
	bridge.RegisterAll(dispatcher, app.components)

	watcher := provisioning.NewTemplateWatcher(app.engine.DeploymentDir(), app.engine.Session())
	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Printf("template watcher disabled: %v", err)
		}
	}()

	defer func() {
		if err := app.manager.StopAll(cmd.Context()); err != nil {
			log.Printf("stopping services: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", flags.host, flags.port)
	color.Cyan("DevHub bridge listening on ws://%s/ws", addr)

	server := bridge.NewServer(dispatcher, app.manager, 0)
	return server.Serve(ctx, addr)
}
