// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"github.com/spf13/cobra"
)

type rootFlagsDefinition struct {
	Environment  string
	Cwd          string
	Subscription string
	Debug        bool
}

var rootFlags rootFlagsDefinition

// NewRootCommand builds the devhub command tree. The serve command hosts the
// bridge the desktop shell talks to, the remaining commands are headless
// equivalents over the same engines.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "devhub <command> [options]",
		Short:         "Local control panel backend for Mystira development.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.PersistentFlags().StringVarP(
		&rootFlags.Environment,
		"environment",
		"e",
		"dev",
		"The target environment.",
	)
	rootCmd.PersistentFlags().StringVarP(
		&rootFlags.Cwd,
		"cwd",
		"C",
		".",
		"Sets the current working directory.",
	)
	rootCmd.PersistentFlags().StringVar(
		&rootFlags.Subscription,
		"subscription",
		"",
		"The Azure subscription to operate against.",
	)
	rootCmd.PersistentFlags().BoolVar(
		&rootFlags.Debug,
		"debug",
		false,
		"Enable debug mode",
	)

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newInfraCommand())
	rootCmd.AddCommand(newServicesCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
