// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"github.com/fatih/color"
	"github.com/mystira/devhub/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the version of devhub.",
		RunE: func(cmd *cobra.Command, args []string) error {
			color.Cyan("DevHub")
			color.White("Version: %s", version.Version)
			return nil
		},
	}
}
