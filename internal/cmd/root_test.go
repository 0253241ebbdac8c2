// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_NewRootCommand(t *testing.T) {
	rootCmd := NewRootCommand()

	expected := []string{"serve", "infra", "services", "version"}
	for _, name := range expected {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		require.True(t, found, "missing %s command", name)
	}

	for _, flag := range []string{"environment", "cwd", "subscription", "debug"} {
		require.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), "missing --%s", flag)
	}
}

func Test_VersionCommand(t *testing.T) {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs([]string{"version"})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
}

func Test_InfraCommand_Subcommands(t *testing.T) {
	infraCmd := newInfraCommand()

	names := make([]string, 0, len(infraCmd.Commands()))
	for _, sub := range infraCmd.Commands() {
		names = append(names, sub.Name())
	}

	require.ElementsMatch(t,
		[]string{"validate", "preview", "deploy", "destroy", "status"}, names)
}
