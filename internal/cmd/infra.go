// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/mystira/devhub/internal/provisioning"
	"github.com/mystira/devhub/pkg/infra"
	"github.com/spf13/cobra"
)

func newInfraCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infra",
		Short: "Plan and execute infrastructure changes.",
		Long: heredoc.Doc(`
			Plan and execute infrastructure changes for an environment.

			Every mutating operation runs the full readiness chain: validate the
			templates, preview the planned changes, then deploy. Preview findings
			that need acknowledgement are shown and confirmed inline.`),
	}

	cmd.AddCommand(newInfraValidateCommand())
	cmd.AddCommand(newInfraPreviewCommand())
	cmd.AddCommand(newInfraDeployCommand())
	cmd.AddCommand(newInfraDestroyCommand())
	cmd.AddCommand(newInfraStatusCommand())

	return cmd
}

func newInfraValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the environment's infrastructure templates.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newHost(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}

			result, err := app.engine.Validate(cmd.Context())
			if err != nil {
				return err
			}

			for _, warning := range result.Warnings {
				color.Yellow("warning: %s", warning)
			}

			color.Green("Validation passed for environment %s.", rootFlags.Environment)
			return nil
		},
	}
}

func newInfraPreviewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Preview the planned infrastructure changes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newHost(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}

			preview, err := runPreviewChain(cmd.Context(), app.engine)
			if err != nil {
				return err
			}

			printChanges(preview.Changes)
			return nil
		},
	}
}

func newInfraDeployCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the environment's infrastructure.",
		Long: heredoc.Doc(`
			Deploy the environment's infrastructure templates.

			The deployment runs in incremental mode, resources the templates do
			not mention are never deleted. Validation and preview run first and
			their findings are shown before anything is changed.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newHost(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}

			preview, err := runPreviewChain(cmd.Context(), app.engine)
			if err != nil {
				return err
			}

			printChanges(preview.Changes)

			session := app.engine.Session()
			for _, warning := range session.Warnings() {
				if warning.Dismissed {
					continue
				}
				if warning.Kind == infra.FailureNamingCollision {
					return fmt.Errorf(
						"resource name %q is already taken, remove the conflicting resource and preview again",
						warning.ResourceName)
				}
				color.Yellow("warning: %s", warning.Message)
				if err := session.DismissWarning(warning.Kind); err != nil {
					return err
				}
			}

			result, err := app.engine.Deploy(cmd.Context())
			if err != nil {
				return err
			}

			color.Green("Deployment %s to %s succeeded.", result.Name, result.ResourceGroup)
			return nil
		},
	}
}

type infraDestroyFlags struct {
	force bool
}

func newInfraDestroyCommand() *cobra.Command {
	flags := &infraDestroyFlags{}

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the environment's resource group.",
		Long: heredoc.Docf(`
			Delete the environment's resource group and everything in it.

			This operation is irreversible. It prompts for the literal
			confirmation text %q unless --force is passed.`, provisioning.DestroyConfirmation),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newHost(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}

			confirmation := provisioning.DestroyConfirmation
			if !flags.force {
				color.Red(
					"This deletes resource group %s and every resource in it.",
					app.engine.ResourceGroup())
				fmt.Fprintf(cmd.OutOrStdout(), "Type %s to confirm: ", provisioning.DestroyConfirmation)

				reader := bufio.NewReader(cmd.InOrStdin())
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("reading confirmation: %w", err)
				}
				confirmation = strings.TrimSpace(line)
			}

			if err := app.engine.Destroy(cmd.Context(), confirmation); err != nil {
				return err
			}

			color.Green("Resource group %s deleted.", app.engine.ResourceGroup())
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false, "Skip the confirmation prompt.")

	return cmd
}

func newInfraStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the health of the environment's infrastructure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newHost(cmd.Context(), rootFlags)
			if err != nil {
				return err
			}

			snapshot, err := app.engine.Status(cmd.Context())
			if err != nil {
				return err
			}

			if !snapshot.Exists {
				color.Yellow("Resource group %s does not exist.", snapshot.ResourceGroup)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d resources)\n",
				snapshot.ResourceGroup, snapshot.ResourceCount)
			for module, health := range snapshot.Modules {
				healthColor(health).Printf("  %-10s %s\n", module, health)
			}

			return nil
		},
	}
}

// runPreviewChain runs validate then preview, the readiness chain a one-shot
// invocation needs before any preview-derived output.
func runPreviewChain(ctx context.Context, engine *provisioning.Engine) (*provisioning.PreviewResult, error) {
	if _, err := engine.Validate(ctx); err != nil {
		return nil, err
	}

	return engine.Preview(ctx)
}

func printChanges(changes []infra.ResourceChange) {
	if len(changes) == 0 {
		color.White("No changes.")
		return
	}

	for _, change := range changes {
		changeColor(change.ChangeType).Printf(
			"  %-8s %s (%s)\n", change.ChangeType, change.ResourceName, change.ResourceType)
	}
}

func changeColor(changeType infra.ChangeType) *color.Color {
	switch changeType {
	case infra.ChangeTypeCreate:
		return color.New(color.FgGreen)
	case infra.ChangeTypeDelete:
		return color.New(color.FgRed)
	case infra.ChangeTypeModify:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}

func healthColor(health provisioning.Health) *color.Color {
	switch health {
	case provisioning.HealthHealthy:
		return color.New(color.FgGreen)
	case provisioning.HealthUnhealthy:
		return color.New(color.FgRed)
	case provisioning.HealthDegraded:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgWhite)
	}
}
