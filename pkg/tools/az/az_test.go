// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package az

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mystira/devhub/pkg/exec"
	"github.com/mystira/devhub/test/mocks/mockexec"
)

func Test_Account(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "az account show")
	}).Respond(exec.NewRunResult(0, `{
		"id": "sub-1",
		"name": "Dev Subscription",
		"tenantId": "tenant-1",
		"user": {"name": "dev@mystira.io", "type": "user"}
	}`, ""))

	cli := NewCli(runner)
	account, err := cli.Account(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sub-1", account.Id)
	require.Equal(t, "dev@mystira.io", account.User.Name)
}

func Test_Account_NotLoggedIn(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "az account show")
	}).RespondFn(func(args exec.RunArgs) (exec.RunResult, error) {
		res := exec.NewRunResult(1, "", "Please run 'az login' to setup account.")
		return res, exec.NewExitError(res.ExitCode, args.Cmd, res.Stdout, res.Stderr)
	})

	cli := NewCli(runner)
	_, err := cli.Account(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "az login")
}

func Test_GroupExists(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "az group exists")
	}).Respond(exec.NewRunResult(0, "true\n", ""))

	cli := NewCli(runner)
	exists, err := cli.GroupExists(context.Background(), "dev-mystira-rg")
	require.NoError(t, err)
	require.True(t, exists)
}

func Test_WhatIfArgs(t *testing.T) {
	var captured exec.RunArgs

	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "deployment group what-if")
	}).RespondFn(func(args exec.RunArgs) (exec.RunResult, error) {
		captured = args
		return exec.NewRunResult(0, `{"changes": []}`, ""), nil
	})

	cli := NewCli(runner)
	result, err := cli.WhatIf(context.Background(), DeploymentArgs{
		ResourceGroup:  "dev-mystira-rg",
		TemplateFile:   "main.bicep",
		ParametersFile: "params-preview.json",
		Cwd:            "/repo/deployment/dev",
	})

	require.NoError(t, err)
	require.Equal(t, `{"changes": []}`, result.Stdout)
	require.Equal(t, "/repo/deployment/dev", captured.Cwd)
	require.Contains(t, captured.Args, "--resource-group")
	require.Contains(t, captured.Args, "@params-preview.json")
}

func Test_DeployUsesIncrementalMode(t *testing.T) {
	var captured exec.RunArgs

	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "deployment group create")
	}).RespondFn(func(args exec.RunArgs) (exec.RunResult, error) {
		captured = args
		return exec.NewRunResult(0, `{"properties": {"provisioningState": "Succeeded"}}`, ""), nil
	})

	cli := NewCli(runner)
	_, err := cli.Deploy(context.Background(), DeploymentArgs{
		ResourceGroup:  "dev-mystira-rg",
		TemplateFile:   "main.bicep",
		ParametersFile: "params.json",
		Name:           "app-dev-1700000000",
	})

	require.NoError(t, err)
	require.Contains(t, strings.Join(captured.Args, " "), "--mode Incremental")
	require.Contains(t, captured.Args, "app-dev-1700000000")
}

func Test_ListResources(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "az resource list")
	}).Respond(exec.NewRunResult(0, `[
		{
			"id": "/subscriptions/sub/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/mydata001",
			"name": "mydata001",
			"type": "Microsoft.Storage/storageAccounts",
			"location": "westeurope",
			"resourceGroup": "dev-mystira-rg",
			"properties": {"provisioningState": "Succeeded"}
		}
	]`, ""))

	cli := NewCli(runner)
	resources, err := cli.ListResources(context.Background(), "dev-mystira-rg")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	require.Equal(t, "mydata001", resources[0].Name)
	require.Equal(t, "Succeeded", resources[0].Properties.ProvisioningState)
}

func Test_TransientFailuresAreRetried(t *testing.T) {
	attempts := 0

	runner := mockexec.NewMockCommandRunner()
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "az group exists")
	}).RespondFn(func(args exec.RunArgs) (exec.RunResult, error) {
		attempts++
		if attempts < 3 {
			res := exec.NewRunResult(1, "", "connection reset by peer")
			return res, exec.NewExitError(res.ExitCode, args.Cmd, res.Stdout, res.Stderr)
		}
		return exec.NewRunResult(0, "false", ""), nil
	})

	cli := NewCli(runner)
	exists, err := cli.GroupExists(context.Background(), "dev-mystira-rg")
	require.NoError(t, err)
	require.False(t, exists)
	require.Equal(t, 3, attempts)
}
