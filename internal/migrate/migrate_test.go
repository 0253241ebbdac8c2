// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mystira/devhub/pkg/exec"
	"github.com/mystira/devhub/test/mocks/mockexec"
)

// fakeCosmos is an in-memory document store keyed by connection string, so a
// wizard under test sees distinct source and destination accounts.
type fakeCosmos struct {
	documents map[string]Record
	failIds   map[string]bool
	listErr   error
}

func (f *fakeCosmos) ListDocuments(_ context.Context, _ string, _ string) ([]Record, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}

	var docs []Record
	for _, doc := range f.documents {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (f *fakeCosmos) UpsertDocument(_ context.Context, _ string, _ string, _ string, doc Record) error {
	if f.failIds[doc.Id()] {
		return fmt.Errorf("write denied for %s", doc.Id())
	}

	f.documents[doc.Id()] = doc
	return nil
}

func testWizard(accounts map[string]*fakeCosmos) *Wizard {
	return &Wizard{
		blobs: NewBlobStore(mockexec.NewMockCommandRunner()),
		newCosmos: func(connectionString string) (cosmosConn, error) {
			account, ok := accounts[connectionString]
			if !ok {
				return nil, fmt.Errorf("unknown account %s", connectionString)
			}
			return account, nil
		},
	}
}

func cosmosSpec() Spec {
	return Spec{
		Kind:                   KindCosmos,
		SourceCosmosConnection: "source",
		DestCosmosConnection:   "dest",
		DatabaseName:           "appdb",
		ContainerName:          "profiles",
	}
}

func Test_Spec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr string
	}{
		{"unknown kind", func(s *Spec) { s.Kind = "files" }, "unknown migration type"},
		{"missing cosmos conns", func(s *Spec) { s.DestCosmosConnection = "" }, "connection strings"},
		{"missing container", func(s *Spec) { s.ContainerName = "" }, "container name"},
		{"missing database", func(s *Spec) { s.DatabaseName = "" }, "database name"},
		{
			"overwrite without confirmation",
			func(s *Spec) { s.Overwrite = true },
			"requires typing OVERWRITE",
		},
		{
			"overwrite with wrong confirmation",
			func(s *Spec) { s.Overwrite = true; s.Confirmation = "overwrite" },
			"requires typing OVERWRITE",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			spec := cosmosSpec()
			test.mutate(&spec)

			err := spec.validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), test.wantErr)
		})
	}

	require.NoError(t, cosmosSpec().validate())
}

func Test_Run_CosmosSkipsExisting(t *testing.T) {
	source := &fakeCosmos{documents: map[string]Record{
		"a": {"id": "a", "name": "Avery", "_rid": "sys"},
		"b": {"id": "b", "name": "Blake"},
		"c": {"id": "c", "name": "Casey"},
	}}
	dest := &fakeCosmos{documents: map[string]Record{
		"b": {"id": "b", "name": "stale"},
	}}

	wizard := testWizard(map[string]*fakeCosmos{"source": source, "dest": dest})

	report, err := wizard.Run(context.Background(), cosmosSpec())
	require.NoError(t, err)
	require.True(t, report.Ok())
	require.Equal(t, 2, report.Copied)
	require.Equal(t, 1, report.Skipped)

	// Existing record was not touched, system fields were stripped.
	require.Equal(t, "stale", dest.documents["b"]["name"])
	require.NotContains(t, dest.documents["a"], "_rid")
}

func Test_Run_CosmosOverwrite(t *testing.T) {
	source := &fakeCosmos{documents: map[string]Record{
		"b": {"id": "b", "name": "Blake"},
	}}
	dest := &fakeCosmos{documents: map[string]Record{
		"b": {"id": "b", "name": "stale"},
	}}

	wizard := testWizard(map[string]*fakeCosmos{"source": source, "dest": dest})

	spec := cosmosSpec()
	spec.Overwrite = true
	spec.Confirmation = OverwriteConfirmation

	report, err := wizard.Run(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, 1, report.Copied)
	require.Equal(t, "Blake", dest.documents["b"]["name"])
}

func Test_Run_CollectsPerItemFailures(t *testing.T) {
	source := &fakeCosmos{documents: map[string]Record{
		"a": {"id": "a"},
		"b": {"id": "b"},
		"c": {"id": "c"},
	}}
	dest := &fakeCosmos{
		documents: map[string]Record{},
		failIds:   map[string]bool{"b": true},
	}

	wizard := testWizard(map[string]*fakeCosmos{"source": source, "dest": dest})

	report, err := wizard.Run(context.Background(), cosmosSpec())
	require.NoError(t, err)
	require.False(t, report.Ok())
	require.Equal(t, 2, report.Copied)
	require.Len(t, report.Failures, 1)
	require.Equal(t, "b", report.Failures[0].Id)
	require.Contains(t, report.Failures[0].Error, "write denied")
}

func Test_Run_Storage(t *testing.T) {
	runner := mockexec.NewMockCommandRunner()

	var commands []string
	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "az storage container create") ||
			strings.Contains(command, "az storage blob copy start-batch")
	}).RespondFn(func(args exec.RunArgs) (exec.RunResult, error) {
		commands = append(commands, strings.Join(append([]string{args.Cmd}, args.Args...), " "))
		return exec.NewRunResult(0, "", ""), nil
	})

	runner.When(func(args exec.RunArgs, command string) bool {
		return strings.Contains(command, "az storage blob list")
	}).Respond(exec.NewRunResult(0, `[{"name": "media/a.png"}, {"name": "media/b.png"}]`, ""))

	wizard := NewWizard(runner)

	report, err := wizard.Run(context.Background(), Spec{
		Kind:                    KindStorage,
		SourceStorageConnection: "src-conn",
		DestStorageConnection:   "dst-conn",
		ContainerName:           "media",
	})
	require.NoError(t, err)
	require.Equal(t, 2, report.Copied)
	require.Len(t, commands, 2)
	require.Contains(t, commands[1], "--source-container media")
}

func Test_Export(t *testing.T) {
	source := &fakeCosmos{documents: map[string]Record{
		"a": {"id": "a", "name": "Avery", "age": 30.0, "_etag": "sys"},
	}}
	wizard := testWizard(map[string]*fakeCosmos{"source": source})

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "out.json")
	count, err := wizard.Export(context.Background(), cosmosSpec(), jsonPath)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var exported []Record
	require.NoError(t, json.Unmarshal(raw, &exported))
	require.Len(t, exported, 1)
	require.Equal(t, "Avery", exported[0]["name"])

	csvPath := filepath.Join(dir, "out.csv")
	_, err = wizard.Export(context.Background(), cosmosSpec(), csvPath)
	require.NoError(t, err)

	content, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Equal(t, "age,id,name", lines[0])
	require.Equal(t, "30,a,Avery", lines[1])

	_, err = wizard.Export(context.Background(), cosmosSpec(), filepath.Join(dir, "out.xml"))
	require.Error(t, err)
}

func Test_CosmosStats(t *testing.T) {
	source := &fakeCosmos{documents: map[string]Record{
		"a": {"id": "a"},
		"b": {"id": "b"},
	}}
	wizard := testWizard(map[string]*fakeCosmos{"source": source})

	stats, err := wizard.CosmosStats(context.Background(), "source", "appdb", []string{"profiles"})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Containers["profiles"])
}
