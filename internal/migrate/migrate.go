// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package migrate implements the data migration wizard: copying records
// between database and storage environments, exporting container contents,
// and reporting record counts.
package migrate

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mystira/devhub/pkg/exec"
)

// Migration kinds.
const (
	KindCosmos  = "cosmos"
	KindStorage = "storage"
	KindBoth    = "both"
)

// OverwriteConfirmation is the exact text required before a migration may
// overwrite existing destination records.
const OverwriteConfirmation = "OVERWRITE"

// ErrOverwriteConfirmationRequired is returned when an overwriting migration
// does not carry the typed confirmation text.
var ErrOverwriteConfirmationRequired = fmt.Errorf(
	"overwriting destination data requires typing %s to confirm", OverwriteConfirmation)

// Spec describes one migration request.
type Spec struct {
	// Kind is cosmos, storage, or both.
	Kind string `json:"type"`

	SourceCosmosConnection  string `json:"sourceCosmosConnection,omitempty"`
	DestCosmosConnection    string `json:"destCosmosConnection,omitempty"`
	SourceStorageConnection string `json:"sourceStorageConnection,omitempty"`
	DestStorageConnection   string `json:"destStorageConnection,omitempty"`

	DatabaseName  string `json:"databaseName"`
	ContainerName string `json:"containerName"`

	// PartitionKey is the document field holding the partition key value,
	// defaults to id.
	PartitionKey string `json:"partitionKey,omitempty"`

	// Overwrite allows replacing records that already exist at the
	// destination. Requires the typed confirmation.
	Overwrite    bool   `json:"overwrite,omitempty"`
	Confirmation string `json:"confirmation,omitempty"`
}

func (s Spec) partitionKey() string {
	if s.PartitionKey != "" {
		return s.PartitionKey
	}
	return "id"
}

func (s Spec) validate() error {
	switch s.Kind {
	case KindCosmos:
		if s.SourceCosmosConnection == "" || s.DestCosmosConnection == "" {
			return fmt.Errorf("cosmos migration requires source and destination connection strings")
		}
	case KindStorage:
		if s.SourceStorageConnection == "" || s.DestStorageConnection == "" {
			return fmt.Errorf("storage migration requires source and destination connection strings")
		}
	case KindBoth:
		if s.SourceCosmosConnection == "" || s.DestCosmosConnection == "" ||
			s.SourceStorageConnection == "" || s.DestStorageConnection == "" {
			return fmt.Errorf("combined migration requires all four connection strings")
		}
	default:
		return fmt.Errorf("unknown migration type %q", s.Kind)
	}

	if s.ContainerName == "" {
		return fmt.Errorf("container name is required")
	}
	if (s.Kind == KindCosmos || s.Kind == KindBoth) && s.DatabaseName == "" {
		return fmt.Errorf("database name is required for cosmos migrations")
	}

	if s.Overwrite && s.Confirmation != OverwriteConfirmation {
		return ErrOverwriteConfirmationRequired
	}

	return nil
}

// ItemFailure records one record that could not be copied.
type ItemFailure struct {
	Id    string `json:"id"`
	Error string `json:"error"`
}

// Report is the all-settled outcome of a migration: every failure is
// collected, one bad record never aborts the rest.
type Report struct {
	Kind     string        `json:"type"`
	Copied   int           `json:"copied"`
	Skipped  int           `json:"skipped"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// Ok reports whether every record made it across.
func (r *Report) Ok() bool {
	return len(r.Failures) == 0
}

// cosmosConn is the document side of a migration, satisfied by CosmosClient.
type cosmosConn interface {
	ListDocuments(ctx context.Context, database string, container string) ([]Record, error)
	UpsertDocument(ctx context.Context, database string, container string, partitionKey string, document Record) error
}

// Wizard runs migrations and exports.
type Wizard struct {
	blobs *BlobStore

	// newCosmos is swapped in tests.
	newCosmos func(connectionString string) (cosmosConn, error)
}

func NewWizard(runner exec.CommandRunner) *Wizard {
	return &Wizard{
		blobs: NewBlobStore(runner),
		newCosmos: func(connectionString string) (cosmosConn, error) {
			return NewCosmosClient(connectionString)
		},
	}
}

// Run executes the migration described by the spec. Per-record failures are
// collected into the report rather than aborting, the error return is
// reserved for failures that prevent the migration from running at all.
func (w *Wizard) Run(ctx context.Context, spec Spec) (*Report, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	report := &Report{Kind: spec.Kind}

	if spec.Kind == KindCosmos || spec.Kind == KindBoth {
		if err := w.runCosmos(ctx, spec, report); err != nil {
			return nil, err
		}
	}

	if spec.Kind == KindStorage || spec.Kind == KindBoth {
		if err := w.blobs.CopyAll(
			ctx, spec.SourceStorageConnection, spec.DestStorageConnection, spec.ContainerName); err != nil {
			return nil, err
		}

		copied, err := w.blobs.Count(ctx, spec.SourceStorageConnection, spec.ContainerName)
		if err != nil {
			return nil, err
		}
		report.Copied += copied
	}

	return report, nil
}

func (w *Wizard) runCosmos(ctx context.Context, spec Spec, report *Report) error {
	source, err := w.newCosmos(spec.SourceCosmosConnection)
	if err != nil {
		return fmt.Errorf("invalid source connection: %w", err)
	}
	dest, err := w.newCosmos(spec.DestCosmosConnection)
	if err != nil {
		return fmt.Errorf("invalid destination connection: %w", err)
	}

	documents, err := source.ListDocuments(ctx, spec.DatabaseName, spec.ContainerName)
	if err != nil {
		return err
	}

	existing := map[string]bool{}
	if !spec.Overwrite {
		destDocs, err := dest.ListDocuments(ctx, spec.DatabaseName, spec.ContainerName)
		if err != nil {
			return err
		}
		for _, doc := range destDocs {
			existing[doc.Id()] = true
		}
	}

	for _, doc := range documents {
		if !spec.Overwrite && existing[doc.Id()] {
			report.Skipped++
			continue
		}

		if err := dest.UpsertDocument(
			ctx, spec.DatabaseName, spec.ContainerName, spec.partitionKey(), stripSystemFields(doc)); err != nil {
			report.Failures = append(report.Failures, ItemFailure{Id: doc.Id(), Error: err.Error()})
			continue
		}
		report.Copied++
	}

	return nil
}

// stripSystemFields drops the data plane's bookkeeping fields, the
// destination account assigns its own.
func stripSystemFields(doc Record) Record {
	cleaned := Record{}
	for name, value := range doc {
		if strings.HasPrefix(name, "_") {
			continue
		}
		cleaned[name] = value
	}

	return cleaned
}

// Export formats, by file extension of the output path.
const (
	formatJson = ".json"
	formatCsv  = ".csv"
)

// Export writes every document of the source container to the output path.
// The extension picks the format: .json for the raw documents, .csv for a
// flat table of the union of the documents' scalar fields.
func (w *Wizard) Export(ctx context.Context, spec Spec, outputPath string) (int, error) {
	if spec.SourceCosmosConnection == "" {
		return 0, fmt.Errorf("export requires a source connection string")
	}

	source, err := w.newCosmos(spec.SourceCosmosConnection)
	if err != nil {
		return 0, err
	}

	documents, err := source.ListDocuments(ctx, spec.DatabaseName, spec.ContainerName)
	if err != nil {
		return 0, err
	}

	switch {
	case strings.HasSuffix(outputPath, formatJson):
		err = exportJson(outputPath, documents)
	case strings.HasSuffix(outputPath, formatCsv):
		err = exportCsv(outputPath, documents)
	default:
		return 0, fmt.Errorf("unsupported export format for %s, use .json or .csv", outputPath)
	}
	if err != nil {
		return 0, err
	}

	return len(documents), nil
}

func exportJson(path string, documents []Record) error {
	encoded, err := json.MarshalIndent(documents, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, encoded, 0o644)
}

func exportCsv(path string, documents []Record) error {
	columns := map[string]bool{}
	for _, doc := range documents {
		for name := range doc {
			if strings.HasPrefix(name, "_") {
				continue
			}
			columns[name] = true
		}
	}

	header := make([]string, 0, len(columns))
	for name := range columns {
		header = append(header, name)
	}
	sort.Strings(header)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, doc := range documents {
		row := make([]string, len(header))
		for i, name := range header {
			row[i] = csvValue(doc[name])
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func csvValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

// Stats holds record counts per container.
type Stats struct {
	Database   string         `json:"database,omitempty"`
	Containers map[string]int `json:"containers"`
}

// CosmosStats counts the documents of each named container.
func (w *Wizard) CosmosStats(ctx context.Context, connectionString string, database string, containers []string) (*Stats, error) {
	client, err := w.newCosmos(connectionString)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Database: database, Containers: map[string]int{}}
	for _, container := range containers {
		documents, err := client.ListDocuments(ctx, database, container)
		if err != nil {
			return nil, err
		}
		stats.Containers[container] = len(documents)
	}

	return stats, nil
}

// StorageStats counts the blobs of each named container.
func (w *Wizard) StorageStats(ctx context.Context, connectionString string, containers []string) (*Stats, error) {
	stats := &Stats{Containers: map[string]int{}}
	for _, container := range containers {
		count, err := w.blobs.Count(ctx, connectionString, container)
		if err != nil {
			return nil, err
		}
		stats.Containers[container] = count
	}

	return stats, nil
}
