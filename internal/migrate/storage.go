// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package migrate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mystira/devhub/pkg/exec"
)

// BlobStore copies blobs between storage accounts through the Azure CLI,
// which accepts connection strings directly.
type BlobStore struct {
	runner exec.CommandRunner
}

func NewBlobStore(runner exec.CommandRunner) *BlobStore {
	return &BlobStore{runner: runner}
}

// Blob is one entry from `az storage blob list`.
type Blob struct {
	Name string `json:"name"`
	Properties struct {
		ContentLength int64  `json:"contentLength"`
		LastModified  string `json:"lastModified"`
	} `json:"properties"`
}

// List returns the container's blobs. Connection strings never appear on the
// process command line unredacted in debug output.
func (s *BlobStore) List(ctx context.Context, connectionString string, container string) ([]Blob, error) {
	args := exec.NewRunArgs(
		"az", "storage", "blob", "list",
		"--connection-string", connectionString,
		"--container-name", container,
		"--num-results", "*",
		"--output", "json").
		WithSensitiveData([]string{connectionString})

	result, err := s.runner.Run(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("failed listing blobs in %s: %w", container, err)
	}

	var blobs []Blob
	if err := json.Unmarshal([]byte(result.Stdout), &blobs); err != nil {
		return nil, fmt.Errorf("could not unmarshal blob list output: %w", err)
	}

	return blobs, nil
}

// CopyAll server-side copies every blob of the source container into the
// destination container, creating the destination when needed.
func (s *BlobStore) CopyAll(
	ctx context.Context,
	sourceConnection string,
	destConnection string,
	container string,
) error {
	create := exec.NewRunArgs(
		"az", "storage", "container", "create",
		"--connection-string", destConnection,
		"--name", container,
		"--output", "none").
		WithSensitiveData([]string{destConnection})
	if _, err := s.runner.Run(ctx, create); err != nil {
		return fmt.Errorf("failed creating destination container %s: %w", container, err)
	}

	copyBatch := exec.NewRunArgs(
		"az", "storage", "blob", "copy", "start-batch",
		"--source-connection-string", sourceConnection,
		"--connection-string", destConnection,
		"--source-container", container,
		"--destination-container", container).
		WithSensitiveData([]string{sourceConnection, destConnection})
	if _, err := s.runner.Run(ctx, copyBatch); err != nil {
		return fmt.Errorf("failed copying blobs in %s: %w", container, err)
	}

	return nil
}

// Count returns the number of blobs in the container.
func (s *BlobStore) Count(ctx context.Context, connectionString string, container string) (int, error) {
	blobs, err := s.List(ctx, connectionString, container)
	if err != nil {
		return 0, err
	}

	return len(blobs), nil
}
