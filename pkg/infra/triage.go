// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package infra

import (
	"regexp"
	"strings"
)

// FailureKind classifies an opaque error payload from the infrastructure
// CLI. The collaborator provides no structured error codes, so every known
// condition is detected from text markers in one place. The rest of the
// system branches on the category only, never on raw text.
type FailureKind string

const (
	// FailureNone indicates a clean response.
	FailureNone FailureKind = "none"

	// FailureBenignDiffNoise is the known false positive where what-if
	// analysis cannot query nested database sub-resources that do not exist
	// yet. Dismissible, never blocks deployment.
	FailureBenignDiffNoise FailureKind = "benignDiffNoise"

	// FailureNamingCollision indicates a uniquely named resource already
	// exists under a different grouping. Blocks deployment until remediated
	// or explicitly dismissed.
	FailureNamingCollision FailureKind = "namingCollision"

	// FailureCliMissing indicates the cloud CLI binary could not be found.
	FailureCliMissing FailureKind = "cliMissing"

	// FailureNotLoggedIn indicates the CLI session has expired or was never
	// established.
	FailureNotLoggedIn FailureKind = "notLoggedIn"

	// FailureUnknown is any other non-empty error text.
	FailureUnknown FailureKind = "unknown"
)

// Failure is the classified form of an error payload.
type Failure struct {
	Kind    FailureKind
	Message string

	// ResourceName is the conflicting resource name for naming collisions,
	// when one could be extracted.
	ResourceName string
}

const (
	markerWhatIfError     = "DeploymentWhatIfResourceError"
	markerInvalidResponse = "DeploymentWhatIfResourceInvalidResponse"
	markerDocumentDB      = "Microsoft.DocumentDB"

	// What-if emits one error per nested sub-resource. More than this many
	// suggests something beyond the known nested resource noise.
	maxBenignErrors = 20
)

var cliMissingMarkers = []string{
	"is not recognized",
	"command not found",
	"program not found",
	"Azure CLI not found",
	"executable file not found",
}

var notLoggedInMarkers = []string{
	"az login",
	"AADSTS",
	"Please run 'az login'",
}

var collisionMarkers = []string{
	"AlreadyTaken",
	"is already taken",
	"already exists",
}

// collisionNamePatterns extract the conflicting resource name from known
// collision message forms, tried in order.
var collisionNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)named '?"?([a-z0-9][a-z0-9._-]*)'?"? (?:is already taken|already exists)`),
	regexp.MustCompile(`(?i)['"]([a-z0-9][a-z0-9._-]*)['"] (?:is already taken|already exists)`),
	regexp.MustCompile(`(?i)(?:account|resource|name) ['"]([^'"]+)['"]`),
}

// ClassifyFailure maps raw error text to a failure category. Empty input is
// a clean response.
func ClassifyFailure(text string) Failure {
	if strings.TrimSpace(text) == "" {
		return Failure{Kind: FailureNone}
	}

	if containsAny(text, cliMissingMarkers) {
		return Failure{Kind: FailureCliMissing, Message: text}
	}

	if containsAny(text, notLoggedInMarkers) {
		return Failure{Kind: FailureNotLoggedIn, Message: text}
	}

	if containsAny(text, collisionMarkers) {
		return Failure{
			Kind:         FailureNamingCollision,
			Message:      text,
			ResourceName: extractCollisionName(text),
		}
	}

	if isBenignDiffNoise(text) {
		return Failure{Kind: FailureBenignDiffNoise, Message: text}
	}

	return Failure{Kind: FailureUnknown, Message: text}
}

// isBenignDiffNoise reports whether error text consists solely of the known
// nested sub-resource what-if failures: every error marker must relate to
// DocumentDB nested resources (databases/containers) and the total count must
// stay within the expected bound.
func isBenignDiffNoise(text string) bool {
	hasNestedResources := strings.Contains(text, markerDocumentDB) &&
		(strings.Contains(text, "sqlDatabases") || strings.Contains(text, "containers"))

	totalErrors := strings.Count(text, markerWhatIfError) + strings.Count(text, markerInvalidResponse)

	return hasNestedResources &&
		totalErrors > 0 &&
		totalErrors <= maxBenignErrors &&
		strings.Count(text, markerDocumentDB) >= totalErrors
}

func extractCollisionName(text string) string {
	for _, pattern := range collisionNamePatterns {
		if match := pattern.FindStringSubmatch(text); match != nil {
			return match[1]
		}
	}

	return ""
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}

	return false
}
