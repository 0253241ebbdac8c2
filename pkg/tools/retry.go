// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package tools

import "strings"

// transientMarkers lists error text fragments that indicate a failure worth
// retrying: network hiccups, timeouts and service side throttling or 5xx
// responses.
var transientMarkers = []string{
	"timed out",
	"timeout",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
	"network is unreachable",
	"TLS handshake",
	"too many requests",
	"TooManyRequests",
	"InternalServerError",
	"ServiceUnavailable",
	"GatewayTimeout",
	"BadGateway",
	"status code 429",
	"status code 500",
	"status code 502",
	"status code 503",
	"status code 504",
}

// IsTransient reports whether CLI error output looks like a transient
// failure. The CLIs expose no structured error codes over their text output,
// so this is a marker scan like the rest of the error classification.
func IsTransient(stderr string) bool {
	lowered := strings.ToLower(stderr)
	for _, marker := range transientMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			return true
		}
	}

	return false
}
