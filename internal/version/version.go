// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package version

// Version is the current devhub version.
// This is set at build time via ldflags.
var Version = "0.1.0"
