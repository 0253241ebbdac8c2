// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package osutil

import "os"

const (
	PermissionDirectory      os.FileMode = 0755
	PermissionExecutableFile os.FileMode = 0755
	PermissionFile           os.FileMode = 0644

	PermissionDirectoryOwnerOnly os.FileMode = 0700
	PermissionFileOwnerOnly      os.FileMode = 0600

	// Owner execute bit, used to repair directories that lost it.
	PermissionMaskDirectoryExecute os.FileMode = 0100
)
