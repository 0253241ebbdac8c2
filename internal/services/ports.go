// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package services

import (
	"context"
	"fmt"
	"net"
	"runtime"

	"github.com/mystira/devhub/pkg/exec"
)

// portScanRange bounds the search in FindAvailablePort.
const portScanRange = 100

// CheckPortAvailable reports whether the local TCP port can be bound.
func CheckPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}

	_ = listener.Close()
	return true
}

// FindAvailablePort scans [startPort, startPort+100) for a free port.
func FindAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+portScanRange; port++ {
		if CheckPortAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no available port in range %d-%d", startPort, startPort+portScanRange-1)
}

// killByPort terminates whatever process owns the local port. Used as the
// fallback when a service's pid is no longer known.
func killByPort(ctx context.Context, runner exec.CommandRunner, port int) error {
	if runtime.GOOS == "windows" {
		script := fmt.Sprintf(
			"Get-NetTCPConnection -LocalPort %d -ErrorAction SilentlyContinue | "+
				"Select-Object -ExpandProperty OwningProcess | "+
				"ForEach-Object { Stop-Process -Id $_ -Force }", port)
		_, err := runner.Run(ctx, exec.NewRunArgs("powershell", "-NoProfile", "-Command", script))
		return err
	}

	_, err := runner.Run(ctx, exec.NewRunArgs(
		"sh", "-c", fmt.Sprintf("lsof -ti tcp:%d | xargs -r kill -9", port)))
	return err
}
