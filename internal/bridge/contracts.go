// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

// Package bridge hosts the command envelope the desktop shell talks to: a
// named-command dispatcher behind a localhost websocket, plus server-push
// event frames for service logs and status.
package bridge

import "fmt"

// CommandRequest is one named command from the shell.
type CommandRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

// CommandResponse is the envelope every command resolves to. Failures are
// carried in Error, a response never doubles as a Go error.
type CommandResponse struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func successResponse(result any, message string) CommandResponse {
	return CommandResponse{Success: true, Result: result, Message: message}
}

func errorResponse(err error) CommandResponse {
	return CommandResponse{Success: false, Error: err.Error()}
}

// Args wraps a request's argument map with tolerant typed accessors. JSON
// numbers arrive as float64, the accessors convert.
type Args map[string]any

// String returns the named string argument, empty when absent or mistyped.
func (a Args) String(name string) string {
	value, _ := a[name].(string)
	return value
}

// RequireString returns the named string argument or an error naming it.
func (a Args) RequireString(name string) (string, error) {
	value := a.String(name)
	if value == "" {
		return "", fmt.Errorf("missing required argument %q", name)
	}

	return value, nil
}

// Int returns the named numeric argument truncated to int.
func (a Args) Int(name string) int {
	switch value := a[name].(type) {
	case float64:
		return int(value)
	case int:
		return value
	default:
		return 0
	}
}

// Int64 returns the named numeric argument as int64.
func (a Args) Int64(name string) int64 {
	switch value := a[name].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	default:
		return 0
	}
}

// Bool returns the named boolean argument, false when absent.
func (a Args) Bool(name string) bool {
	value, _ := a[name].(bool)
	return value
}

// StringMap returns the named object argument with its values stringified.
func (a Args) StringMap(name string) map[string]string {
	raw, ok := a[name].(map[string]any)
	if !ok {
		return nil
	}

	result := make(map[string]string, len(raw))
	for key, value := range raw {
		if str, ok := value.(string); ok {
			result[key] = str
		} else {
			result[key] = fmt.Sprint(value)
		}
	}

	return result
}
