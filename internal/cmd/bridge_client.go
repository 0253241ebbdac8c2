// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mystira/devhub/internal/bridge"
)

// callBridge sends one command to a running bridge and waits for its
// response, skipping any event frames pushed in between.
func callBridge(
	ctx context.Context,
	addr string,
	command string,
	args map[string]any,
) (bridge.CommandResponse, error) {
	var response bridge.CommandResponse

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, fmt.Sprintf("ws://%s/ws", addr), nil)
	if err != nil {
		return response, fmt.Errorf("connecting to bridge at %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetReadDeadline(deadline); err != nil {
			return response, err
		}
	}

	requestId := uuid.NewString()
	request := struct {
		Id      string         `json:"id"`
		Command string         `json:"command"`
		Args    map[string]any `json:"args,omitempty"`
	}{Id: requestId, Command: command, Args: args}

	if err := conn.WriteJSON(request); err != nil {
		return response, fmt.Errorf("sending %s: %w", command, err)
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return response, fmt.Errorf("awaiting %s response: %w", command, err)
		}

		var frame struct {
			Id       string                  `json:"id"`
			Response *bridge.CommandResponse `json:"response"`
		}
		if err := json.Unmarshal(payload, &frame); err != nil {
			continue
		}

		if frame.Id == requestId && frame.Response != nil {
			return *frame.Response, nil
		}
	}
}
