// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/mystira/devhub/internal/services"
	"github.com/mystira/devhub/pkg/exec"
)

func dialTestServer(t *testing.T, server *Server) *websocket.Conn {
	t.Helper()

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	wsUrl := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsUrl, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func Test_Healthz(t *testing.T) {
	server := NewServer(NewDispatcher(), nil, 0)
	httpServer := httptest.NewServer(server.Handler())
	defer httpServer.Close()

	res, err := http.Get(httpServer.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func Test_Socket_RequestResponse(t *testing.T) {
	d := NewDispatcher()
	d.Register("echo", func(_ context.Context, args Args) (any, error) {
		return args.String("text"), nil
	})

	conn := dialTestServer(t, NewServer(d, nil, 0))

	require.NoError(t, conn.WriteJSON(requestFrame{
		Id:             "req-1",
		CommandRequest: CommandRequest{Command: "echo", Args: map[string]any{"text": "hi"}},
	}))

	var response responseFrame
	require.NoError(t, conn.ReadJSON(&response))
	require.Equal(t, "req-1", response.Id)
	require.True(t, response.Response.Success)
	require.Equal(t, "hi", response.Response.Result)
}

func Test_Socket_UnknownCommand(t *testing.T) {
	conn := dialTestServer(t, NewServer(NewDispatcher(), nil, 0))

	require.NoError(t, conn.WriteJSON(requestFrame{
		Id:             "req-1",
		CommandRequest: CommandRequest{Command: "ghost"},
	}))

	var response responseFrame
	require.NoError(t, conn.ReadJSON(&response))
	require.False(t, response.Response.Success)
	require.Equal(t, "unknown command: ghost", response.Response.Error)
}

func Test_Socket_MalformedFrame(t *testing.T) {
	conn := dialTestServer(t, NewServer(NewDispatcher(), nil, 0))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	var response responseFrame
	require.NoError(t, conn.ReadJSON(&response))
	require.False(t, response.Response.Success)
	require.Contains(t, response.Response.Error, "malformed request frame")
	// A malformed frame still gets an id so the shell can log it.
	require.NotEmpty(t, response.Id)
}

func Test_Socket_PushesStatusEvents(t *testing.T) {
	manifest := &services.Manifest{
		Services: []services.ServiceConfig{{Name: "api", Port: 7096, Run: []string{"true"}}},
	}
	manager := services.NewManager(t.TempDir(), manifest, exec.NewCommandRunner(nil), nil)

	conn := dialTestServer(t, NewServer(NewDispatcher(), manager, 50*time.Millisecond))

	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		var frame struct {
			Event   string            `json:"event"`
			Payload []services.Status `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == EventServiceStatus {
			require.Len(t, frame.Payload, 1)
			require.Equal(t, "api", frame.Payload[0].Name)
			return
		}
	}
}
