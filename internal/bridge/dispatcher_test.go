// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package bridge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Dispatch_Success(t *testing.T) {
	d := NewDispatcher()
	d.Register("echo", func(_ context.Context, args Args) (any, error) {
		return args.String("text"), nil
	})

	response := d.Dispatch(context.Background(), CommandRequest{
		Command: "echo",
		Args:    map[string]any{"text": "hello"},
	})
	require.True(t, response.Success)
	require.Equal(t, "hello", response.Result)
	require.Empty(t, response.Error)
}

func Test_Dispatch_UnknownCommand(t *testing.T) {
	d := NewDispatcher()

	response := d.Dispatch(context.Background(), CommandRequest{Command: "nope"})
	require.False(t, response.Success)
	require.Equal(t, "unknown command: nope", response.Error)
}

func Test_Dispatch_HandlerError(t *testing.T) {
	d := NewDispatcher()
	d.Register("fail", func(context.Context, Args) (any, error) {
		return nil, errors.New("it broke")
	})

	response := d.Dispatch(context.Background(), CommandRequest{Command: "fail"})
	require.False(t, response.Success)
	require.Equal(t, "it broke", response.Error)
}

func Test_Dispatch_RecoversPanic(t *testing.T) {
	d := NewDispatcher()
	d.Register("explode", func(context.Context, Args) (any, error) {
		panic("boom")
	})

	var response CommandResponse
	require.NotPanics(t, func() {
		response = d.Dispatch(context.Background(), CommandRequest{Command: "explode"})
	})
	require.False(t, response.Success)
	require.Contains(t, response.Error, "explode")
}

func Test_Dispatch_PreparedResponsePassthrough(t *testing.T) {
	d := NewDispatcher()
	d.Register("prepared", func(context.Context, Args) (any, error) {
		return CommandResponse{Success: true, Message: "done", Result: 42}, nil
	})

	response := d.Dispatch(context.Background(), CommandRequest{Command: "prepared"})
	require.True(t, response.Success)
	require.Equal(t, "done", response.Message)
	require.Equal(t, 42, response.Result)
}

func Test_Register_DuplicatePanics(t *testing.T) {
	d := NewDispatcher()
	handler := func(context.Context, Args) (any, error) { return nil, nil }

	d.Register("dup", handler)
	require.Panics(t, func() { d.Register("dup", handler) })
}

func Test_Args_Accessors(t *testing.T) {
	args := Args{
		"name":   "api",
		"port":   7096.0,
		"runId":  123456789.0,
		"force":  true,
		"inputs": map[string]any{"environment": "dev", "count": 2.0},
	}

	require.Equal(t, "api", args.String("name"))
	require.Equal(t, "", args.String("missing"))
	require.Equal(t, 7096, args.Int("port"))
	require.Equal(t, int64(123456789), args.Int64("runId"))
	require.True(t, args.Bool("force"))
	require.False(t, args.Bool("missing"))
	require.Equal(t, map[string]string{"environment": "dev", "count": "2"}, args.StringMap("inputs"))
	require.Nil(t, args.StringMap("missing"))

	_, err := args.RequireString("missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), `"missing"`)
}
