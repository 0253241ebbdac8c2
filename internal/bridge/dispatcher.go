// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package bridge

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
)

// HandlerFunc resolves one named command. A returned error becomes the
// response's Error field, it never propagates to the transport.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Dispatcher is the named-command registry. Every outcome, including a
// handler panic, is converted to a CommandResponse so nothing ever reaches
// the shell as an uncaught failure.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string]HandlerFunc{}}
}

// Register binds a command name to its handler. Registering the same name
// twice is a programming error.
func (d *Dispatcher) Register(name string, handler HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[name]; exists {
		panic(fmt.Sprintf("command %q registered twice", name))
	}

	d.handlers[name] = handler
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Dispatch resolves one request to a response.
func (d *Dispatcher) Dispatch(ctx context.Context, request CommandRequest) (response CommandResponse) {
	d.mu.RLock()
	handler, ok := d.handlers[request.Command]
	d.mu.RUnlock()

	if !ok {
		return CommandResponse{
			Success: false,
			Error:   fmt.Sprintf("unknown command: %s", request.Command),
		}
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			log.Printf("command %s panicked: %v", request.Command, recovered)
			response = CommandResponse{
				Success: false,
				Error:   fmt.Sprintf("command %s failed unexpectedly", request.Command),
			}
		}
	}()

	result, err := handler(ctx, Args(request.Args))
	if err != nil {
		return errorResponse(err)
	}

	if prepared, ok := result.(CommandResponse); ok {
		return prepared
	}

	return successResponse(result, "")
}
