// Copyright (c) Mystira. All rights reserved.
// Licensed under the MIT License.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mystira/devhub/internal/services"
)

// Event names pushed to every connected shell.
const (
	EventServiceLog    = "service.log"
	EventServiceStatus = "service.status"
)

const defaultStatusInterval = 2 * time.Second

// requestFrame is one websocket message from the shell.
type requestFrame struct {
	Id string `json:"id"`
	CommandRequest
}

// responseFrame answers a request frame, matched by id.
type responseFrame struct {
	Id       string          `json:"id"`
	Response CommandResponse `json:"response"`
}

// eventFrame is a server-push message, not tied to any request.
type eventFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Server hosts the command bridge on localhost: a /ws websocket carrying
// request/response frames plus pushed log and status events, and a /healthz
// liveness probe for the shell.
type Server struct {
	dispatcher     *Dispatcher
	manager        *services.Manager
	statusInterval time.Duration
	upgrader       websocket.Upgrader
}

// NewServer creates a bridge server. The manager may be nil, in which case
// no events are pushed.
func NewServer(dispatcher *Dispatcher, manager *services.Manager, statusInterval time.Duration) *Server {
	if statusInterval <= 0 {
		statusInterval = defaultStatusInterval
	}

	return &Server{
		dispatcher:     dispatcher,
		manager:        manager,
		statusInterval: statusInterval,
		upgrader: websocket.Upgrader{
			// The shell connects from a webview origin, not from this host.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the bridge's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleSocket)

	return mux
}

// Serve listens on the address until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Printf("bridge listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("bridge server failed: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	session := &socketSession{
		conn:   conn,
		frames: make(chan any, 64),
		done:   make(chan struct{}),
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		session.writeLoop()
	}()

	teardown := s.attachEvents(ctx, session)

	s.readLoop(ctx, session)

	// The shell went away: stop event sources first, then drain the writer.
	cancel()
	teardown()
	close(session.done)
	wg.Wait()
	_ = conn.Close()
}

// attachEvents subscribes the connection to service log and status pushes,
// returning the deregistration function.
func (s *Server) attachEvents(ctx context.Context, session *socketSession) func() {
	if s.manager == nil {
		return func() {}
	}

	unsubscribe := s.manager.Subscribe(func(event services.LogEvent) {
		session.push(eventFrame{Event: EventServiceLog, Payload: event})
	})

	poller := services.NewStatusPoller(s.manager, nil, s.statusInterval)
	go poller.Run(ctx, func(statuses []services.Status) {
		session.push(eventFrame{Event: EventServiceStatus, Payload: statuses})
	})

	return unsubscribe
}

func (s *Server) readLoop(ctx context.Context, session *socketSession) {
	for {
		_, payload, err := session.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame requestFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			session.push(responseFrame{
				Id:       uuid.NewString(),
				Response: errorResponse(fmt.Errorf("malformed request frame: %w", err)),
			})
			continue
		}
		if frame.Id == "" {
			frame.Id = uuid.NewString()
		}

		// Commands run concurrently, a slow deploy must not block a status
		// read. Responses for a torn down connection are dropped.
		go func(frame requestFrame) {
			response := s.dispatcher.Dispatch(ctx, frame.CommandRequest)
			session.push(responseFrame{Id: frame.Id, Response: response})
		}(frame)
	}
}

// socketSession serializes writes to one websocket connection.
type socketSession struct {
	conn   *websocket.Conn
	frames chan any
	done   chan struct{}
}

// push queues a frame for writing, dropping it when the connection is gone.
func (s *socketSession) push(frame any) {
	select {
	case <-s.done:
	case s.frames <- frame:
	}
}

func (s *socketSession) writeLoop() {
	for {
		select {
		case frame := <-s.frames:
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-s.done:
			// Drain whatever is already queued before closing.
			for {
				select {
				case frame := <-s.frames:
					if err := s.conn.WriteJSON(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
