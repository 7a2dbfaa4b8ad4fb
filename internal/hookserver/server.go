// Package hookserver runs a localhost HTTP endpoint for assistant hook
// callbacks and relays them into the channel as standalone info messages.
package hookserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/courier-bot/courier/internal/logging"
	"github.com/courier-bot/courier/internal/stream"
)

// Notify forwards one decoded hook event as a message batch.
type Notify func(ctx context.Context, batch []stream.Message) error

// HookServer is an embedded HTTP server for hook events. It binds to
// 127.0.0.1 only and is lifecycle-bound to the bot process.
type HookServer struct {
	port   int
	notify Notify
	server *http.Server
}

// New creates a HookServer. port=0 is valid for tests (use ServeHTTP directly).
func New(port int, notify Notify) *HookServer {
	s := &HookServer{
		port:   port,
		notify: notify,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/hooks", s.handleHook)
	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ServeHTTP implements http.Handler for testing — delegates directly to the mux.
func (s *HookServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.Handler.ServeHTTP(w, r)
}

// Start binds to 127.0.0.1:{port} and serves until ctx is cancelled.
// Returns nil on clean shutdown.
func (s *HookServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("hookserver listen :%d: %w", s.port, err)
	}
	logging.ForComponent(logging.CompHTTP).Info("hookserver_started", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// hookPayload is the JSON body the assistant sends for HTTP hook events.
type hookPayload struct {
	HookEventName string `json:"hook_event_name"`
	SessionID     string `json:"session_id"`
	Matcher       string `json:"matcher,omitempty"`
}

func (s *HookServer) handleHook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16)) // 64KB max
	if err != nil || len(body) == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}

	var payload hookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.HookEventName == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	text := "🔔 " + payload.HookEventName
	if payload.Matcher != "" {
		text += " (" + payload.Matcher + ")"
	}

	msg := stream.Message{
		Kind:    stream.KindSystem,
		Subtype: stream.SubInfo,
		Text:    text,
		Meta:    &stream.SystemMeta{SessionID: payload.SessionID},
	}
	if err := s.notify(r.Context(), []stream.Message{msg}); err != nil {
		logging.ForComponent(logging.CompHTTP).Warn("hook_relay_failed",
			"event", payload.HookEventName, "error", err)
	}

	w.WriteHeader(http.StatusOK)
}
