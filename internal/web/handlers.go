package web

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/MountGo/internal/auth"
	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/logic/cycle"
	"github.com/cjeanneret/MountGo/internal/protocol"
	"github.com/cjeanneret/MountGo/internal/telemetry"
)

// MaxBodyBytes bounds a command request body.
const MaxBodyBytes = 64 << 10

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Mount     cycle.Status        `json:"mount"`
	Telemetry *telemetry.Snapshot `json:"telemetry,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Runner      MountRunner
	Dispatcher  *Dispatcher
	Telemetry   *telemetry.State
	staticFS    fs.FS
	upgrader    websocket.Upgrader
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, runner MountRunner, dispatcher *Dispatcher, tel *telemetry.State, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Runner:      runner,
		Dispatcher:  dispatcher,
		Telemetry:   tel,
		staticFS:    staticFS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // the UI may be served from another host on the local network
			},
		},
	}
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Mount: h.Runner.Status()}
	if h.Telemetry != nil {
		snap := h.Telemetry.Snapshot()
		resp.Telemetry = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCommand returns a handler for POST routes whose JSON body is the
// payload of a msgType message.
func (h *Handlers) HandleCommand(msgType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				writeJSON(w, http.StatusRequestEntityTooLarge, protocol.NewError(protocol.ErrInvalidMessage, "body too large"))
				return
			}
			writeJSON(w, http.StatusBadRequest, protocol.NewError(protocol.ErrInvalidMessage, "read body"))
			return
		}
		if !json.Valid(body) {
			writeJSON(w, http.StatusBadRequest, protocol.NewError(protocol.ErrInvalidMessage, "invalid JSON"))
			return
		}

		debug.Live("%s from %s", msgType, caller(r))
		reply, err := h.Dispatcher.Dispatch(&protocol.Message{Type: msgType, Payload: body})
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, errBadPayload) || errors.Is(err, errUnknownType) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, ErrorReply(err))
			return
		}
		if reply == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// caller names who sent r: the token subject, or the remote address when
// authentication is off.
func caller(r *http.Request) string {
	if c := auth.GetClaimsFromRequest(r); c != nil && c.Subject != "" {
		return c.Subject
	}
	return r.RemoteAddr
}
