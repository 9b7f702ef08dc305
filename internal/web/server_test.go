package web

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cjeanneret/MountGo/internal/auth"
	"github.com/cjeanneret/MountGo/internal/logic/mount"
	"github.com/cjeanneret/MountGo/internal/protocol"
)

const testSecret = "test-secret"

func newTestMiddleware(t *testing.T) (*auth.Middleware, *auth.Verifier) {
	t.Helper()
	v, err := auth.NewVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return auth.NewMiddleware(v), v
}

func TestStaticFS_HasIndex(t *testing.T) {
	sub, err := StaticFS()
	if err != nil {
		t.Fatalf("StaticFS: %v", err)
	}
	data, err := fs.ReadFile(sub, "index.html")
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	if !strings.Contains(string(data), "/status/stream") {
		t.Error("embedded UI should subscribe to the status stream")
	}
}

func TestMux_Routes(t *testing.T) {
	e := newTestEnv(t)
	mux := NewServer(":0", e.handlers, nil).Mux()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"index", http.MethodGet, "/", "", http.StatusOK},
		{"status", http.MethodGet, "/status", "", http.StatusOK},
		{"configure", http.MethodPost, "/configure", `{"mode":"neutral"}`, http.StatusOK},
		{"control", http.MethodPost, "/control", `{"input_a":100}`, http.StatusOK},
		{"roi", http.MethodPost, "/roi", `{"lat":1,"lon":2,"alt":3}`, http.StatusOK},
		{"control_get", http.MethodGet, "/control", "", http.StatusMethodNotAllowed},
		{"unknown", http.MethodGet, "/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("%s %s = %d, want %d", tc.method, tc.path, w.Code, tc.want)
			}
		})
	}
}

func TestMux_AuthGuardsCommands(t *testing.T) {
	e := newTestEnv(t)
	mw, v := newTestMiddleware(t)
	mux := NewServer(":0", e.handlers, mw).Mux()

	controlToken, err := v.Issue("gcs", []string{auth.ScopeControl}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	readToken, err := v.Issue("viewer", []string{auth.ScopeRead}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"no_token", "", http.StatusUnauthorized},
		{"read_scope", readToken, http.StatusForbidden},
		{"control_scope", controlToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/configure", strings.NewReader(`{"mode":"neutral"}`))
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}

	// status stays readable without a token
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Errorf("GET /status = %d, want %d", w.Code, http.StatusOK)
	}
}

func dialTestWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (HTTP %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type msgType arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestWebSocket_RoundTrip(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(NewServer(":0", e.handlers, nil).Mux())
	defer srv.Close()

	conn := dialTestWS(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")

	// initial state
	evt := readUntil(t, conn, protocol.TypeEvent)
	var first StatusEvent
	if err := evt.ParsePayload(&first); err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if first.Level != LevelState || first.State == nil {
		t.Fatalf("first event = %+v, want a state event", first)
	}

	cmd, err := protocol.NewMessage(protocol.TypeConfigure, protocol.ConfigurePayload{
		ConfigureCommand: mount.ConfigureCommand{Mode: mount.ModeMavlinkTargeting, StabPan: true},
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write: %v", err)
	}
	ack := readUntil(t, conn, protocol.TypeAck)
	var p protocol.AckPayload
	if err := ack.ParsePayload(&p); err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	if p.Command != protocol.TypeConfigure {
		t.Errorf("ack command = %q, want %q", p.Command, protocol.TypeConfigure)
	}
	if st := e.runner.Status(); st.Mode != mount.ModeMavlinkTargeting || !st.Stab.Pan {
		t.Errorf("status = %+v, want mavlink targeting with pan stabilization", st)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("garbage")); err != nil {
		t.Fatalf("write: %v", err)
	}
	errMsg := readUntil(t, conn, protocol.TypeError)
	var ep protocol.ErrorPayload
	if err := errMsg.ParsePayload(&ep); err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if ep.Code != protocol.ErrInvalidMessage {
		t.Errorf("code = %q, want %q", ep.Code, protocol.ErrInvalidMessage)
	}
}

func TestWebSocket_ForwardsBroadcasts(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(NewServer(":0", e.handlers, nil).Mux())
	defer srv.Close()

	conn := dialTestWS(t, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws")
	readUntil(t, conn, protocol.TypeEvent) // initial state, subscription is live

	e.handlers.Broadcaster.BroadcastMsg("servo check")

	evt := readUntil(t, conn, protocol.TypeEvent)
	var se StatusEvent
	if err := evt.ParsePayload(&se); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if se.Msg != "servo check" {
		t.Errorf("msg = %q, want %q", se.Msg, "servo check")
	}
}

func TestWebSocket_TokenInQuery(t *testing.T) {
	e := newTestEnv(t)
	mw, v := newTestMiddleware(t)
	srv := httptest.NewServer(NewServer(":0", e.handlers, mw).Mux())
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(base, nil); err == nil {
		t.Fatal("dial without token should fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without token: %v, want HTTP 401", err)
	}

	token, err := v.Issue("gcs", []string{auth.ScopeControl}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	conn := dialTestWS(t, base+"?access_token="+token)
	readUntil(t, conn, protocol.TypeEvent)
}
