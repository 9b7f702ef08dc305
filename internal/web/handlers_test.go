package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cjeanneret/MountGo/internal/auth"
	"github.com/cjeanneret/MountGo/internal/hw/rcin"
	"github.com/cjeanneret/MountGo/internal/logic/cycle"
	"github.com/cjeanneret/MountGo/internal/logic/geometry"
	"github.com/cjeanneret/MountGo/internal/logic/mount"
	"github.com/cjeanneret/MountGo/internal/protocol"
	"github.com/cjeanneret/MountGo/internal/telemetry"
)

// ---------- Handler helpers ----------

type testEnv struct {
	runner   *cycle.Runner
	tel      *telemetry.State
	bank     *rcin.Bank
	handlers *Handlers
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	bank, err := rcin.NewBank(map[int]mount.Calibration{
		1: {Min: 1000, Center: 1500, Max: 2000},
	})
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}
	tel := telemetry.NewState(time.Second)
	m := mount.New(mount.DefaultConfig(), nil, tel, tel, nil)
	runner := cycle.NewRunner(m, bank, 0)

	staticFS := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte("<html>test</html>")},
	}
	dispatcher := NewDispatcher(runner, tel, bank, Link{SystemID: 1, ComponentID: 154})
	return &testEnv{
		runner:   runner,
		tel:      tel,
		bank:     bank,
		handlers: NewHandlers(NewStatusBroadcaster(), runner, dispatcher, tel, staticFS),
	}
}

func (e *testEnv) post(t *testing.T, msgType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/cmd", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handlers.HandleCommand(msgType)(w, req)
	return w
}

func decodeMessage(t *testing.T, w *httptest.ResponseRecorder) protocol.Message {
	t.Helper()
	var msg protocol.Message
	if err := json.NewDecoder(w.Body).Decode(&msg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return msg
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	msg := decodeMessage(t, w)
	if msg.Type != protocol.TypeError {
		t.Fatalf("type = %q, want %q", msg.Type, protocol.TypeError)
	}
	var p protocol.ErrorPayload
	if err := msg.ParsePayload(&p); err != nil {
		t.Fatalf("parse error payload: %v", err)
	}
	return p.Code
}

// ---------- HandleStatus ----------

func TestHandleStatus(t *testing.T) {
	e := newTestEnv(t)
	e.tel.UpdateAttitude(telemetry.Attitude{Roll: 0.1})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	e.handlers.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp StatusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mount.Mode != mount.ModeRetract {
		t.Errorf("mode = %v, want retract", resp.Mount.Mode)
	}
	if resp.Telemetry == nil || !resp.Telemetry.AttitudeFresh {
		t.Errorf("telemetry = %+v, want a fresh attitude", resp.Telemetry)
	}
}

// ---------- HandleCommand ----------

func TestHandleCommand_Configure(t *testing.T) {
	e := newTestEnv(t)
	w := e.post(t, protocol.TypeConfigure, `{"mode":"neutral","stab_tilt":true}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if msg := decodeMessage(t, w); msg.Type != protocol.TypeAck {
		t.Errorf("reply type = %q, want ack", msg.Type)
	}
	st := e.runner.Status()
	if st.Mode != mount.ModeNeutral {
		t.Errorf("mode = %v, want neutral", st.Mode)
	}
	if !st.Stab.Tilt || st.Stab.Roll || st.Stab.Pan {
		t.Errorf("stab = %+v, want tilt only", st.Stab)
	}
}

func TestHandleCommand_ConfigureOtherMount(t *testing.T) {
	e := newTestEnv(t)
	w := e.post(t, protocol.TypeConfigure, `{"target_system":7,"mode":"neutral"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if st := e.runner.Status(); st.Mode != mount.ModeRetract {
		t.Errorf("mode = %v, command for another mount must be ignored", st.Mode)
	}
}

func TestHandleCommand_Control(t *testing.T) {
	e := newTestEnv(t)
	e.runner.Do(func(m *mount.Mount) error {
		m.SetMode(mount.ModeMavlinkTargeting)
		return nil
	})

	w := e.post(t, protocol.TypeControl, `{"input_a":-2500,"input_c":9000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}
	ctl := e.runner.Status().Control
	if ctl.Tilt != -25 || ctl.Pan != 90 || ctl.Roll != 0 {
		t.Errorf("control = %+v, want tilt -25 pan 90", ctl)
	}
}

func TestHandleCommand_ControlUnknownMode(t *testing.T) {
	e := newTestEnv(t)
	e.runner.Do(func(m *mount.Mount) error {
		m.SetMode(mount.Mode(9))
		return nil
	})

	w := e.post(t, protocol.TypeControl, `{"input_a":100}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if code := errorCode(t, w); code != protocol.ErrCommand {
		t.Errorf("code = %q, want %q", code, protocol.ErrCommand)
	}
}

func TestHandleCommand_ROI(t *testing.T) {
	e := newTestEnv(t)
	w := e.post(t, protocol.TypeROI, `{"lat":473977420,"lon":85455940,"alt":50000}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	st := e.runner.Status()
	if st.Mode != mount.ModeGPSPoint {
		t.Errorf("mode = %v, want gps_point", st.Mode)
	}
	want := geometry.Location{Lat: 473977420, Lon: 85455940, Alt: 50000}
	if st.Target != want {
		t.Errorf("target = %+v, want %+v", st.Target, want)
	}
}

func TestHandleCommand_StatusRequest(t *testing.T) {
	e := newTestEnv(t)

	w := e.post(t, protocol.TypeStatusRequest, `{"target_system":1,"target_component":154}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	msg := decodeMessage(t, w)
	if msg.Type != protocol.TypeMountStatus {
		t.Fatalf("type = %q, want %q", msg.Type, protocol.TypeMountStatus)
	}
	var report mount.StatusReport
	if err := msg.ParsePayload(&report); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if report.Mode != mount.ModeRetract {
		t.Errorf("report mode = %v, want retract", report.Mode)
	}

	w = e.post(t, protocol.TypeStatusRequest, `{"target_component":99}`)
	if w.Code != http.StatusNoContent {
		t.Errorf("other mount: status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestHandleCommand_RCInput(t *testing.T) {
	e := newTestEnv(t)
	w := e.post(t, protocol.TypeRCInput, `{"channel":1,"raw":1800}`)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	ch, ok := e.bank.Channel(1)
	if !ok || ch.RawValue() != 1800 {
		t.Errorf("channel 1 raw = %v, want 1800", ch)
	}
}

func TestHandleCommand_BadRequests(t *testing.T) {
	cases := []struct {
		name    string
		msgType string
		body    string
		code    string
	}{
		{"invalid_json", protocol.TypeControl, "not json", protocol.ErrInvalidMessage},
		{"unknown_mode", protocol.TypeConfigure, `{"mode":"sideways"}`, protocol.ErrInvalidMessage},
		{"wrong_field_type", protocol.TypeROI, `{"lat":"north"}`, protocol.ErrInvalidMessage},
		{"unconfigured_channel", protocol.TypeRCInput, `{"channel":5,"raw":1500}`, protocol.ErrInvalidMessage},
		{"unknown_type", "zoom", `{}`, protocol.ErrUnknownType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEnv(t)
			w := e.post(t, tc.msgType, tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if code := errorCode(t, w); code != tc.code {
				t.Errorf("code = %q, want %q", code, tc.code)
			}
		})
	}
}

func TestHandleCommand_OversizedBody(t *testing.T) {
	e := newTestEnv(t)
	big := `{"lat":1` + strings.Repeat(" ", MaxBodyBytes) + `}`
	w := e.post(t, protocol.TypeROI, big)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if st := e.runner.Status(); st.Mode != mount.ModeRetract {
		t.Errorf("mode = %v, oversized command must not be applied", st.Mode)
	}
}

func TestHandleCommand_GetMethodNotAllowed(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/control", nil)
	w := httptest.NewRecorder()

	e.handlers.HandleCommand(protocol.TypeControl)(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

// ---------- ServeIndex ----------

func TestServeIndex(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	e.handlers.ServeIndex(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q, want text/html; charset=utf-8", ct)
	}
	if !strings.Contains(w.Body.String(), "<html>") {
		t.Error("body should contain HTML content")
	}
}

func TestServeIndex_Missing(t *testing.T) {
	e := newTestEnv(t)
	e.handlers.staticFS = fstest.MapFS{}
	w := httptest.NewRecorder()

	e.handlers.ServeIndex(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ---------- HandleStatusStream ----------

func TestHandleStatusStream(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(e.handlers.HandleStatusStream))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	if err != nil || line != ": connected\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}

	// the subscription exists once the connected comment is flushed
	e.handlers.Broadcaster.BroadcastState(e.runner.Status())

	for {
		line, err = r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var evt StatusEvent
	if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &evt); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if evt.Level != LevelState || evt.State == nil || evt.State.Mode != mount.ModeRetract {
		t.Errorf("event = %+v, want a retract state", evt)
	}
}

func TestCaller(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/control", nil)
	r.RemoteAddr = "10.0.0.7:5000"
	if got := caller(r); got != "10.0.0.7:5000" {
		t.Errorf("caller without token = %q, want the remote address", got)
	}

	ctx := context.WithValue(r.Context(), auth.ClaimsKey, &auth.Claims{Subject: "gcs", Scopes: []string{auth.ScopeControl}})
	if got := caller(r.WithContext(ctx)); got != "gcs" {
		t.Errorf("caller with token = %q, want gcs", got)
	}
}
