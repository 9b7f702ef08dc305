package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("test-secret-key")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	for _, s := range []string{"", "   "} {
		if _, err := NewVerifier(s); !errors.Is(err, ErrNoSecret) {
			t.Errorf("NewVerifier(%q) err = %v, want ErrNoSecret", s, err)
		}
	}
}

func TestVerifyToken_RoundTrip(t *testing.T) {
	v := newTestVerifier(t)
	token, err := v.Issue("gcs-1", []string{ScopeRead, ScopeControl}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if claims.Subject != "gcs-1" || !claims.HasScope(ScopeControl) {
		t.Errorf("claims = %+v", claims)
	}
}

func TestVerifyToken_Rejects(t *testing.T) {
	v := newTestVerifier(t)
	other, _ := NewVerifier("another-secret")
	foreign, _ := other.Issue("gcs", []string{ScopeControl}, time.Hour)

	expired, _ := v.Issue("gcs", []string{ScopeControl}, time.Minute)
	v.now = func() time.Time { return time.Now().Add(time.Hour) }
	defer func() { v.now = time.Now }()

	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"scopes": []string{"control"}}).
		SignedString([]byte("test-secret-key"))
	wrongAlg, _ := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{"sub": "gcs"}).
		SignedString([]byte("test-secret-key"))

	cases := map[string]string{
		"empty":      "",
		"garbage":    "not.a.token",
		"foreign":    foreign,
		"expired":    expired,
		"no_subject": noSubject,
		"wrong_alg":  wrongAlg,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.VerifyToken(token); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestClaims_HasScopeNil(t *testing.T) {
	var c *Claims
	if c.HasScope(ScopeRead) {
		t.Error("nil claims should have no scope")
	}
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	if c := GetClaimsFromRequest(r); c != nil {
		w.Header().Set("X-Subject", c.Subject)
	}
	w.WriteHeader(http.StatusNoContent)
}

func TestRequireScope(t *testing.T) {
	v := newTestVerifier(t)
	control, _ := v.Issue("pilot", []string{ScopeControl}, time.Hour)
	readOnly, _ := v.Issue("viewer", []string{ScopeRead}, time.Hour)

	cases := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"no_token", "", "", http.StatusUnauthorized},
		{"bad_prefix", "Token " + control, "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", "", http.StatusUnauthorized},
		{"missing_scope", "Bearer " + readOnly, "", http.StatusForbidden},
		{"ok_header", "Bearer " + control, "", http.StatusNoContent},
		{"ok_query", "", control, http.StatusNoContent},
	}
	h := NewMiddleware(v).RequireScope(ScopeControl, okHandler)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/control"
			if tc.query != "" {
				target += "?access_token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodPost, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
			if tc.want == http.StatusNoContent && rec.Header().Get("X-Subject") != "pilot" {
				t.Errorf("claims not propagated, subject = %q", rec.Header().Get("X-Subject"))
			}
		})
	}
}

func TestRequireScope_Disabled(t *testing.T) {
	m := NewMiddleware(nil)
	if m.Enabled() {
		t.Fatal("middleware without verifier should be disabled")
	}
	rec := httptest.NewRecorder()
	m.RequireScope(ScopeControl, okHandler)(rec, httptest.NewRequest(http.MethodPost, "/control", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}
