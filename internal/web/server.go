package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/MountGo/internal/auth"
	"github.com/cjeanneret/MountGo/internal/debug"
	"github.com/cjeanneret/MountGo/internal/protocol"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
	auth     *auth.Middleware
}

// NewServer creates a server for the given address. A nil or disabled
// middleware leaves the command routes open.
func NewServer(addr string, handlers *Handlers, mw *auth.Middleware) *Server {
	return &Server{
		addr:     addr,
		handlers: handlers,
		auth:     mw,
	}
}

//go:embed static/*
var staticFiles embed.FS

// StaticFS returns the embedded UI files.
func StaticFS() (fs.FS, error) {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: sub static fs: %w", err)
	}
	return sub, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	h := s.handlers
	control := func(next http.HandlerFunc) http.HandlerFunc {
		return s.auth.RequireScope(auth.ScopeControl, next)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.HandleFunc("POST /configure", control(h.HandleCommand(protocol.TypeConfigure)))
	mux.HandleFunc("POST /control", control(h.HandleCommand(protocol.TypeControl)))
	mux.HandleFunc("POST /roi", control(h.HandleCommand(protocol.TypeROI)))
	mux.HandleFunc("GET /ws", control(h.HandleWebSocket))
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	mux.HandleFunc("GET /{$}", h.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("web server listening on %s (auth %v)", s.addr, s.auth.Enabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
