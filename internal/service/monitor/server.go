// Package monitor serves live run progress over a websocket and a JSON
// status endpoint.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"contact_harvest/internal/shared/logger"
	"contact_harvest/internal/shared/types"
)

// basicAuthMiddleware 检查 user 和 pass 是否已配置。
// 如果配置了，它将强制执行 HTTP Basic Authentication。
func basicAuthMiddleware(next http.Handler, user, pass string) http.Handler {
	if user == "" || pass == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("Unauthorized.\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Server 是可选的进度监控 HTTP 服务。
type Server struct {
	hub      *Hub
	srv      *http.Server
	listener net.Listener
}

// NewHandler returns the monitor routes for hub.
func NewHandler(hub *Hub, cfg types.MonitorConf) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", basicAuthMiddleware(http.HandlerFunc(hub.ServeWs), cfg.User, cfg.Password))
	mux.Handle("/api/status", basicAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.Status()); err != nil {
			logger.Warn().Err(err).Msgf("Monitor: failed to write status")
		}
	}), cfg.User, cfg.Password))
	return mux
}

// Start listens on cfg.ListenAddr and serves until ctx is done. The hub
// runs for the same lifetime.
func Start(ctx context.Context, hub *Hub, cfg types.MonitorConf) (*Server, error) {
	l, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		hub:      hub,
		listener: l,
		srv: &http.Server{
			Handler:           NewHandler(hub, cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}

	go hub.Run(ctx)
	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msgf("Monitor server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Msgf("Monitor listening on http://%s", l.Addr())
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string { return s.listener.Addr().String() }
