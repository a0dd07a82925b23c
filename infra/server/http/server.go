// Package http is the server's single listening front: the RPC websocket
// endpoint plus health and metrics. Peers, clients and scrapers all arrive
// through this port.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/courierchat/courier/infra/metrics"
	"github.com/courierchat/courier/internal/cluster"
	"github.com/courierchat/courier/internal/transport"
)

type Server struct {
	logger     *slog.Logger
	addr       string
	mux        *transport.Mux
	membership *cluster.Membership
	metrics    *metrics.Metrics

	srv      *http.Server
	upgrader websocket.Upgrader
}

func NewServer(logger *slog.Logger, addr string, mux *transport.Mux, m *cluster.Membership, mt *metrics.Metrics) *Server {
	s := &Server{
		logger:     logger,
		addr:       addr,
		mux:        mux,
		membership: m,
		metrics:    mt,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers and CLI clients connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/rpc", s.handleRPC)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", mt.Handler())

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start binds the listener and serves in the background. A bind failure is
// returned synchronously so startup can abort.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.logger.Info("listening", "addr", s.addr)

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", "err", err)
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	connLogger := s.logger.With("remote", r.RemoteAddr)
	connLogger.Debug("rpc connection accepted")
	transport.Serve(r.Context(), connLogger, s.mux, ws)
	connLogger.Debug("rpc connection closed")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	leader := s.membership.Leader()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"self_id":   s.membership.Self().ID,
		"leader_id": leader.ID,
		"is_leader": s.membership.IsLeader(),
		"peers":     len(s.membership.Peers()),
	})
}
