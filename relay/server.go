// Package relay provides a reusable relay server that multiplexes
// CodeHive rooms over one WebSocket endpoint. It can be embedded in
// other binaries.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CodeHiveAPP/codehive/internal/metrics"
	"github.com/CodeHiveAPP/codehive/internal/protocol"
	"github.com/CodeHiveAPP/codehive/internal/relay/config"
	"github.com/CodeHiveAPP/codehive/internal/relay/registry"
	"github.com/CodeHiveAPP/codehive/internal/relay/room"
	"github.com/CodeHiveAPP/codehive/internal/relay/webhook"
)

// session is the per-connection state the dispatcher maintains. It is
// updated from every inbound frame.
type session struct {
	deviceID string
	roomCode string
}

// Server is a reusable relay instance.
type Server struct {
	cfg      *config.Config
	registry *registry.Registry
	notifier *webhook.Notifier
	server   *http.Server
}

// NewServer creates a relay server. It loads the persisted room
// snapshot (advisory: a missing or corrupt file is ignored) and wires
// the WebSocket and metrics endpoints. Call Serve to start listening.
func NewServer(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	reg := registry.New()
	records, err := registry.Load(cfg.PersistPath)
	if err != nil {
		slog.Warn("ignoring unreadable room snapshot", "path", cfg.PersistPath, "error", err)
	} else if len(records) > 0 {
		reg.RestoreSnapshot(records)
		slog.Info("restored room metadata", "rooms", len(records))
	}

	s := &Server{
		cfg:      cfg,
		registry: reg,
		notifier: webhook.New(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Registry exposes the room registry (tests, embedding binaries).
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Serve listens on the configured address and blocks until ctx is
// cancelled, then drains connections and writes a final snapshot.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	go s.heartbeatSweep(sweepCtx)
	go s.expirySweep(sweepCtx)
	go s.persistLoop(sweepCtx)

	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("relay shutting down...")
		stopSweeps()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)

		if err := registry.Save(s.cfg.PersistPath, s.registry.Snapshot()); err != nil {
			slog.Warn("final snapshot failed", "error", err)
		}
		close(shutdownDone)
	}()

	slog.Info("relay listening", "addr", s.cfg.Addr())
	if err := s.server.Serve(ln); err != http.ErrServerClosed {
		stopSweeps()
		return fmt.Errorf("serve: %w", err)
	}

	<-shutdownDone
	return nil
}

// heartbeatSweep evicts members whose lastSeen exceeded the heartbeat
// timeout, then prunes rooms the evictions emptied.
func (s *Server) heartbeatSweep(ctx context.Context) {
	ticker := time.NewTicker(protocol.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, r := range s.registry.All() {
				for _, deviceID := range r.FindDeadClients(protocol.HeartbeatTimeout) {
					info := r.RemoveMember(deviceID)
					if info == nil {
						continue
					}
					metrics.MembersReaped.Inc()
					metrics.ActiveMembers.Dec()
					slog.Info("reaped dead member", "room", r.Code(), "device", deviceID, "name", info.Name)
					r.Broadcast(&protocol.MemberLeft{
						Header:         protocol.NewHeader(protocol.MsgMemberLeft, ""),
						Code:           r.Code(),
						MemberDeviceID: deviceID,
						Name:           info.Name,
						Reason:         "timeout",
					}, "")
				}
			}
			if pruned := s.registry.PruneEmptyRooms(); pruned > 0 {
				slog.Info("pruned empty rooms", "count", pruned)
			}
		}
	}
}

// expirySweep prunes rooms whose last activity exceeded their expiry
// horizon.
func (s *Server) expirySweep(ctx context.Context) {
	ticker := time.NewTicker(protocol.RoomExpiryCheck)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := s.registry.PruneExpiredRooms(); pruned > 0 {
				slog.Info("pruned expired rooms", "count", pruned)
			}
		}
	}
}

// persistLoop writes the room snapshot on a fixed cadence. Failures
// are logged and otherwise ignored.
func (s *Server) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(protocol.PersistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := registry.Save(s.cfg.PersistPath, s.registry.Snapshot()); err != nil {
				slog.Debug("room snapshot failed", "path", s.cfg.PersistPath, "error", err)
			}
		}
	}
}

// handleWS accepts one agent connection and runs its read loop.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Debug("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(protocol.MaxFrameBytes)
	defer func() { _ = ws.CloseNow() }()

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	conn := room.NewConn(ws)
	sess := &session{}
	defer s.handleDisconnect(sess, conn)

	ctx := r.Context()
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				slog.Debug("connection closed", "device", sess.deviceID)
			} else {
				slog.Debug("read failed", "device", sess.deviceID, "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			s.sendError(conn, "Invalid message format")
			continue
		}
		s.dispatch(sess, conn, data)
	}
}

// handleDisconnect cleans up after a dropped connection: unseat the
// member, announce the departure, and delete the room if it emptied.
func (s *Server) handleDisconnect(sess *session, conn *room.Conn) {
	conn.MarkClosed()
	if sess.roomCode == "" || sess.deviceID == "" {
		return
	}
	r := s.registry.Get(sess.roomCode)
	if r == nil {
		return
	}
	info := r.RemoveMember(sess.deviceID)
	if info == nil {
		return
	}
	metrics.ActiveMembers.Dec()
	slog.Info("member disconnected", "room", r.Code(), "device", sess.deviceID, "name", info.Name)

	r.Broadcast(&protocol.MemberLeft{
		Header:         protocol.NewHeader(protocol.MsgMemberLeft, ""),
		Code:           r.Code(),
		MemberDeviceID: sess.deviceID,
		Name:           info.Name,
		Reason:         "disconnect",
	}, "")
	s.notifier.Fire(r.Webhook(), protocol.WebhookLeave, r.Code(), map[string]any{"name": info.Name})

	if r.IsEmpty() {
		s.registry.Delete(r.Code())
	}
}
