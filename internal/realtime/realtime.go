// Package realtime serves the long-lived connection protocols: a
// bidirectional websocket for players and a read-only SSE stream for
// spectators. Both carry the same {"event","data"} room events.
package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/answer"
	"github.com/mcoot/livequiz/internal/services/broadcast"
	"github.com/mcoot/livequiz/internal/services/room"
)

// Coordinator is the set of room actions the connection layer drives
type Coordinator interface {
	JoinRoom(ctx context.Context, code model.JoinCode, p room.Participant, name string) (room.Snapshot, error)
	Disconnect(p room.Participant)
	RoomOf(p room.Participant) *room.Room
	SubmitAnswer(ctx context.Context, sub answer.Submission) (*answer.Result, error)
	Watch(ctx context.Context, code model.JoinCode, p room.Participant) (*room.Room, error)
	Unwatch(r *room.Room, p room.Participant)
}

// Config controls connection handling
type Config struct {
	// AllowedOrigins restricts websocket upgrades by Origin header.
	// Empty or containing "*" allows any origin.
	AllowedOrigins []string
}

// Handler accepts websocket and SSE connections
type Handler struct {
	coordinator Coordinator
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
	upgrader    websocket.Upgrader

	done         chan struct{}
	shutdownOnce sync.Once
}

// NewHandler creates a connection Handler
func NewHandler(coordinator Coordinator, broadcaster *broadcast.Broadcaster, logger *slog.Logger, cfg Config) *Handler {
	h := &Handler{
		coordinator: coordinator,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "realtime")),
		done:        make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// Shutdown ends every open SSE stream and websocket connection, and
// refuses new ones. http.Server.Shutdown does neither for long-lived
// connections, so register it with RegisterOnShutdown.
func (h *Handler) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.logger.Info("closing realtime connections")
		close(h.done)
	})
}

func (h *Handler) shuttingDown() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
