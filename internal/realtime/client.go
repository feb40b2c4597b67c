package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/answer"
	"github.com/mcoot/livequiz/internal/services/room"
	"github.com/mcoot/livequiz/internal/services/scoring"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second

	// Time between pings; must be less than pongWait
	pingPeriod = 30 * time.Second

	// Maximum inbound message size
	maxMessageSize = 64 * 1024

	// Buffer size for outgoing messages
	sendBufferSize = 256
)

// Messages sent to a connection whose request failed
const (
	msgInvalidCode     = "Invalid code"
	msgInvalidMessage  = "Invalid message"
	msgUnknownEvent    = "Unknown event"
	msgNotInRoom       = "Join a room first"
	msgNotLive         = "Quiz is not accepting answers"
	msgDuplicateAnswer = "Answer already submitted"
	msgInvalidOption   = "Invalid option"
	msgUnknownPlayer   = "Unknown player"
	msgServerError     = "Something went wrong"
)

type joinRoomPayload struct {
	JoinCode string `json:"joinCode"`
	Name     string `json:"name"`
}

type answerPayload struct {
	JoinCode      string  `json:"joinCode"`
	SessionID     string  `json:"sessionId"`
	UserID        string  `json:"userId"`
	QuestionID    string  `json:"questionId"`
	SelectedIndex *int    `json:"selectedIndex"`
	TimeTakenMs   float64 `json:"timeTakenMs"`
}

// Client is one websocket connection. It implements room.Participant.
type Client struct {
	id          string
	handler     *Handler
	conn        *websocket.Conn
	logger      *slog.Logger
	connectedAt time.Time

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// ID implements room.Participant
func (c *Client) ID() string {
	return c.id
}

// Send implements room.Participant. It never blocks.
func (c *Client) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ServeWS upgrades the request and runs the connection until it closes
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if h.shuttingDown() {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	id := "ws-" + uuid.NewString()
	client := &Client{
		id:          id,
		handler:     h,
		conn:        conn,
		logger:      h.logger.With(slog.String("handle", id)),
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBufferSize),
	}
	client.logger.Info("websocket connected", slog.String("remote_addr", r.RemoteAddr))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-h.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			_ = conn.Close()
		case <-stop:
		}
	}()

	go client.writePump()
	client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.handler.coordinator.Disconnect(c)
		c.close()
		_ = c.conn.Close()
		c.logger.Info("websocket disconnected", slog.Duration("connection_duration", time.Since(c.connectedAt)))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", slog.Any("error", err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg model.Envelope
		if err := json.Unmarshal(data, &msg); err != nil {
			c.handler.broadcaster.Error(c, msgInvalidMessage)
			continue
		}
		c.dispatch(context.Background(), msg)
	}
}

func (c *Client) dispatch(ctx context.Context, msg model.Envelope) {
	switch msg.Event {
	case model.InboundJoinRoom:
		var p joinRoomPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.handler.broadcaster.Error(c, msgInvalidMessage)
			return
		}
		c.joinRoom(ctx, p)
	case model.InboundAnswer:
		var p answerPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.handler.broadcaster.Error(c, msgInvalidMessage)
			return
		}
		c.answer(ctx, p)
	default:
		c.logger.Debug("unknown inbound event", slog.String("event", msg.Event))
		c.handler.broadcaster.Error(c, msgUnknownEvent)
	}
}

func (c *Client) joinRoom(ctx context.Context, p joinRoomPayload) {
	snap, err := c.handler.coordinator.JoinRoom(ctx, model.JoinCode(p.JoinCode), c, p.Name)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			c.logger.Error("join room failed", slog.String("join_code", p.JoinCode), slog.Any("error", err))
		}
		c.handler.broadcaster.Error(c, joinErrorMessage(err))
		return
	}
	c.logger.Info("joined room", slog.String("join_code", string(snap.Code)), slog.String("player", snap.Player))
}

func (c *Client) answer(ctx context.Context, p answerPayload) {
	code := model.JoinCode(p.JoinCode)
	if code == "" {
		r := c.handler.coordinator.RoomOf(c)
		if r == nil {
			c.handler.broadcaster.Error(c, msgNotInRoom)
			return
		}
		code = r.Code
	}

	selected := -1
	if p.SelectedIndex != nil {
		selected = *p.SelectedIndex
	}

	_, err := c.handler.coordinator.SubmitAnswer(ctx, answer.Submission{
		JoinCode:      code,
		SessionID:     model.SessionID(p.SessionID),
		UserID:        model.UserID(p.UserID),
		QuestionID:    model.QuestionID(p.QuestionID),
		SelectedIndex: selected,
		TimeTakenMs:   scoring.ClampElapsedMs(p.TimeTakenMs),
	})
	if err != nil {
		c.logger.Debug("answer rejected", slog.String("join_code", string(code)), slog.Any("error", err))
		c.handler.broadcaster.Error(c, answerErrorMessage(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func joinErrorMessage(err error) string {
	if errors.Is(err, model.ErrNotFound) {
		return msgInvalidCode
	}
	return msgServerError
}

func answerErrorMessage(err error) string {
	switch {
	case errors.Is(err, model.ErrQuizNotFound):
		return msgInvalidCode
	case errors.Is(err, model.ErrQuizNotLive):
		return msgNotLive
	case errors.Is(err, model.ErrDuplicateAnswer):
		return msgDuplicateAnswer
	case errors.Is(err, model.ErrInvalidOption):
		return msgInvalidOption
	case errors.Is(err, model.ErrUserNotFound):
		return msgUnknownPlayer
	default:
		return msgServerError
	}
}

var _ room.Participant = (*Client)(nil)
