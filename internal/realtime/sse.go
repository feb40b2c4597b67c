package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/room"
)

// Time between SSE keepalive comments
const keepalivePeriod = 30 * time.Second

// Watcher is a read-only SSE spectator. It implements room.Participant.
type Watcher struct {
	id string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newWatcher() *Watcher {
	return &Watcher{
		id:   "sse-" + uuid.NewString(),
		send: make(chan []byte, sendBufferSize),
	}
}

// ID implements room.Participant
func (w *Watcher) ID() string {
	return w.id
}

// Send implements room.Participant. It never blocks.
func (w *Watcher) Send(msg []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	select {
	case w.send <- msg:
		return true
	default:
		return false
	}
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.send)
	}
}

// ServeSSE streams room events for code until the client goes away.
// An error is returned only if the stream could not begin, in which case
// nothing has been written.
func (h *Handler) ServeSSE(w http.ResponseWriter, r *http.Request, code model.JoinCode) error {
	if h.shuttingDown() {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return nil
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return nil
	}

	watcher := newWatcher()
	rm, err := h.coordinator.Watch(r.Context(), code, watcher)
	if err != nil {
		return err
	}

	logger := h.logger.With(slog.String("handle", watcher.id), slog.String("join_code", string(rm.Code)))
	connectedAt := time.Now()
	logger.Info("sse client connected")
	defer func() {
		h.coordinator.Unwatch(rm, watcher)
		watcher.close()
		logger.Info("sse client disconnected", slog.Duration("connection_duration", time.Since(connectedAt)))
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	// Streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(formatSSEMessage("connected", `{"joinCode":"`+string(rm.Code)+`"}`))
	flusher.Flush()

	ticker := time.NewTicker(keepalivePeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-watcher.send:
			if !ok {
				return nil
			}
			frame, err := envelopeToSSE(msg)
			if err != nil {
				logger.Warn("sse frame dropped", slog.Any("error", err))
				continue
			}
			if _, err := w.Write(frame); err != nil {
				return nil
			}
			flusher.Flush()

		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return nil
			}
			flusher.Flush()

		case <-r.Context().Done():
			return nil

		case <-h.done:
			return nil
		}
	}
}

// envelopeToSSE reframes an encoded {"event","data"} message as an SSE event
func envelopeToSSE(msg []byte) ([]byte, error) {
	var env model.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, err
	}
	data := string(env.Data)
	if data == "" {
		data = "null"
	}
	return formatSSEMessage(env.Event, data), nil
}

// formatSSEMessage formats an SSE message with event name and data.
// Multi-line data gets a "data: " prefix on each line.
func formatSSEMessage(eventName, data string) []byte {
	var b strings.Builder
	b.WriteString("event: ")
	b.WriteString(eventName)
	b.WriteString("\n")
	for _, line := range splitLines(data) {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return []byte(b.String())
}

// splitLines splits a string into lines, handling \n and \r\n endings
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r", "")
	if s == "" {
		return []string{""}
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

var _ room.Participant = (*Watcher)(nil)
