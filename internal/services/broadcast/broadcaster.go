// Package broadcast fans room events out to connected participants.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/room"
)

// Result reports how a fan-out went
type Result struct {
	Sent    int
	Dropped int
}

// Broadcaster encodes events once and offers them to each participant's
// send buffer. A slow or gone participant never blocks or fails the others.
type Broadcaster struct {
	logger  *slog.Logger
	dropped atomic.Int64
}

// New creates a Broadcaster
func New(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger.With(slog.String("component", "broadcast")),
	}
}

// Encode builds the {"event","data"} frame for an event
func Encode(event model.EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return json.Marshal(model.Envelope{Event: string(event), Data: data})
}

// ToRoom sends an event to every member and watcher of r.
// Callers hold the room lock so events leave in processing order.
func (b *Broadcaster) ToRoom(r *room.Room, event model.EventType, payload any) Result {
	return b.Broadcast(r.Code, r.Recipients(), event, payload)
}

// Broadcast sends an event to the given participants
func (b *Broadcaster) Broadcast(code model.JoinCode, to []room.Participant, event model.EventType, payload any) Result {
	msg, err := Encode(event, payload)
	if err != nil {
		b.logger.Error("broadcast encode failed",
			slog.String("join_code", string(code)),
			slog.String("event", string(event)),
			slog.Any("error", err))
		return Result{Dropped: len(to)}
	}

	var res Result
	for _, p := range to {
		if p.Send(msg) {
			res.Sent++
			continue
		}
		res.Dropped++
		b.logger.Warn("message dropped - participant buffer full or closed",
			slog.String("join_code", string(code)),
			slog.String("event", string(event)),
			slog.String("handle", p.ID()))
	}
	if res.Dropped > 0 {
		b.dropped.Add(int64(res.Dropped))
		b.logger.Warn("broadcast partial failure",
			slog.String("join_code", string(code)),
			slog.String("event", string(event)),
			slog.Int("sent", res.Sent),
			slog.Int("dropped", res.Dropped))
	}
	return res
}

// SendTo sends an event to a single participant
func (b *Broadcaster) SendTo(p room.Participant, event model.EventType, payload any) bool {
	msg, err := Encode(event, payload)
	if err != nil {
		b.logger.Error("send encode failed", slog.String("event", string(event)), slog.Any("error", err))
		return false
	}
	if !p.Send(msg) {
		b.dropped.Add(1)
		b.logger.Warn("message dropped - participant buffer full or closed",
			slog.String("event", string(event)),
			slog.String("handle", p.ID()))
		return false
	}
	return true
}

// Error sends an error_message to the offending participant only
func (b *Broadcaster) Error(p room.Participant, message string) bool {
	return b.SendTo(p, model.EventErrorMessage, message)
}

// Dropped returns the total number of undelivered messages since start
func (b *Broadcaster) Dropped() int64 {
	return b.dropped.Load()
}
