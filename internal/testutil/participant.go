package testutil

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mcoot/livequiz/internal/model"
)

// Participant is an in-memory connection handle that records every frame it is sent
type Participant struct {
	id string

	mu       sync.Mutex
	frames   [][]byte
	full     bool
	notify   chan struct{}
	rejected int
}

// NewParticipant creates a recording participant with the given handle id
func NewParticipant(id string) *Participant {
	return &Participant{id: id, notify: make(chan struct{}, 1)}
}

// ID returns the handle id
func (p *Participant) ID() string {
	return p.id
}

// Send records msg unless the participant is marked full
func (p *Participant) Send(msg []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		p.rejected++
		return false
	}
	p.frames = append(p.frames, msg)
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return true
}

// SetFull makes subsequent sends fail, simulating a saturated buffer
func (p *Participant) SetFull(full bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.full = full
}

// Rejected returns how many sends were refused
func (p *Participant) Rejected() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rejected
}

// Envelopes decodes every recorded frame
func (p *Participant) Envelopes() []model.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.Envelope, 0, len(p.frames))
	for _, f := range p.frames {
		var env model.Envelope
		if err := json.Unmarshal(f, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// EventNames returns the event name of every recorded frame, in order
func (p *Participant) EventNames() []string {
	envs := p.Envelopes()
	names := make([]string, len(envs))
	for i, e := range envs {
		names[i] = e.Event
	}
	return names
}

// Of returns the recorded envelopes with the given event name
func (p *Participant) Of(event model.EventType) []model.Envelope {
	var out []model.Envelope
	for _, e := range p.Envelopes() {
		if e.Event == string(event) {
			out = append(out, e)
		}
	}
	return out
}

// Last decodes the data of the most recent envelope of the given event into v.
// Returns false if none was recorded.
func (p *Participant) Last(event model.EventType, v any) bool {
	envs := p.Of(event)
	if len(envs) == 0 {
		return false
	}
	return json.Unmarshal(envs[len(envs)-1].Data, v) == nil
}

// Reset forgets recorded frames
func (p *Participant) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
	p.rejected = 0
}

// WaitFor blocks until at least n frames are recorded or the timeout passes
func (p *Participant) WaitFor(n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		p.mu.Lock()
		count := len(p.frames)
		p.mu.Unlock()
		if count >= n {
			return true
		}
		select {
		case <-p.notify:
		case <-deadline:
			return false
		}
	}
}
