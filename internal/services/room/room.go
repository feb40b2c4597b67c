package room

import (
	"sync"
	"time"

	"github.com/mcoot/livequiz/internal/model"
)

// Participant is one live connection handle. Send must never block; it
// reports false when the message could not be queued.
type Participant interface {
	ID() string
	Send(msg []byte) bool
}

// Snapshot is the room state as seen right after a join
type Snapshot struct {
	Code      model.JoinCode
	QuizID    model.QuizID
	Status    model.QuizStatus
	SessionID model.SessionID
	Player    string   // sanitized name of the joiner
	Members   []string // names in join order
	Handle    Participant
}

// Departure describes a handle that left a room
type Departure struct {
	Code    model.JoinCode
	Player  string
	Members []string // names remaining after the departure
}

type member struct {
	participant Participant
	name        string
}

// Room is the in-memory state of one join code.
//
// Lock/Unlock is the single-writer lock: roster changes, lifecycle
// transitions and the score-recompute-broadcast sequence all run under it.
// The accessor methods are safe to call with or without it.
type Room struct {
	Code   model.JoinCode
	QuizID model.QuizID

	mu sync.Mutex

	stateMu      sync.RWMutex
	status       model.QuizStatus
	sessionID    model.SessionID
	members      []*member
	watchers     []Participant
	lastActivity time.Time
	reaped       bool
}

func newRoom(quiz *model.Quiz, sessionID model.SessionID, now time.Time) *Room {
	return &Room{
		Code:         quiz.JoinCode,
		QuizID:       quiz.ID,
		status:       quiz.Status,
		sessionID:    sessionID,
		lastActivity: now,
	}
}

// Lock acquires the room's single-writer lock
func (r *Room) Lock() {
	r.mu.Lock()
}

// Unlock releases the room's single-writer lock
func (r *Room) Unlock() {
	r.mu.Unlock()
}

// Status returns the cached quiz status
func (r *Room) Status() model.QuizStatus {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.status
}

// SessionID returns the cached active session, empty if none
func (r *Room) SessionID() model.SessionID {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.sessionID
}

// SetState records a lifecycle outcome. Callers hold the room lock.
func (r *Room) SetState(status model.QuizStatus, sessionID model.SessionID) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	r.status = status
	r.sessionID = sessionID
}

// Participants returns connected handles in join order
func (r *Room) Participants() []Participant {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	out := make([]Participant, len(r.members))
	for i, m := range r.members {
		out[i] = m.participant
	}
	return out
}

// Recipients returns every handle that should receive room events:
// members in join order followed by read-only watchers
func (r *Room) Recipients() []Participant {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	out := make([]Participant, 0, len(r.members)+len(r.watchers))
	for _, m := range r.members {
		out = append(out, m.participant)
	}
	return append(out, r.watchers...)
}

// WatcherCount returns the number of read-only watchers
func (r *Room) WatcherCount() int {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return len(r.watchers)
}

// MemberNames returns display names in join order
func (r *Room) MemberNames() []string {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.namesLocked()
}

// Len returns the number of connected handles
func (r *Room) Len() int {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return len(r.members)
}

// Touch marks the room active at now
func (r *Room) Touch(now time.Time) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if now.After(r.lastActivity) {
		r.lastActivity = now
	}
}

// LastActivity returns the last time the room saw a join, leave or action
func (r *Room) LastActivity() time.Time {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.lastActivity
}

// add registers p, or renames it when already present. Returns false if the
// room has been reaped and must not accept members.
func (r *Room) add(p Participant, name string, now time.Time) (Snapshot, bool) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.reaped {
		return Snapshot{}, false
	}

	found := false
	for _, m := range r.members {
		if m.participant.ID() == p.ID() {
			m.participant = p
			m.name = name
			found = true
			break
		}
	}
	if !found {
		r.members = append(r.members, &member{participant: p, name: name})
	}
	if now.After(r.lastActivity) {
		r.lastActivity = now
	}

	return Snapshot{
		Code:      r.Code,
		QuizID:    r.QuizID,
		Status:    r.status,
		SessionID: r.sessionID,
		Player:    name,
		Members:   r.namesLocked(),
		Handle:    p,
	}, true
}

// remove drops p from the roster
func (r *Room) remove(p Participant, now time.Time) (Departure, bool) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	for i, m := range r.members {
		if m.participant.ID() != p.ID() {
			continue
		}
		r.members = append(r.members[:i], r.members[i+1:]...)
		if now.After(r.lastActivity) {
			r.lastActivity = now
		}
		return Departure{
			Code:    r.Code,
			Player:  m.name,
			Members: r.namesLocked(),
		}, true
	}
	return Departure{}, false
}

func (r *Room) addWatcher(p Participant, now time.Time) bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if r.reaped {
		return false
	}
	for _, w := range r.watchers {
		if w.ID() == p.ID() {
			return true
		}
	}
	r.watchers = append(r.watchers, p)
	if now.After(r.lastActivity) {
		r.lastActivity = now
	}
	return true
}

func (r *Room) removeWatcher(p Participant, now time.Time) {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	for i, w := range r.watchers {
		if w.ID() == p.ID() {
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			if now.After(r.lastActivity) {
				r.lastActivity = now
			}
			return
		}
	}
}

// reapIfIdle marks the room reaped when it is empty and either ended or idle
func (r *Room) reapIfIdle(now time.Time, idleTimeout time.Duration) bool {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()
	if len(r.members) > 0 || len(r.watchers) > 0 {
		return false
	}
	if r.status == model.QuizStatusEnded || now.Sub(r.lastActivity) >= idleTimeout {
		r.reaped = true
		return true
	}
	return false
}

func (r *Room) isReaped() bool {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.reaped
}

func (r *Room) namesLocked() []string {
	names := make([]string, len(r.members))
	for i, m := range r.members {
		names[i] = m.name
	}
	return names
}
