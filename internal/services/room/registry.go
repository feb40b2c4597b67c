// Package room tracks live rooms: which connection handles are present
// under each join code, plus a cached view of the quiz they belong to.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/livequiz/internal/dependencies/clock"
	"github.com/mcoot/livequiz/internal/model"
)

const (
	// DefaultIdleTimeout is how long an empty room survives without activity
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultReapInterval is how often the reaper scans for idle rooms
	DefaultReapInterval = time.Minute

	maxJoinAttempts = 3
)

// QuizLookup is the slice of the store the registry reads
type QuizLookup interface {
	GetQuizByCode(ctx context.Context, code model.JoinCode) (*model.Quiz, error)
	FindActiveSession(ctx context.Context, quizID model.QuizID) (*model.Session, error)
}

// Observer is told about roster changes while the room lock is held,
// so anything it emits is ordered with the room's other events.
type Observer interface {
	MemberJoined(r *Room, s Snapshot)
	MemberLeft(r *Room, d Departure)
	WatcherAdded(r *Room, p Participant)
}

// Config controls room reclamation
type Config struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// DefaultConfig returns the default reclamation settings
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  DefaultIdleTimeout,
		ReapInterval: DefaultReapInterval,
	}
}

// Registry maps join codes to live rooms and handles to their room
type Registry struct {
	lookup   QuizLookup
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
	observer Observer

	mu      sync.Mutex
	rooms   map[model.JoinCode]*Room
	handles map[string]*Room
}

// NewRegistry creates an empty registry
func NewRegistry(lookup QuizLookup, clk clock.Clock, logger *slog.Logger, cfg Config) *Registry {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = DefaultReapInterval
	}
	return &Registry{
		lookup:  lookup,
		clock:   clk,
		logger:  logger.With(slog.String("component", "room")),
		cfg:     cfg,
		rooms:   make(map[model.JoinCode]*Room),
		handles: make(map[string]*Room),
	}
}

// Observe sets the roster observer. Call before serving traffic.
func (reg *Registry) Observe(o Observer) {
	reg.observer = o
}

// IdleTimeout returns the configured idle timeout
func (reg *Registry) IdleTimeout() time.Duration {
	return reg.cfg.IdleTimeout
}

// Open returns the live room for code, creating it from the store if needed.
// Unknown codes return model.ErrQuizNotFound and create nothing.
func (reg *Registry) Open(ctx context.Context, code model.JoinCode) (*Room, error) {
	code = NormalizeCode(string(code))
	if code == "" {
		return nil, model.ErrQuizNotFound
	}

	reg.mu.Lock()
	existing := reg.rooms[code]
	reg.mu.Unlock()
	if existing != nil && existing.Status() != model.QuizStatusEnded && !existing.isReaped() {
		return existing, nil
	}

	// Either no room yet, or an ended one whose code may have been reissued
	quiz, err := reg.lookup.GetQuizByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	var sessionID model.SessionID
	session, err := reg.lookup.FindActiveSession(ctx, quiz.ID)
	switch {
	case err == nil:
		sessionID = session.ID
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, err
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if current, ok := reg.rooms[code]; ok && current.QuizID == quiz.ID && !current.isReaped() {
		return current, nil
	}
	r := newRoom(quiz, sessionID, reg.clock.Now())
	reg.rooms[code] = r
	reg.logger.Info("room opened",
		slog.String("join_code", string(code)),
		slog.String("quiz_id", string(quiz.ID)),
		slog.String("status", string(quiz.Status)))
	return r, nil
}

// Get returns the live room for code, or nil
func (reg *Registry) Get(code model.JoinCode) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[NormalizeCode(string(code))]
}

// RoomOf returns the room p is currently in, or nil
func (reg *Registry) RoomOf(p Participant) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.handles[p.ID()]
}

// Count returns the number of live rooms
func (reg *Registry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Join adds p to the room for code under the given display name.
// Joining twice is idempotent; joining a different room moves the handle.
func (reg *Registry) Join(ctx context.Context, code model.JoinCode, p Participant, name string) (Snapshot, error) {
	name = SanitizeName(name)

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		r, err := reg.Open(ctx, code)
		if err != nil {
			return Snapshot{}, err
		}

		if prev := reg.RoomOf(p); prev != nil && prev != r {
			reg.Leave(p)
		}

		r.Lock()
		snap, ok := r.add(p, name, reg.clock.Now())
		if !ok {
			// Reaped between Open and add
			r.Unlock()
			continue
		}
		reg.mu.Lock()
		reg.handles[p.ID()] = r
		reg.mu.Unlock()
		if reg.observer != nil {
			reg.observer.MemberJoined(r, snap)
		}
		r.Unlock()

		reg.logger.Debug("participant joined",
			slog.String("join_code", string(r.Code)),
			slog.String("handle", p.ID()),
			slog.Int("members", len(snap.Members)))
		return snap, nil
	}
	return Snapshot{}, fmt.Errorf("room %s: %w", code, model.ErrQuizNotFound)
}

// Leave removes p from whichever room holds it. Unknown handles are ignored.
func (reg *Registry) Leave(p Participant) {
	reg.mu.Lock()
	r, ok := reg.handles[p.ID()]
	if ok {
		delete(reg.handles, p.ID())
	}
	reg.mu.Unlock()
	if !ok {
		return
	}

	r.Lock()
	defer r.Unlock()
	d, removed := r.remove(p, reg.clock.Now())
	if !removed {
		return
	}
	reg.logger.Debug("participant left",
		slog.String("join_code", string(r.Code)),
		slog.String("handle", p.ID()),
		slog.Int("members", len(d.Members)))
	if reg.observer != nil {
		reg.observer.MemberLeft(r, d)
	}
}

// Watch attaches p to the room for code as a read-only watcher. Watchers
// receive room events but are not listed as members.
func (reg *Registry) Watch(ctx context.Context, code model.JoinCode, p Participant) (*Room, error) {
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		r, err := reg.Open(ctx, code)
		if err != nil {
			return nil, err
		}
		r.Lock()
		ok := r.addWatcher(p, reg.clock.Now())
		if ok && reg.observer != nil {
			reg.observer.WatcherAdded(r, p)
		}
		r.Unlock()
		if ok {
			return r, nil
		}
	}
	return nil, fmt.Errorf("room %s: %w", code, model.ErrQuizNotFound)
}

// Unwatch detaches a watcher from r
func (reg *Registry) Unwatch(r *Room, p Participant) {
	r.Lock()
	defer r.Unlock()
	r.removeWatcher(p, reg.clock.Now())
}

// MembersOf returns the handles in the room for code, in join order
func (reg *Registry) MembersOf(code model.JoinCode) []Participant {
	r := reg.Get(code)
	if r == nil {
		return nil
	}
	return r.Participants()
}

// Reap drops rooms that are empty and either ended or idle past the timeout
func (reg *Registry) Reap(now time.Time) int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	removed := 0
	for code, r := range reg.rooms {
		if r.reapIfIdle(now, reg.cfg.IdleTimeout) {
			delete(reg.rooms, code)
			removed++
		}
	}
	if removed > 0 {
		reg.logger.Info("idle rooms reaped", slog.Int("removed", removed), slog.Int("remaining", len(reg.rooms)))
	}
	return removed
}

// RunReaper reaps on every ReapInterval until ctx is cancelled
func (reg *Registry) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(reg.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Reap(reg.clock.Now())
		}
	}
}
