package coordinator

import (
	"context"
	"log/slog"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/answer"
	"github.com/mcoot/livequiz/internal/services/lifecycle"
	"github.com/mcoot/livequiz/internal/services/room"
)

// JoinRoom places a connection in the room for code. Everyone in the room
// sees a lobby_update; a joiner arriving after the start also gets the
// questions and the current leaderboard.
func (c *Coordinator) JoinRoom(ctx context.Context, code model.JoinCode, p room.Participant, name string) (room.Snapshot, error) {
	return c.registry.Join(ctx, code, p, name)
}

// Disconnect removes a connection from its room. Answers it already
// submitted keep processing.
func (c *Coordinator) Disconnect(p room.Participant) {
	c.registry.Leave(p)
}

// Watch attaches a read-only spectator to the room for code
func (c *Coordinator) Watch(ctx context.Context, code model.JoinCode, p room.Participant) (*room.Room, error) {
	return c.registry.Watch(ctx, code, p)
}

// Unwatch detaches a spectator
func (c *Coordinator) Unwatch(r *room.Room, p room.Participant) {
	c.registry.Unwatch(r, p)
}

// RoomOf returns the room a connection joined, or nil
func (c *Coordinator) RoomOf(p room.Participant) *room.Room {
	return c.registry.RoomOf(p)
}

// SubmitAnswer scores a submission. Processing is detached from ctx
// cancellation so a disconnect mid-answer cannot lose the score.
func (c *Coordinator) SubmitAnswer(ctx context.Context, sub answer.Submission) (*answer.Result, error) {
	r, err := c.registry.Open(ctx, sub.JoinCode)
	if err != nil {
		return nil, err
	}
	return c.answers.Process(context.WithoutCancel(ctx), r, sub)
}

// Start moves the quiz behind code to Live and announces it once
func (c *Coordinator) Start(ctx context.Context, code model.JoinCode) (*lifecycle.Transition, error) {
	r, err := c.registry.Open(ctx, code)
	if err != nil {
		return nil, err
	}

	r.Lock()
	defer r.Unlock()

	quiz, err := c.storage.GetQuiz(ctx, r.QuizID)
	if err != nil {
		return nil, err
	}
	t, err := c.lifecycle.Start(ctx, quiz)
	if err != nil {
		return nil, err
	}

	r.SetState(t.Quiz.Status, t.Session.ID)
	r.Touch(c.clock.Now())
	if t.Changed {
		c.broadcaster.ToRoom(r, model.EventQuizStart, model.NewQuizStartPayload(t.Session.ID, t.Questions))
	}
	return t, nil
}

// End moves the quiz behind code to Ended and announces it once
func (c *Coordinator) End(ctx context.Context, code model.JoinCode) (*lifecycle.Transition, error) {
	r, err := c.registry.Open(ctx, code)
	if err != nil {
		return nil, err
	}

	r.Lock()
	defer r.Unlock()

	quiz, err := c.storage.GetQuiz(ctx, r.QuizID)
	if err != nil {
		return nil, err
	}
	t, err := c.lifecycle.End(ctx, quiz)
	if err != nil {
		return nil, err
	}

	r.Touch(c.clock.Now())
	if t.Changed {
		r.SetState(model.QuizStatusEnded, "")
		c.broadcaster.ToRoom(r, model.EventQuizEnd, model.QuizEndPayload{Message: QuizEndMessage})
	}
	return t, nil
}

// MemberJoined implements room.Observer
func (c *Coordinator) MemberJoined(r *room.Room, s room.Snapshot) {
	c.broadcaster.ToRoom(r, model.EventLobbyUpdate, model.LobbyUpdatePayload{
		Player:  s.Player,
		Action:  model.LobbyActionJoined,
		Members: s.Members,
	})

	if s.Status == model.QuizStatusLive && s.SessionID != "" && s.Handle != nil {
		ctx, cancel := context.WithTimeout(context.Background(), catchUpTimeout)
		defer cancel()
		c.catchUp(ctx, s.QuizID, s.SessionID, s.Handle)
	}
}

// MemberLeft implements room.Observer
func (c *Coordinator) MemberLeft(r *room.Room, d room.Departure) {
	c.broadcaster.ToRoom(r, model.EventLobbyUpdate, model.LobbyUpdatePayload{
		Player:  d.Player,
		Action:  model.LobbyActionLeft,
		Members: d.Members,
	})
}

// WatcherAdded implements room.Observer. A spectator arriving after the
// start gets the questions and the current leaderboard.
func (c *Coordinator) WatcherAdded(r *room.Room, p room.Participant) {
	if r.Status() != model.QuizStatusLive || r.SessionID() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), catchUpTimeout)
	defer cancel()
	c.catchUp(ctx, r.QuizID, r.SessionID(), p)
}

// catchUp sends quiz_start and the current leaderboard to one late arrival
func (c *Coordinator) catchUp(ctx context.Context, quizID model.QuizID, sessionID model.SessionID, p room.Participant) {
	logger := c.logger.With(slog.String("quiz_id", string(quizID)), slog.String("handle", p.ID()))

	questions, err := c.storage.ListQuestions(ctx, quizID)
	if err != nil {
		logger.Warn("late join catch-up failed", slog.Any("error", err))
		return
	}
	c.broadcaster.SendTo(p, model.EventQuizStart, model.NewQuizStartPayload(sessionID, questions))

	rows, err := c.storage.ListScoresWithUser(ctx, sessionID)
	if err != nil {
		logger.Warn("late join leaderboard failed", slog.Any("error", err))
		return
	}
	c.broadcaster.SendTo(p, model.EventLeaderboardUpdate, model.NewLeaderboardRows(model.Leaderboard(rows)))
}
