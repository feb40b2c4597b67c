// Package answer validates, records and scores player submissions.
package answer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/livequiz/internal/dependencies/clock"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/broadcast"
	"github.com/mcoot/livequiz/internal/services/room"
	"github.com/mcoot/livequiz/internal/services/scoring"
	"github.com/mcoot/livequiz/internal/storage"
)

// Submission is one player's answer as received from a connection
type Submission struct {
	JoinCode      model.JoinCode
	SessionID     model.SessionID
	UserID        model.UserID
	QuestionID    model.QuestionID
	SelectedIndex int
	TimeTakenMs   int
}

// Result is the outcome of a processed submission
type Result struct {
	// Dropped is set when the question is unknown or belongs to another quiz
	Dropped     bool
	Correct     bool
	Points      int
	Total       int
	Leaderboard []model.LeaderboardEntry
}

// Processor scores answers and publishes the resulting leaderboard
type Processor struct {
	storage     storage.Store
	broadcaster *broadcast.Broadcaster
	clock       clock.Clock
	logger      *slog.Logger
}

// NewProcessor creates a new answer Processor
func NewProcessor(storage storage.Store, broadcaster *broadcast.Broadcaster, clock clock.Clock, logger *slog.Logger) *Processor {
	return &Processor{
		storage:     storage,
		broadcaster: broadcaster,
		clock:       clock,
		logger:      logger.With(slog.String("component", "answer")),
	}
}

// Process handles one submission for room r.
//
// Validation and the response insert run without the room lock; the store
// guarantees first-answer-wins. The score increment, leaderboard recompute
// and broadcast run under the room lock so updates leave in increment order.
//
// A stored response is final even when the increment that follows fails:
// retries of that question are rejected as duplicates and score nothing.
func (p *Processor) Process(ctx context.Context, r *room.Room, sub Submission) (*Result, error) {
	logger := p.logger.With(
		slog.String("join_code", string(r.Code)),
		slog.String("user_id", string(sub.UserID)),
		slog.String("question_id", string(sub.QuestionID)))

	question, err := p.storage.GetQuestion(ctx, sub.QuestionID)
	if errors.Is(err, model.ErrNotFound) {
		logger.Debug("answer dropped - unknown question")
		return &Result{Dropped: true}, nil
	}
	if err != nil {
		logger.Error("failed to load question", slog.Any("error", err))
		return nil, err
	}
	if question.QuizID != r.QuizID {
		logger.Debug("answer dropped - question belongs to another quiz")
		return &Result{Dropped: true}, nil
	}

	if r.Status() != model.QuizStatusLive || sub.SessionID == "" || sub.SessionID != r.SessionID() {
		return nil, model.ErrQuizNotLive
	}
	if sub.SelectedIndex < 0 || sub.SelectedIndex >= model.OptionCount {
		return nil, model.ErrInvalidOption
	}
	if _, err := p.storage.GetUser(ctx, sub.UserID); err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			logger.Error("failed to load user", slog.Any("error", err))
		}
		return nil, err
	}

	elapsed := scoring.ClampElapsed(sub.TimeTakenMs)
	correct := question.IsCorrect(sub.SelectedIndex)
	points := scoring.Score(correct, elapsed)

	response := &model.Response{
		SessionID:     sub.SessionID,
		UserID:        sub.UserID,
		QuestionID:    sub.QuestionID,
		SelectedIndex: sub.SelectedIndex,
		IsCorrect:     correct,
		TimeTakenMs:   elapsed,
		CreatedAt:     p.clock.Now(),
	}
	if err := p.storage.CreateResponse(ctx, response); err != nil {
		if errors.Is(err, model.ErrDuplicateAnswer) {
			logger.Debug("duplicate answer rejected")
		} else {
			logger.Error("failed to record response", slog.Any("error", err))
		}
		return nil, err
	}

	r.Lock()
	defer r.Unlock()

	total, err := p.storage.UpsertIncrementScore(ctx, sub.SessionID, sub.UserID, points)
	if err != nil {
		logger.Error("failed to increment score", slog.Any("error", err))
		return nil, err
	}
	rows, err := p.storage.ListScoresWithUser(ctx, sub.SessionID)
	if err != nil {
		logger.Error("failed to list scores", slog.Any("error", err))
		return nil, err
	}
	entries := model.Leaderboard(rows)
	r.Touch(p.clock.Now())

	// An End that slipped in after validation still counts the answer,
	// but nothing is published after quiz_end
	if r.Status() == model.QuizStatusLive {
		p.broadcaster.ToRoom(r, model.EventLeaderboardUpdate, model.NewLeaderboardRows(entries))
	}

	logger.Debug("answer scored",
		slog.Bool("correct", correct),
		slog.Int("points", points),
		slog.Int("total", total))

	return &Result{
		Correct:     correct,
		Points:      points,
		Total:       total,
		Leaderboard: entries,
	}, nil
}
