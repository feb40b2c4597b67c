// Package lifecycle drives a quiz through Draft, Live and Ended and keeps
// its run session in step.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mcoot/livequiz/internal/dependencies/clock"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/storage"
)

// Transition is the outcome of Start or End
type Transition struct {
	// Changed is false when the call was an idempotent no-op
	Changed   bool
	Quiz      *model.Quiz
	Session   *model.Session
	Questions []*model.Question // set by Start
}

// Controller applies lifecycle transitions against the store.
// Callers serialize calls per quiz by holding the room lock.
type Controller struct {
	storage storage.Store
	clock   clock.Clock
	logger  *slog.Logger
}

// NewController creates a new lifecycle Controller
func NewController(storage storage.Store, clock clock.Clock, logger *slog.Logger) *Controller {
	return &Controller{
		storage: storage,
		clock:   clock,
		logger:  logger.With(slog.String("component", "lifecycle")),
	}
}

// Start moves a Draft quiz to Live. The status update is the commit point:
// if it fails the quiz stays Draft and nothing is announced.
func (c *Controller) Start(ctx context.Context, quiz *model.Quiz) (*Transition, error) {
	switch quiz.Status {
	case model.QuizStatusEnded:
		return nil, model.ErrQuizEnded
	case model.QuizStatusLive:
		session, err := c.activeSession(ctx, quiz.ID)
		if err != nil {
			return nil, err
		}
		return &Transition{Changed: false, Quiz: quiz, Session: session}, nil
	}

	questions, err := c.storage.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, model.ErrNoQuestions
	}

	session, err := c.activeSession(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	if !quiz.Status.CanTransitionTo(model.QuizStatusLive) {
		return nil, model.ErrQuizEnded
	}
	if err := c.storage.UpdateQuizStatus(ctx, quiz.ID, model.QuizStatusLive); err != nil {
		c.logger.Error("failed to start quiz",
			slog.String("quiz_id", string(quiz.ID)),
			slog.Any("error", err))
		return nil, err
	}

	started := *quiz
	started.Status = model.QuizStatusLive
	c.logger.Info("quiz started",
		slog.String("quiz_id", string(quiz.ID)),
		slog.String("join_code", string(quiz.JoinCode)),
		slog.String("session_id", string(session.ID)),
		slog.Int("question_count", len(questions)))

	return &Transition{
		Changed:   true,
		Quiz:      &started,
		Session:   session,
		Questions: questions,
	}, nil
}

// End moves a Live quiz to Ended and deactivates its session.
// Ending a quiz that is not Live is a successful no-op. The session is
// closed before the status commit, so a failure at either step leaves the
// quiz Live and a retried End completes it.
func (c *Controller) End(ctx context.Context, quiz *model.Quiz) (*Transition, error) {
	if quiz.Status != model.QuizStatusLive {
		return &Transition{Changed: false, Quiz: quiz}, nil
	}

	session, err := c.storage.FindActiveSession(ctx, quiz.ID)
	switch {
	case err == nil:
		endedAt := c.clock.Now()
		if err := c.storage.DeactivateSession(ctx, session.ID, endedAt); err != nil {
			c.logger.Error("failed to deactivate session",
				slog.String("quiz_id", string(quiz.ID)),
				slog.String("session_id", string(session.ID)),
				slog.Any("error", err))
			return nil, err
		}
		session.IsActive = false
		session.EndedAt = &endedAt
	case errors.Is(err, model.ErrNotFound):
		session = nil
	default:
		return nil, err
	}

	if err := c.storage.UpdateQuizStatus(ctx, quiz.ID, model.QuizStatusEnded); err != nil {
		c.logger.Error("failed to end quiz",
			slog.String("quiz_id", string(quiz.ID)),
			slog.Any("error", err))
		return nil, err
	}

	ended := *quiz
	ended.Status = model.QuizStatusEnded

	c.logger.Info("quiz ended",
		slog.String("quiz_id", string(quiz.ID)),
		slog.String("join_code", string(quiz.JoinCode)))
	return &Transition{Changed: true, Quiz: &ended, Session: session}, nil
}

// activeSession returns the quiz's active session, creating one if needed
func (c *Controller) activeSession(ctx context.Context, quizID model.QuizID) (*model.Session, error) {
	session, err := c.storage.FindActiveSession(ctx, quizID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	session = &model.Session{QuizID: quizID, IsActive: true, CreatedAt: c.clock.Now()}
	err = c.storage.CreateSession(ctx, session)
	if errors.Is(err, model.ErrActiveSessionExists) {
		return c.storage.FindActiveSession(ctx, quizID)
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}
