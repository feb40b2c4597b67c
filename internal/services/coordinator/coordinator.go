// Package coordinator is the entry point for quiz actions. It ties the
// store, the room registry, lifecycle transitions, answer processing and
// broadcasts together.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/livequiz/internal/dependencies/clock"
	"github.com/mcoot/livequiz/internal/dependencies/random"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/answer"
	"github.com/mcoot/livequiz/internal/services/broadcast"
	"github.com/mcoot/livequiz/internal/services/generator"
	"github.com/mcoot/livequiz/internal/services/lifecycle"
	"github.com/mcoot/livequiz/internal/services/room"
	"github.com/mcoot/livequiz/internal/storage"
)

const (
	// MaxJoinCodeAttempts bounds join code generation on collisions
	MaxJoinCodeAttempts = 5
	// DefaultHostName is used when a quiz is created without a host name
	DefaultHostName = "Host"
	// GuestKeyDomain is appended to synthesized guest identity keys
	GuestKeyDomain = "guest.local"
	// QuizEndMessage is the quiz_end payload message
	QuizEndMessage = "Quiz ended"

	catchUpTimeout = 5 * time.Second
)

// CreateQuizInput holds the host's request for a new quiz
type CreateQuizInput struct {
	Topic    string
	Title    string
	HostName string
	Email    string
}

// CreateQuizOutput identifies a newly created quiz
type CreateQuizOutput struct {
	QuizID    model.QuizID
	JoinCode  model.JoinCode
	SessionID model.SessionID
}

// Coordinator handles quiz actions and room events
type Coordinator struct {
	storage     storage.Store
	registry    *room.Registry
	broadcaster *broadcast.Broadcaster
	lifecycle   *lifecycle.Controller
	answers     *answer.Processor
	generator   generator.Generator
	clock       clock.Clock
	random      random.Random
	logger      *slog.Logger
}

// New creates a Coordinator and registers it as the registry's roster observer
func New(
	storage storage.Store,
	registry *room.Registry,
	broadcaster *broadcast.Broadcaster,
	lifecycle *lifecycle.Controller,
	answers *answer.Processor,
	generator generator.Generator,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
) *Coordinator {
	c := &Coordinator{
		storage:     storage,
		registry:    registry,
		broadcaster: broadcaster,
		lifecycle:   lifecycle,
		answers:     answers,
		generator:   generator,
		clock:       clock,
		random:      random,
		logger:      logger.With(slog.String("component", "coordinator")),
	}
	registry.Observe(c)
	return c
}

// CreateQuiz generates questions for a topic, stores a Draft quiz under a
// fresh join code and opens its session
func (c *Coordinator) CreateQuiz(ctx context.Context, in CreateQuizInput) (*CreateQuizOutput, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return nil, model.ErrTopicRequired
	}

	host, err := c.upsertUser(ctx, room.SanitizeNameOr(in.HostName, DefaultHostName), in.Email)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Quiz: " + topic
	}

	generated := c.generator.Generate(ctx, topic)
	if len(generated) == 0 {
		c.logger.Warn("quiz created without questions", slog.String("topic", topic))
	}

	quiz, err := c.insertQuiz(ctx, title, topic, host.ID)
	if err != nil {
		return nil, err
	}

	now := c.clock.Now()
	if len(generated) > 0 {
		questions := make([]*model.Question, len(generated))
		for i, g := range generated {
			questions[i] = &model.Question{
				Position:     i,
				Text:         g.Question,
				Options:      g.Options,
				CorrectIndex: g.CorrectIndex,
				Explanation:  g.Explanation,
				CreatedAt:    now,
			}
		}
		if err := c.storage.CreateQuestions(ctx, quiz.ID, questions); err != nil {
			return nil, err
		}
	}

	session := &model.Session{QuizID: quiz.ID, IsActive: true, CreatedAt: now}
	if err := c.storage.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	c.logger.Info("quiz created",
		slog.String("quiz_id", string(quiz.ID)),
		slog.String("join_code", string(quiz.JoinCode)),
		slog.String("session_id", string(session.ID)),
		slog.Int("question_count", len(generated)))

	return &CreateQuizOutput{
		QuizID:    quiz.ID,
		JoinCode:  quiz.JoinCode,
		SessionID: session.ID,
	}, nil
}

// insertQuiz claims a join code, retrying on collisions with open quizzes
func (c *Coordinator) insertQuiz(ctx context.Context, title, topic string, hostID model.UserID) (*model.Quiz, error) {
	for attempt := 1; attempt <= MaxJoinCodeAttempts; attempt++ {
		code, err := room.GenerateJoinCode(c.random)
		if err != nil {
			return nil, fmt.Errorf("generate join code: %w", err)
		}

		quiz := &model.Quiz{
			Title:      title,
			Topic:      topic,
			JoinCode:   code,
			Status:     model.QuizStatusDraft,
			HostUserID: hostID,
			CreatedAt:  c.clock.Now(),
		}
		err = c.storage.CreateQuiz(ctx, quiz)
		if err == nil {
			return quiz, nil
		}
		if !errors.Is(err, model.ErrJoinCodeTaken) {
			return nil, err
		}
		c.logger.Debug("join code collision", slog.String("join_code", string(code)), slog.Int("attempt", attempt))
	}
	return nil, model.ErrJoinCodeExhausted
}

// JoinPlayer registers a player identity. Without an email a guest key is
// synthesized, so every call creates a new guest.
func (c *Coordinator) JoinPlayer(ctx context.Context, name, email string) (*model.User, error) {
	return c.upsertUser(ctx, room.SanitizeName(name), email)
}

func (c *Coordinator) upsertUser(ctx context.Context, name, email string) (*model.User, error) {
	key := strings.TrimSpace(email)
	isGuest := key == ""
	if isGuest {
		key = uuid.NewString() + "@" + GuestKeyDomain
	}
	return c.storage.UpsertUser(ctx, key, name, isGuest)
}

// GetQuiz returns the host-facing summary of the quiz behind code
func (c *Coordinator) GetQuiz(ctx context.Context, code model.JoinCode) (*model.QuizSummary, error) {
	code = room.NormalizeCode(string(code))
	quiz, err := c.storage.GetQuizByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	questions, err := c.storage.ListQuestions(ctx, quiz.ID)
	if err != nil {
		return nil, err
	}

	summary := &model.QuizSummary{Quiz: *quiz, QuestionCount: len(questions)}

	session, err := c.storage.FindActiveSession(ctx, quiz.ID)
	switch {
	case err == nil:
		summary.ActiveSession = &session.ID
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	if r := c.registry.Get(code); r != nil && r.QuizID == quiz.ID {
		summary.ConnectedCount = r.Len()
	}
	return summary, nil
}

// Leaderboard returns the ranked scores for a session
func (c *Coordinator) Leaderboard(ctx context.Context, sessionID model.SessionID) ([]model.LeaderboardEntry, error) {
	if _, err := c.storage.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := c.storage.ListScoresWithUser(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return model.Leaderboard(rows), nil
}
