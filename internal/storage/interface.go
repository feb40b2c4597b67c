package storage

import (
	"context"
	"time"

	"github.com/mcoot/livequiz/internal/model"
)

// Store defines the persistence boundary for quizzes, runs and scores.
// Every implementation must make CreateQuiz, CreateSession, CreateResponse
// and UpsertIncrementScore atomic with respect to concurrent callers.
type Store interface {
	// Quiz operations
	CreateQuiz(ctx context.Context, quiz *model.Quiz) error // model.ErrJoinCodeTaken if an open quiz holds the code
	GetQuiz(ctx context.Context, id model.QuizID) (*model.Quiz, error)
	GetQuizByCode(ctx context.Context, code model.JoinCode) (*model.Quiz, error)
	UpdateQuizStatus(ctx context.Context, id model.QuizID, status model.QuizStatus) error

	// Question operations
	CreateQuestions(ctx context.Context, quizID model.QuizID, questions []*model.Question) error
	ListQuestions(ctx context.Context, quizID model.QuizID) ([]*model.Question, error)
	GetQuestion(ctx context.Context, id model.QuestionID) (*model.Question, error)

	// Session operations
	CreateSession(ctx context.Context, session *model.Session) error // model.ErrActiveSessionExists
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)
	FindActiveSession(ctx context.Context, quizID model.QuizID) (*model.Session, error)
	DeactivateSession(ctx context.Context, id model.SessionID, endedAt time.Time) error

	// Answer and score operations
	CreateResponse(ctx context.Context, response *model.Response) error // model.ErrDuplicateAnswer
	UpsertIncrementScore(ctx context.Context, sessionID model.SessionID, userID model.UserID, delta int) (int, error)
	ListScoresWithUser(ctx context.Context, sessionID model.SessionID) ([]model.ScoreWithUser, error)

	// User operations
	UpsertUser(ctx context.Context, key, name string, isGuest bool) (*model.User, error)
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)
}
