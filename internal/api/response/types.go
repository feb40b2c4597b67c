package response

import (
	"time"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/coordinator"
)

// CreateQuizResponse identifies a newly created quiz
type CreateQuizResponse struct {
	QuizID    string `json:"quizId"`
	JoinCode  string `json:"joinCode"`
	SessionID string `json:"sessionId"`
}

// CreateQuizResponseFromOutput converts a coordinator result
func CreateQuizResponseFromOutput(out *coordinator.CreateQuizOutput) CreateQuizResponse {
	return CreateQuizResponse{
		QuizID:    string(out.QuizID),
		JoinCode:  string(out.JoinCode),
		SessionID: string(out.SessionID),
	}
}

// Quiz is the host-facing quiz summary
type Quiz struct {
	QuizID          string    `json:"quizId"`
	Title           string    `json:"title"`
	Topic           string    `json:"topic"`
	JoinCode        string    `json:"joinCode"`
	Status          string    `json:"status"`
	QuestionCount   int       `json:"questionCount"`
	ActiveSessionID *string   `json:"activeSessionId"`
	ConnectedCount  int       `json:"connectedCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// QuizFromSummary converts a model.QuizSummary
func QuizFromSummary(s *model.QuizSummary) Quiz {
	q := Quiz{
		QuizID:         string(s.Quiz.ID),
		Title:          s.Quiz.Title,
		Topic:          s.Quiz.Topic,
		JoinCode:       string(s.Quiz.JoinCode),
		Status:         string(s.Quiz.Status),
		QuestionCount:  s.QuestionCount,
		ConnectedCount: s.ConnectedCount,
		CreatedAt:      s.Quiz.CreatedAt,
	}
	if s.ActiveSession != nil {
		id := string(*s.ActiveSession)
		q.ActiveSessionID = &id
	}
	return q
}

// Transition is the result of a start or end action
type Transition struct {
	OK        bool   `json:"ok"`
	Changed   bool   `json:"changed"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
}

// Player is a registered player identity
type Player struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// PlayerFromModel converts a model.User
func PlayerFromModel(u *model.User) Player {
	return Player{UserID: string(u.ID), Name: u.Name}
}

// Health is the health check response
type Health struct {
	Status string `json:"status"`
}
