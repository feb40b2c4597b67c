package model

import "time"

// QuizID uniquely identifies a quiz
type QuizID string

// JoinCode is the short human-shareable code players use to enter a room
type JoinCode string

// QuizStatus represents the lifecycle phase of a quiz
type QuizStatus string

const (
	QuizStatusDraft QuizStatus = "draft" // Created, not yet accepting answers
	QuizStatusLive  QuizStatus = "live"  // Accepting answers
	QuizStatusEnded QuizStatus = "ended" // Terminal
)

// CanTransitionTo reports whether moving from s to next is a valid forward transition.
// Staying in the same state is not a transition.
func (s QuizStatus) CanTransitionTo(next QuizStatus) bool {
	switch s {
	case QuizStatusDraft:
		return next == QuizStatusLive
	case QuizStatusLive:
		return next == QuizStatusEnded
	default:
		return false
	}
}

// IsOpen returns true while the quiz still owns its join code
func (s QuizStatus) IsOpen() bool {
	return s == QuizStatusDraft || s == QuizStatusLive
}

// Quiz is a hosted set of questions reachable through a join code
type Quiz struct {
	ID         QuizID
	Title      string
	Topic      string
	JoinCode   JoinCode
	Status     QuizStatus
	HostUserID UserID
	CreatedAt  time.Time
}

// QuizSummary is the host-facing view of a quiz
type QuizSummary struct {
	Quiz           Quiz
	QuestionCount  int
	ActiveSession  *SessionID
	ConnectedCount int
}
