package model

import "time"

// SessionID uniquely identifies one run of a quiz
type SessionID string

// Session is a single run of a quiz's question set.
// At most one session per quiz is active at a time.
type Session struct {
	ID        SessionID
	QuizID    QuizID
	IsActive  bool
	CreatedAt time.Time
	EndedAt   *time.Time // nil while active
}

// UserID uniquely identifies a player or host
type UserID string

// User is a player or host identity
type User struct {
	ID        UserID
	Key       string // email, or a synthesized guest key
	Name      string
	IsGuest   bool // true when Key was synthesized
	CreatedAt time.Time
}

// ResponseID uniquely identifies a recorded answer
type ResponseID string

// Response is one player's answer to one question within a session.
// Write-once per (session, user, question).
type Response struct {
	ID            ResponseID
	SessionID     SessionID
	UserID        UserID
	QuestionID    QuestionID
	SelectedIndex int
	IsCorrect     bool
	TimeTakenMs   int
	CreatedAt     time.Time
}

// ScoreWithUser is one leaderboard row as returned by the store
type ScoreWithUser struct {
	SessionID SessionID
	UserID    UserID
	Name      string
	Score     int
}

// LeaderboardEntry is one ranked row in a leaderboard snapshot
type LeaderboardEntry struct {
	UserID UserID
	Name   string
	Score  int
}

// Leaderboard converts store rows into a snapshot, preserving order
func Leaderboard(rows []ScoreWithUser) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, len(rows))
	for i, r := range rows {
		entries[i] = LeaderboardEntry{
			UserID: r.UserID,
			Name:   r.Name,
			Score:  r.Score,
		}
	}
	return entries
}
