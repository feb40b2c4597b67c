package model

import "time"

// QuestionID uniquely identifies a question
type QuestionID string

// OptionCount is the number of answer options every question carries
const OptionCount = 4

// Question is one multiple-choice item belonging to a quiz.
// Questions are immutable once created.
type Question struct {
	ID           QuestionID
	QuizID       QuizID
	Position     int // 0-indexed order within the quiz
	Text         string
	Options      []string
	CorrectIndex int
	Explanation  string
	CreatedAt    time.Time
}

// IsCorrect reports whether the selected option index is the correct one
func (q *Question) IsCorrect(selectedIndex int) bool {
	return selectedIndex == q.CorrectIndex
}

// Public returns the player-facing view, withholding the answer and explanation
func (q *Question) Public() PublicQuestion {
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		ID:      q.ID,
		Text:    q.Text,
		Options: options,
	}
}

// PublicQuestion is what players see when a quiz starts
type PublicQuestion struct {
	ID      QuestionID
	Text    string
	Options []string
}

// GeneratedQuestion is a validated record returned by the content generator
type GeneratedQuestion struct {
	Question     string
	Options      []string
	CorrectIndex int
	Explanation  string
}
