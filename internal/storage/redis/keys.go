package redis

import (
	"fmt"

	"github.com/mcoot/livequiz/internal/model"
)

// Key prefix for all quiz-related data
const keyPrefix = "livequiz"

// quizKey returns the Redis key for a Quiz
func quizKey(id model.QuizID) string {
	return fmt.Sprintf("%s:quiz:%s", keyPrefix, id)
}

// openCodeIndexKey maps a join code to the quiz currently holding it
func openCodeIndexKey(code model.JoinCode) string {
	return fmt.Sprintf("%s:idx:quizcode:%s", keyPrefix, code)
}

// endedCodeIndexKey maps a join code to the most recently ended quiz that used it
func endedCodeIndexKey(code model.JoinCode) string {
	return fmt.Sprintf("%s:idx:quizcode_ended:%s", keyPrefix, code)
}

// questionKey returns the Redis key for a Question
func questionKey(id model.QuestionID) string {
	return fmt.Sprintf("%s:question:%s", keyPrefix, id)
}

// questionsForQuizIndexKey returns the LIST of question ids for a quiz
func questionsForQuizIndexKey(quizID model.QuizID) string {
	return fmt.Sprintf("%s:idx:questions_for_quiz:%s", keyPrefix, quizID)
}

// sessionKey returns the Redis key for a Session
func sessionKey(id model.SessionID) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, id)
}

// activeSessionIndexKey maps a quiz to its active session
func activeSessionIndexKey(quizID model.QuizID) string {
	return fmt.Sprintf("%s:idx:active_session:%s", keyPrefix, quizID)
}

// responsesKey returns the HASH of responses for a session, keyed by responseField
func responsesKey(sessionID model.SessionID) string {
	return fmt.Sprintf("%s:responses:%s", keyPrefix, sessionID)
}

func responseField(userID model.UserID, questionID model.QuestionID) string {
	return fmt.Sprintf("%s:%s", userID, questionID)
}

// scoresKey returns the HASH of user id -> score for a session
func scoresKey(sessionID model.SessionID) string {
	return fmt.Sprintf("%s:scores:%s", keyPrefix, sessionID)
}

// scoreOrderKey returns the LIST of user ids in first-score order
func scoreOrderKey(sessionID model.SessionID) string {
	return fmt.Sprintf("%s:scores_order:%s", keyPrefix, sessionID)
}

// userKey returns the Redis key for a User
func userKey(id model.UserID) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, id)
}

// userNaturalKeyIndexKey maps an email or guest key to a user id
func userNaturalKeyIndexKey(key string) string {
	return fmt.Sprintf("%s:idx:user_key:%s", keyPrefix, key)
}
