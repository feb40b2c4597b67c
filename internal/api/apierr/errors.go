package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/livequiz/internal/model"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeTopicRequired    = "TOPIC_REQUIRED"
	CodeInvalidOption    = "INVALID_OPTION"
	CodeQuizNotFound     = "QUIZ_NOT_FOUND"
	CodeQuestionNotFound = "QUESTION_NOT_FOUND"
	CodeSessionNotFound  = "SESSION_NOT_FOUND"
	CodePlayerNotFound   = "PLAYER_NOT_FOUND"
	CodeNotFound         = "NOT_FOUND"
	CodeNoQuestions      = "NO_QUESTIONS"
	CodeQuizEnded        = "QUIZ_ENDED"
	CodeQuizNotLive      = "QUIZ_NOT_LIVE"
	CodeDuplicateAnswer  = "DUPLICATE_ANSWER"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternalError    = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	// Not found
	case errors.Is(err, model.ErrQuizNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeQuizNotFound, "Quiz not found"}}
	case errors.Is(err, model.ErrQuestionNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeQuestionNotFound, "Question not found"}}
	case errors.Is(err, model.ErrSessionNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeSessionNotFound, "Session not found"}}
	case errors.Is(err, model.ErrUserNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeNotFound, "Not found"}}

	// Conflicts with the quiz's current state
	case errors.Is(err, model.ErrNoQuestions):
		return &httpError{http.StatusConflict, APIError{CodeNoQuestions, "Quiz has no questions"}}
	case errors.Is(err, model.ErrQuizEnded):
		return &httpError{http.StatusConflict, APIError{CodeQuizEnded, "Quiz has ended"}}
	case errors.Is(err, model.ErrQuizNotLive):
		return &httpError{http.StatusConflict, APIError{CodeQuizNotLive, "Quiz is not accepting answers"}}
	case errors.Is(err, model.ErrDuplicateAnswer):
		return &httpError{http.StatusConflict, APIError{CodeDuplicateAnswer, "Answer already submitted"}}

	// Bad input
	case errors.Is(err, model.ErrTopicRequired):
		return &httpError{http.StatusBadRequest, APIError{CodeTopicRequired, "topic required"}}
	case errors.Is(err, model.ErrInvalidOption):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidOption, "Selected option out of range"}}
	case errors.Is(err, model.ErrInvalidInput):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, "Invalid request"}}

	case errors.Is(err, model.ErrStoreFailure):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeStoreUnavailable, "Storage temporarily unavailable"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
