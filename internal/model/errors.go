package model

import (
	"errors"
	"fmt"
)

// Error classes. Specific errors below wrap one of these so callers can
// branch on the class with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrStoreFailure = errors.New("store failure")
)

// Common errors used across the application
var (
	// Lookup errors
	ErrQuizNotFound     = fmt.Errorf("quiz %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrSessionNotFound  = fmt.Errorf("session %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)

	// Input errors
	ErrTopicRequired      = fmt.Errorf("%w: topic is required", ErrInvalidInput)
	ErrInvalidOption      = fmt.Errorf("%w: selected option out of range", ErrInvalidInput)
	ErrDuplicateAnswer    = fmt.Errorf("%w: answer already submitted for this question", ErrInvalidInput)
	ErrQuizNotLive        = fmt.Errorf("%w: quiz is not accepting answers", ErrInvalidInput)
	ErrInvalidQuestionSet = fmt.Errorf("%w: question must have exactly 4 options", ErrInvalidInput)

	// Lifecycle errors
	ErrNoQuestions = errors.New("quiz has no questions")
	ErrQuizEnded   = errors.New("quiz has ended")

	// Store conflicts
	ErrJoinCodeTaken       = errors.New("join code already in use")
	ErrActiveSessionExists = errors.New("quiz already has an active session")
	ErrJoinCodeExhausted   = fmt.Errorf("%w: could not allocate a unique join code", ErrStoreFailure)
)

// StoreFailure wraps a backend error so it classifies as ErrStoreFailure
// while keeping the original error in the chain.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}
