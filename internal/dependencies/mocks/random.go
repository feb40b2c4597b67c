package mocks

import (
	"sync"

	"github.com/mcoot/livequiz/internal/dependencies/random"
)

// MockRandom is a mock implementation of Random for testing.
// Queued results are consumed in order; once a queue is empty the mock
// delegates to a real CryptoRandom so long-running tests keep working.
type MockRandom struct {
	mu sync.Mutex

	// IntnResults is a queue of results to return from Intn
	IntnResults []int
	intnIndex   int

	// StringResults is a queue of results to return from String
	StringResults []string
	stringIndex   int

	// Err, when set, is returned by every call
	Err error

	fallback *random.CryptoRandom
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{fallback: random.New()}
}

// Intn returns the next queued result, or a real draw if none remain
func (r *MockRandom) Intn(n int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	if r.intnIndex >= len(r.IntnResults) {
		return r.fallback.Intn(n)
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result, nil
}

// String returns the next queued result, or a real draw if none remain
func (r *MockRandom) String(length int, alphabet string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	if r.stringIndex >= len(r.StringResults) {
		return r.fallback.String(length, alphabet)
	}
	result := r.StringResults[r.stringIndex]
	r.stringIndex++
	return result, nil
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = append(r.IntnResults, values...)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StringResults = append(r.StringResults, values...)
}

// StringCalls returns how many queued strings have been consumed
func (r *MockRandom) StringCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stringIndex
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = nil
	r.intnIndex = 0
	r.StringResults = nil
	r.stringIndex = 0
	r.Err = nil
}
