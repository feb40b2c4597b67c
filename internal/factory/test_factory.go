package factory

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/mcoot/livequiz/internal/dependencies/mocks"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/generator"
	"github.com/mcoot/livequiz/internal/services/room"
	"github.com/mcoot/livequiz/internal/storage/memory"
)

// TestQuestions is a small fixed question set about the Roman Empire
var TestQuestions = generator.Static{
	{
		Question:     "Who was the first Roman emperor?",
		Options:      []string{"Augustus", "Julius Caesar", "Nero", "Trajan"},
		CorrectIndex: 0,
		Explanation:  "Augustus took the title in 27 BC.",
	},
	{
		Question:     "Which river did Caesar cross in 49 BC?",
		Options:      []string{"Tiber", "Rubicon", "Danube", "Rhine"},
		CorrectIndex: 1,
	},
	{
		Question:     "In which year did the Western Roman Empire fall?",
		Options:      []string{"410", "455", "476", "1453"},
		CorrectIndex: 2,
	},
}

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MemoryStorage *memory.Storage
	MockClock     *mocks.MockClock
	MockRandom    *mocks.MockRandom
}

// NewTestApp creates an App configured for testing with mocked dependencies
// and the TestQuestions generator
func NewTestApp() *TestApp {
	return NewTestAppWithGenerator(TestQuestions)
}

// NewTestAppWithGenerator is NewTestApp with a chosen question generator
func NewTestAppWithGenerator(gen generator.Generator) *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	app := newWithDependencies(store, gen, mockClock, mockRandom, room.DefaultConfig(), nil, logger)

	return &TestApp{
		App:           app,
		MemoryStorage: store,
		MockClock:     mockClock,
		MockRandom:    mockRandom,
	}
}

// QuestionIDs returns the stored question ids of a quiz in order
func (t *TestApp) QuestionIDs(ctx context.Context, quizID model.QuizID) ([]model.QuestionID, error) {
	questions, err := t.Storage.ListQuestions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	ids := make([]model.QuestionID, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids, nil
}
