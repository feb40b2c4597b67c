package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/storage"
	"github.com/mcoot/livequiz/internal/storage/storagetest"
)

// testDatabaseEnv names a disposable database; its tables are truncated between tests
const testDatabaseEnv = "LIVEQUIZ_TEST_DATABASE_URL"

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	url := os.Getenv(testDatabaseEnv)
	if url == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := New(ctx, Config{URL: url, MaxConns: 20})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.pool.Exec(ctx, `TRUNCATE scores, responses, sessions, questions, quizzes, users CASCADE`)
	require.NoError(t, err)
	return s
}

func TestStoreConformance(t *testing.T) {
	if os.Getenv(testDatabaseEnv) == "" {
		t.Skipf("%s not set", testDatabaseEnv)
	}
	suite.Run(t, &storagetest.StoreSuite{
		NewStore: func(t *testing.T) storage.Store { return newTestStorage(t) },
	})
}

func TestMigrateIsRepeatable(t *testing.T) {
	s := newTestStorage(t)
	assert.NoError(t, Migrate(context.Background(), s.pool))
}

func TestHostUserReference(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	host, err := s.UpsertUser(ctx, "host@example.com", "Host", false)
	require.NoError(t, err)

	quiz := &model.Quiz{Title: "T", Topic: "T", JoinCode: "HST234", HostUserID: host.ID}
	require.NoError(t, s.CreateQuiz(ctx, quiz))

	got, err := s.GetQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, host.ID, got.HostUserID)

	err = s.CreateQuiz(ctx, &model.Quiz{Title: "T", Topic: "T", JoinCode: "HST235", HostUserID: "not-a-user"})
	assert.ErrorIs(t, err, model.ErrUserNotFound)
}
