package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/livequiz/internal/api"
	"github.com/mcoot/livequiz/internal/factory"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/coordinator"
	"github.com/mcoot/livequiz/internal/testutil"
)

func startServer(t *testing.T) (*factory.TestApp, *httptest.Server) {
	t.Helper()
	app := factory.NewTestApp()
	router := api.NewRouter(api.RouterConfig{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Coordinator: app.Coordinator,
		Realtime:    app.Realtime,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return app, server
}

func runCmd(serverURL string, args ...string) (string, error) {
	cmd := NewRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(append([]string{"--server", serverURL, "--output", "json"}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestQuizCommands(t *testing.T) {
	app, server := startServer(t)
	app.MockRandom.QueueString("ROMA22")

	output, err := runCmd(server.URL, "quiz", "create", "--topic", "Roman Empire", "--host", "Livia")
	require.NoError(t, err, "output: %s", output)
	var created CreateQuizResult
	require.NoError(t, json.Unmarshal([]byte(output), &created))
	assert.Equal(t, "ROMA22", created.JoinCode)

	output, err = runCmd(server.URL, "quiz", "get", "roma22")
	require.NoError(t, err, "output: %s", output)
	var quiz Quiz
	require.NoError(t, json.Unmarshal([]byte(output), &quiz))
	assert.Equal(t, "Quiz: Roman Empire", quiz.Title)
	assert.Equal(t, "draft", quiz.Status)
	assert.Equal(t, 3, quiz.QuestionCount)

	output, err = runCmd(server.URL, "quiz", "start", "ROMA22")
	require.NoError(t, err, "output: %s", output)
	var started Transition
	require.NoError(t, json.Unmarshal([]byte(output), &started))
	assert.True(t, started.Changed)
	assert.Equal(t, "live", started.Status)
	assert.Equal(t, created.SessionID, started.SessionID)

	output, err = runCmd(server.URL, "quiz", "end", "ROMA22")
	require.NoError(t, err, "output: %s", output)
	var ended Transition
	require.NoError(t, json.Unmarshal([]byte(output), &ended))
	assert.Equal(t, "ended", ended.Status)

	output, err = runCmd(server.URL, "leaderboard", created.SessionID)
	require.NoError(t, err, "output: %s", output)
	var board Leaderboard
	require.NoError(t, json.Unmarshal([]byte(output), &board))
	assert.Empty(t, board)
}

func TestCommandErrors(t *testing.T) {
	_, server := startServer(t)

	_, err := runCmd(server.URL, "quiz", "get", "ZZZZZZ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUIZ_NOT_FOUND")

	_, err = runCmd(server.URL, "quiz", "create", "--topic", "  ")
	assert.Error(t, err)
}

func TestPlayerJoinAndHealth(t *testing.T) {
	_, server := startServer(t)

	output, err := runCmd(server.URL, "player", "join", "--name", "Alice")
	require.NoError(t, err, "output: %s", output)
	var player Player
	require.NoError(t, json.Unmarshal([]byte(output), &player))
	assert.Equal(t, "Alice", player.Name)
	assert.NotEmpty(t, player.UserID)

	output, err = runCmd(server.URL, "health")
	require.NoError(t, err, "output: %s", output)
	assert.Contains(t, output, `"ok"`)
}

func createQuiz(t *testing.T, app *factory.TestApp) *coordinator.CreateQuizOutput {
	t.Helper()
	out, err := app.Coordinator.CreateQuiz(context.Background(), coordinator.CreateQuizInput{Topic: "Roman Empire"})
	require.NoError(t, err)
	return out
}

func TestPlayAnswersEveryQuestion(t *testing.T) {
	app, server := startServer(t)
	quiz := createQuiz(t, app)
	alice, err := app.Coordinator.JoinPlayer(context.Background(), "Alice", "")
	require.NoError(t, err)

	cfg = &Config{ServerURL: server.URL}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var buf bytes.Buffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- play(ctx, cfg.WebSocketURL(), playOptions{
			Code:   string(quiz.JoinCode),
			Name:   "Alice",
			UserID: string(alice.ID),
			Answer: 0,
			JSON:   true,
		}, &buf)
	}()

	require.Eventually(t, func() bool {
		return len(app.Registry.MembersOf(quiz.JoinCode)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	watcher := testutil.NewParticipant("watcher")
	_, err = app.Coordinator.Watch(context.Background(), quiz.JoinCode, watcher)
	require.NoError(t, err)

	_, err = app.Coordinator.Start(context.Background(), quiz.JoinCode)
	require.NoError(t, err)

	// Every processed answer produces one leaderboard update
	require.Eventually(t, func() bool {
		return len(watcher.Of(model.EventLeaderboardUpdate)) == 3
	}, 5*time.Second, 10*time.Millisecond)

	// Only the first question's correct option is 0
	board, err := app.Coordinator.Leaderboard(context.Background(), quiz.SessionID)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 15, board[0].Score)

	_, err = app.Coordinator.End(context.Background(), quiz.JoinCode)
	require.NoError(t, err)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("play did not return after quiz_end")
	}

	var events []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var evt SSEEvent
		require.NoError(t, json.Unmarshal([]byte(line), &evt), line)
		events = append(events, evt.Event)
	}
	assert.Equal(t, string(model.EventLobbyUpdate), events[0])
	assert.Contains(t, events, string(model.EventQuizStart))
	assert.Equal(t, string(model.EventQuizEnd), events[len(events)-1])
}

func TestStreamEvents(t *testing.T) {
	app, server := startServer(t)
	quiz := createQuiz(t, app)

	cfg = &Config{ServerURL: server.URL}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf bytes.Buffer
	errCh := make(chan error, 1)
	go func() {
		errCh <- streamEvents(ctx, string(quiz.JoinCode), &buf, false)
	}()

	require.Eventually(t, func() bool {
		r := app.Registry.Get(quiz.JoinCode)
		return r != nil && r.WatcherCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, err := app.Coordinator.Start(context.Background(), quiz.JoinCode)
	require.NoError(t, err)
	_, err = app.Coordinator.End(context.Background(), quiz.JoinCode)
	require.NoError(t, err)

	// Let the frames reach the stream before disconnecting
	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on cancel")
	}

	output := buf.String()
	assert.Contains(t, output, "Connected to quiz "+string(quiz.JoinCode))
	assert.Contains(t, output, "quiz_start: ")
	assert.Contains(t, output, "quiz_end: ")
	assert.Contains(t, output, "Disconnected")
}

func TestReadSSE(t *testing.T) {
	stream := ": keepalive\n\n" +
		"event: connected\ndata: {}\n\n" +
		"event: quiz_end\ndata: line one\ndata: line two\n\n" +
		"data: orphan\n\n"

	type evt struct{ event, data string }
	var got []evt
	err := readSSE(strings.NewReader(stream), func(event, data string) {
		got = append(got, evt{event, data})
	})
	require.NoError(t, err)
	assert.Equal(t, []evt{
		{"connected", "{}"},
		{"quiz_end", "line one\nline two"},
	}, got)
}

func TestWebSocketURL(t *testing.T) {
	tests := []struct {
		server   string
		expected string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws"},
		{"https://quiz.example/", "wss://quiz.example/ws"},
	}
	for _, tt := range tests {
		c := &Config{ServerURL: tt.server}
		assert.Equal(t, tt.expected, c.WebSocketURL())
	}
}

func TestQuizPath(t *testing.T) {
	assert.Equal(t, "/api/v1/quizzes/ABC234", quizPath(" abc234 "))
	assert.Equal(t, "/api/v1/quizzes/ABC234/start", quizPath("abc234", "start"))
}

func TestLeaderboardText(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{format: "text", w: &buf}

	out.Print(Leaderboard{
		{UserID: "u1", Name: "Alice", Score: 14},
		{UserID: "u2", Name: "Bo", Score: 0},
	})
	assert.Equal(t, " 1. Alice 14\n 2. Bo    0\n", buf.String())

	buf.Reset()
	out.Print(Leaderboard{})
	assert.Equal(t, "No scores yet\n", buf.String())
}
