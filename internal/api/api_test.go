package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/livequiz/internal/api"
	"github.com/mcoot/livequiz/internal/api/apierr"
	"github.com/mcoot/livequiz/internal/api/response"
	"github.com/mcoot/livequiz/internal/factory"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/answer"
	"github.com/mcoot/livequiz/internal/services/generator"
)

// testServer creates a test server with all dependencies
type testServer struct {
	handler http.Handler
	app     *factory.TestApp
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithGenerator(t, factory.TestQuestions)
}

func newTestServerWithGenerator(t *testing.T, gen generator.Generator) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	app := factory.NewTestAppWithGenerator(gen)

	router := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		Coordinator:    app.Coordinator,
		Realtime:       app.Realtime,
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	return &testServer{handler: router, app: app}
}

func (ts *testServer) request(method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		b, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(b)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createQuiz(t *testing.T, ts *testServer) response.CreateQuizResponse {
	t.Helper()
	rr := ts.request(http.MethodPost, "/api/v1/quizzes", map[string]string{"topic": "Roman Empire"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[response.CreateQuizResponse](t, rr)
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[response.Health](t, rr).Status)
}

func TestCreateQuiz(t *testing.T) {
	ts := newTestServer(t)
	ts.app.MockRandom.QueueString("ROMA22")

	resp := createQuiz(t, ts)
	assert.Equal(t, "ROMA22", resp.JoinCode)
	assert.NotEmpty(t, resp.QuizID)
	assert.NotEmpty(t, resp.SessionID)

	rr := ts.request(http.MethodGet, "/api/v1/quizzes/roma22", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	quiz := decode[response.Quiz](t, rr)
	assert.Equal(t, "Quiz: Roman Empire", quiz.Title)
	assert.Equal(t, "draft", quiz.Status)
	assert.Equal(t, len(factory.TestQuestions), quiz.QuestionCount)
	require.NotNil(t, quiz.ActiveSessionID)
	assert.Equal(t, resp.SessionID, *quiz.ActiveSessionID)
}

func TestCreateQuizAcceptsCreatedByName(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/quizzes", map[string]string{"topic": "Rome", "createdByName": "Livia"})
	require.Equal(t, http.StatusCreated, rr.Code)
	resp := decode[response.CreateQuizResponse](t, rr)

	quiz, err := ts.app.Storage.GetQuiz(context.Background(), model.QuizID(resp.QuizID))
	require.NoError(t, err)
	host, err := ts.app.Storage.GetUser(context.Background(), quiz.HostUserID)
	require.NoError(t, err)
	assert.Equal(t, "Livia", host.Name)
}

func TestCreateQuizValidation(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.request(http.MethodPost, "/api/v1/quizzes", map[string]string{"title": "No topic"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	errResp := decode[apierr.ErrorResponse](t, rr)
	assert.Equal(t, apierr.CodeTopicRequired, errResp.Error.Code)
	assert.Equal(t, "topic required", errResp.Error.Message)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quizzes", strings.NewReader("{not json"))
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUnknownQuiz(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/v1/quizzes/ZZZZZZ", "/api/v1/quizzes/ZZZZZZ/events"} {
		rr := ts.request(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.Equal(t, apierr.CodeQuizNotFound, decode[apierr.ErrorResponse](t, rr).Error.Code)
	}
	for _, path := range []string{"/api/v1/quizzes/ZZZZZZ/start", "/api/v1/quizzes/ZZZZZZ/end"} {
		rr := ts.request(http.MethodPost, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}
	assert.Equal(t, 0, ts.app.Registry.Count())
}

func TestStartAndEnd(t *testing.T) {
	ts := newTestServer(t)
	quiz := createQuiz(t, ts)

	// Ending before starting is a no-op
	rr := ts.request(http.MethodPost, "/api/v1/quizzes/"+quiz.JoinCode+"/end", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	tr := decode[response.Transition](t, rr)
	assert.True(t, tr.OK)
	assert.False(t, tr.Changed)
	assert.Equal(t, "draft", tr.Status)

	rr = ts.request(http.MethodPost, "/api/v1/quizzes/"+quiz.JoinCode+"/start", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	tr = decode[response.Transition](t, rr)
	assert.True(t, tr.Changed)
	assert.Equal(t, "live", tr.Status)
	assert.Equal(t, quiz.SessionID, tr.SessionID)

	rr = ts.request(http.MethodPost, "/api/v1/quizzes/"+quiz.JoinCode+"/start", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[response.Transition](t, rr).Changed)

	rr = ts.request(http.MethodPost, "/api/v1/quizzes/"+quiz.JoinCode+"/end", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ended", decode[response.Transition](t, rr).Status)

	rr = ts.request(http.MethodPost, "/api/v1/quizzes/"+quiz.JoinCode+"/start", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeQuizEnded, decode[apierr.ErrorResponse](t, rr).Error.Code)
}

func TestStartWithoutQuestions(t *testing.T) {
	ts := newTestServerWithGenerator(t, generator.None{})
	quiz := createQuiz(t, ts)

	rr := ts.request(http.MethodPost, "/api/v1/quizzes/"+quiz.JoinCode+"/start", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, apierr.CodeNoQuestions, decode[apierr.ErrorResponse](t, rr).Error.Code)
}

func TestJoinPlayerAndLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	quiz := createQuiz(t, ts)

	rr := ts.request(http.MethodPost, "/api/v1/players", map[string]string{"name": "  Alice  "})
	require.Equal(t, http.StatusCreated, rr.Code)
	alice := decode[response.Player](t, rr)
	assert.Equal(t, "Alice", alice.Name)
	assert.NotEmpty(t, alice.UserID)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/"+quiz.SessionID+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]model.LeaderboardRow](t, rr))

	rr = ts.request(http.MethodPost, "/api/v1/quizzes/"+quiz.JoinCode+"/start", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ids, err := ts.app.QuestionIDs(context.Background(), model.QuizID(quiz.QuizID))
	require.NoError(t, err)
	_, err = ts.app.Coordinator.SubmitAnswer(context.Background(), answer.Submission{
		JoinCode: model.JoinCode(quiz.JoinCode), SessionID: model.SessionID(quiz.SessionID),
		UserID: model.UserID(alice.UserID), QuestionID: ids[0], SelectedIndex: 0, TimeTakenMs: 0,
	})
	require.NoError(t, err)

	rr = ts.request(http.MethodGet, "/api/v1/sessions/"+quiz.SessionID+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []model.LeaderboardRow{{UserID: model.UserID(alice.UserID), Name: "Alice", Score: 15}},
		decode[[]model.LeaderboardRow](t, rr))

	rr = ts.request(http.MethodGet, "/api/v1/sessions/nope/leaderboard", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apierr.CodeSessionNotFound, decode[apierr.ErrorResponse](t, rr).Error.Code)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/quizzes", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketThroughRouter(t *testing.T) {
	ts := newTestServer(t)
	quiz := createQuiz(t, ts)
	server := httptest.NewServer(ts.handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	data, _ := json.Marshal(map[string]string{"joinCode": quiz.JoinCode, "name": "Alice"})
	require.NoError(t, conn.WriteJSON(model.Envelope{Event: model.InboundJoinRoom, Data: data}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env model.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, string(model.EventLobbyUpdate), env.Event)

	var lobby model.LobbyUpdatePayload
	require.NoError(t, json.Unmarshal(env.Data, &lobby))
	assert.Equal(t, []string{"Alice"}, lobby.Members)
}
