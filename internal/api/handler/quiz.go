package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/livequiz/internal/api/request"
	"github.com/mcoot/livequiz/internal/api/response"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/realtime"
	"github.com/mcoot/livequiz/internal/services/coordinator"
	"github.com/mcoot/livequiz/internal/services/lifecycle"
)

// QuizHandler handles quiz endpoints
type QuizHandler struct {
	coordinator *coordinator.Coordinator
	realtime    *realtime.Handler
	logger      *slog.Logger
}

// NewQuizHandler creates a new quiz handler
func NewQuizHandler(coordinator *coordinator.Coordinator, realtime *realtime.Handler, logger *slog.Logger) *QuizHandler {
	return &QuizHandler{
		coordinator: coordinator,
		realtime:    realtime,
		logger:      logger,
	}
}

// Create handles POST /api/v1/quizzes
func (h *QuizHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	out, err := h.coordinator.CreateQuiz(r.Context(), coordinator.CreateQuizInput{
		Topic:    req.Topic,
		Title:    req.Title,
		HostName: req.HostDisplayName(),
		Email:    req.Email,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.CreateQuizResponseFromOutput(out))
}

// Get handles GET /api/v1/quizzes/{code}
func (h *QuizHandler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.coordinator.GetQuiz(r.Context(), joinCode(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.QuizFromSummary(summary))
}

// Start handles POST /api/v1/quizzes/{code}/start
func (h *QuizHandler) Start(w http.ResponseWriter, r *http.Request) {
	t, err := h.coordinator.Start(r.Context(), joinCode(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, transitionResponse(t))
}

// End handles POST /api/v1/quizzes/{code}/end
func (h *QuizHandler) End(w http.ResponseWriter, r *http.Request) {
	t, err := h.coordinator.End(r.Context(), joinCode(r))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, transitionResponse(t))
}

// Events handles GET /api/v1/quizzes/{code}/events as a server-sent event stream
func (h *QuizHandler) Events(w http.ResponseWriter, r *http.Request) {
	if err := h.realtime.ServeSSE(w, r, joinCode(r)); err != nil {
		WriteError(w, err)
	}
}

func joinCode(r *http.Request) model.JoinCode {
	return model.JoinCode(mux.Vars(r)["code"])
}

func transitionResponse(t *lifecycle.Transition) response.Transition {
	resp := response.Transition{
		OK:      true,
		Changed: t.Changed,
		Status:  string(t.Quiz.Status),
	}
	if t.Session != nil {
		resp.SessionID = string(t.Session.ID)
	}
	return resp
}
