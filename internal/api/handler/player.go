package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/livequiz/internal/api/request"
	"github.com/mcoot/livequiz/internal/api/response"
	"github.com/mcoot/livequiz/internal/model"
	"github.com/mcoot/livequiz/internal/services/coordinator"
)

// PlayerHandler handles player and leaderboard endpoints
type PlayerHandler struct {
	coordinator *coordinator.Coordinator
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(coordinator *coordinator.Coordinator) *PlayerHandler {
	return &PlayerHandler{
		coordinator: coordinator,
	}
}

// Join handles POST /api/v1/players
func (h *PlayerHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req request.JoinPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	user, err := h.coordinator.JoinPlayer(r.Context(), req.Name, req.Email)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.PlayerFromModel(user))
}

// Leaderboard handles GET /api/v1/sessions/{sessionId}/leaderboard
func (h *PlayerHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	sessionID := model.SessionID(mux.Vars(r)["sessionId"])

	entries, err := h.coordinator.Leaderboard(r.Context(), sessionID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, model.NewLeaderboardRows(entries))
}
