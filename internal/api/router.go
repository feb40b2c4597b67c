package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/livequiz/internal/api/handler"
	"github.com/mcoot/livequiz/internal/api/middleware"
	"github.com/mcoot/livequiz/internal/api/response"
	sharedmw "github.com/mcoot/livequiz/internal/middleware"
	"github.com/mcoot/livequiz/internal/realtime"
	"github.com/mcoot/livequiz/internal/services/coordinator"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Coordinator *coordinator.Coordinator
	Realtime    *realtime.Handler
	// AllowedOrigins for CORS; empty allows any origin
	AllowedOrigins []string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	quizHandler := handler.NewQuizHandler(cfg.Coordinator, cfg.Realtime, cfg.Logger)
	playerHandler := handler.NewPlayerHandler(cfg.Coordinator)

	// Create middleware
	loggingMiddleware := sharedmw.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Quiz routes
	api.HandleFunc("/quizzes", quizHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/quizzes/{code}", quizHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/quizzes/{code}/start", quizHandler.Start).Methods(http.MethodPost)
	api.HandleFunc("/quizzes/{code}/end", quizHandler.End).Methods(http.MethodPost)
	api.HandleFunc("/quizzes/{code}/events", quizHandler.Events).Methods(http.MethodGet)

	// Player routes
	api.HandleFunc("/players", playerHandler.Join).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{sessionId}/leaderboard", playerHandler.Leaderboard).Methods(http.MethodGet)

	// Health check endpoint
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)

	// Player connections
	ws := r.PathPrefix("/ws").Subrouter()
	ws.Use(sharedmw.Recovery(cfg.Logger, sharedmw.DefaultPanicHandler))
	ws.Use(loggingMiddleware)
	ws.HandleFunc("", cfg.Realtime.ServeWS).Methods(http.MethodGet)

	// CORS wraps the router so preflight requests never reach method matching
	return sharedmw.CORS(cfg.AllowedOrigins)(r)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.Health{Status: "ok"})
}
