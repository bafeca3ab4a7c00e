package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/yegors/voxprompt/internal/config"
	"github.com/yegors/voxprompt/internal/optimizer"
	"github.com/yegors/voxprompt/internal/recorder"
	"github.com/yegors/voxprompt/internal/storage/sqlite"
	"github.com/yegors/voxprompt/pkg/logger"
)

// Router is the API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	config     *config.Config
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(
	optimizerSvc *optimizer.Service,
	history *sqlite.HistoryStorage,
	sessionState *sqlite.SessionStateStorage,
	opener recorder.SessionOpener,
	polisher recorder.Polisher,
	cfg *config.Config,
	log *logger.Logger,
) *Router {
	return &Router{
		handler:    NewHandler(optimizerSvc, history, sessionState, opener, polisher, cfg, log),
		middleware: NewMiddleware(log),
		config:     cfg,
		logger:     log.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)
	router.Use(r.middleware.CORS(r.config.Server.CORSAllowedOrigins))

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Prompt optimization
		router.Post("/optimize", r.handler.OptimizePrompt)
		router.Get("/strategies", r.handler.GetStrategies)
		router.Get("/models", r.handler.GetModels)

		// Prompt history
		router.Get("/history", r.handler.GetHistory)
		router.Delete("/history", r.handler.ClearHistory)

		// Saved session state
		router.Get("/session-state", r.handler.GetSessionState)
		router.Post("/session-state", r.handler.SaveSessionState)

		// Dictation WebSocket
		router.Get("/dictation/ws", r.handler.HandleDictationWS)

		// Health check and client configuration
		router.Get("/health", r.handler.GetHealth)
		router.Get("/config", r.handler.GetConfig)
	})

	return router
}
