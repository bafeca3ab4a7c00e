package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yegors/voxprompt/internal/config"
	"github.com/yegors/voxprompt/internal/genai"
	"github.com/yegors/voxprompt/internal/optimizer"
	"github.com/yegors/voxprompt/internal/recorder"
	"github.com/yegors/voxprompt/internal/storage/sqlite"
	"github.com/yegors/voxprompt/pkg/logger"
)

// Handler holds the API handlers and their collaborators.
type Handler struct {
	optimizer    *optimizer.Service
	history      *sqlite.HistoryStorage
	sessionState *sqlite.SessionStateStorage

	// Dictation socket collaborators: each connection gets its own
	// recording controller built from these.
	opener   recorder.SessionOpener
	polisher recorder.Polisher
	recOpts  recorder.Options

	config *config.Config
	logger *logger.Logger
}

// NewHandler creates the API handler set.
func NewHandler(
	optimizerSvc *optimizer.Service,
	history *sqlite.HistoryStorage,
	sessionState *sqlite.SessionStateStorage,
	opener recorder.SessionOpener,
	polisher recorder.Polisher,
	cfg *config.Config,
	log *logger.Logger,
) *Handler {
	return &Handler{
		optimizer:    optimizerSvc,
		history:      history,
		sessionState: sessionState,
		opener:       opener,
		polisher:     polisher,
		recOpts: recorder.Options{
			QuietInterval: cfg.QuietInterval(),
			FinalTimeout:  cfg.FinalPolishTimeout(),
			ChunkSamples:  cfg.Live.ChunkSamples,
			SampleRate:    cfg.Live.SampleRate,
		},
		config: cfg,
		logger: log.Named("api-handler"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", logger.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, msg string) {
	h.respondJSON(w, status, errorResponse{Error: msg})
}

// GetHealth returns a basic health check response.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// OptimizePrompt rewrites the submitted prompt with the selected
// strategy.
func (h *Handler) OptimizePrompt(w http.ResponseWriter, r *http.Request) {
	var req optimizer.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text, err := h.optimizer.Optimize(r.Context(), req)
	switch {
	case errors.Is(err, optimizer.ErrEmptyPrompt):
		h.respondError(w, http.StatusBadRequest, "prompt is empty")
	case errors.Is(err, optimizer.ErrUnknownStrategy):
		h.respondError(w, http.StatusBadRequest, "unknown strategy")
	case err != nil:
		h.logger.Error("Optimize failed", logger.Error(err))
		h.respondError(w, optimizeErrorStatus(err), err.Error())
	default:
		h.respondJSON(w, http.StatusOK, map[string]string{"text": text})
	}
}

// optimizeErrorStatus maps generation error kinds to HTTP statuses.
func optimizeErrorStatus(err error) int {
	switch genai.ErrKind(err) {
	case genai.KindAuth:
		return http.StatusUnauthorized
	case genai.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// GetStrategies lists the available optimization strategies.
func (h *Handler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{"strategies": optimizer.Strategies()})
}

// GetModels lists the configured model tiers.
func (h *Handler) GetModels(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"models": []string{
			h.config.GenAI.FlashModel,
			h.config.GenAI.FlashLiteModel,
			h.config.GenAI.ProModel,
		},
		"default": h.config.GenAI.FlashModel,
	})
}

// GetConfig returns the client-relevant configuration. Secrets never
// leave the server.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"provider":          h.config.GenAI.Provider,
		"sample_rate":       h.config.Live.SampleRate,
		"chunk_samples":     h.config.Live.ChunkSamples,
		"quiet_interval_ms": h.config.Polish.QuietIntervalMs,
		"min_chars":         h.config.Polish.MinChars,
	})
}

// GetHistory returns the prompt history, most recent first.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.List()
	if err != nil {
		h.logger.Error("Failed to list history", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []*sqlite.PromptRecord{}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"history": records})
}

// ClearHistory removes all prompt history entries.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.history.Clear(); err != nil {
		h.logger.Error("Failed to clear history", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// GetSessionState returns the saved session state, if any.
func (h *Handler) GetSessionState(w http.ResponseWriter, r *http.Request) {
	state, err := h.sessionState.Load()
	if err != nil {
		h.logger.Error("Failed to load session state", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to load session state")
		return
	}
	if state == nil {
		h.respondJSON(w, http.StatusNotFound, errorResponse{Error: "no saved session"})
		return
	}
	h.respondJSON(w, http.StatusOK, state)
}

// SaveSessionState upserts the saved session state.
func (h *Handler) SaveSessionState(w http.ResponseWriter, r *http.Request) {
	var state sqlite.SessionState
	if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.sessionState.Save(&state); err != nil {
		h.logger.Error("Failed to save session state", logger.Error(err))
		h.respondError(w, http.StatusInternalServerError, "failed to save session state")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
