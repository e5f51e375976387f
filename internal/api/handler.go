// Package api routes OpenAI-compatible REST requests to the browser session
// pool and translates poll outcomes into wire responses.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/chatrelay/chatrelay/internal/domain"
	"github.com/chatrelay/chatrelay/internal/models"
	"github.com/chatrelay/chatrelay/internal/tokenizer"
	"github.com/chatrelay/chatrelay/pkg/api"
)

// Asker is the submission broker behind the completions endpoint.
type Asker interface {
	Ask(ctx context.Context, prompt, model string) (domain.Outcome, error)
}

// Handler serves the chat-completions facade.
type Handler struct {
	pool       Asker
	models     *models.Store
	promptMode string
	logger     *slog.Logger
}

func NewHandler(pool Asker, models *models.Store, promptMode string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pool:       pool,
		models:     models,
		promptMode: promptMode,
		logger:     logger,
	}
}

// Mount registers all routes on the provided router.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/v1/chat/completions", h.completions)
	r.Get("/v1/models", h.listModels)
	r.Get("/models", h.listModels) // legacy alias
}

func (h *Handler) completions(w http.ResponseWriter, r *http.Request) {
	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", "invalid_request_error")
		return
	}

	if req.Stream {
		writeError(w, http.StatusNotImplemented, "stream=true not supported", "invalid_request_error")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required", "invalid_request_error")
		return
	}

	// Temperature and friends are accepted but meaningless here; the UI
	// offers no sampling controls.
	messages := applySystemPromptMode(req.Messages, h.promptMode)
	prompt := flatten(messages)

	h.logger.Debug("completion request",
		"model", req.Model,
		"messages", len(req.Messages),
		"prompt_chars", len(prompt))

	outcome, err := h.pool.Ask(r.Context(), prompt, req.Model)
	if err != nil {
		// Initialization failure: the browser could not be created and
		// every call will fail until restart.
		writeError(w, http.StatusServiceUnavailable, err.Error(), "server_error")
		return
	}

	switch outcome.Status {
	case domain.OutcomeSuccess:
		h.writeCompletion(w, req.Model, prompt, outcome.Text)
	case domain.OutcomeTimedOut:
		writeError(w, http.StatusGatewayTimeout, outcome.Detail, "timeout")
	default:
		switch outcome.Kind {
		case domain.KindContentTooLong:
			writeError(w, http.StatusBadRequest, outcome.Detail, "context_length_exceeded")
		default:
			writeError(w, http.StatusBadGateway, outcome.Detail, "upstream_error")
		}
	}
}

func (h *Handler) writeCompletion(w http.ResponseWriter, model, prompt, reply string) {
	if model == "" {
		model = "browser"
	}

	promptTokens := tokenizer.Count(prompt, model)
	completionTokens := tokenizer.Count(reply, model)

	resp := api.ChatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []api.Choice{{
			Index:        0,
			Message:      api.ChatMessage{Role: "assistant", Content: reply},
			FinishReason: "stop",
		}},
		Usage: api.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.models.List())
}

// completionID mimics the upstream id shape: chatcmpl- plus 27 hex chars.
func completionID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "chatcmpl-" + hex[:27]
}

func writeError(w http.ResponseWriter, code int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: api.ErrorDetail{Message: message, Type: errType},
	})
}
