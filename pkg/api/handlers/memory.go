package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/recallhub/recallhub/pkg/api/middleware"
	"github.com/recallhub/recallhub/pkg/api/response"
	"github.com/recallhub/recallhub/pkg/memory"
)

// MemoryHandler handles conversation-memory API endpoints.
type MemoryHandler struct {
	engine *memory.Engine
	logger memoryLogger
}

type memoryLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(engine *memory.Engine, log memoryLogger) *MemoryHandler {
	return &MemoryHandler{
		engine: engine,
		logger: log,
	}
}

func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}

// --- Request/Response types ---

type recordTurnRequest struct {
	ChatID         string    `json:"chat_id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	TokenEstimate  int       `json:"token_estimate,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

type recordTurnResponse struct {
	Recorded bool `json:"recorded"`
}

type buildContextRequest struct {
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

type buildContextResponse struct {
	Context    string `json:"context"`
	TotalFound int    `json:"total_found"`
}

type eraseResponse struct {
	Deleted int `json:"deleted"`
}

// RecordTurn handles POST /api/v1/memory/{userID}/turns
func (h *MemoryHandler) RecordTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID is required", getRequestID(ctx))
		return
	}

	var req recordTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	turn := memory.Turn{
		UserID:         userID,
		ChatID:         req.ChatID,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		Role:           memory.Role(req.Role),
		TokenEstimate:  req.TokenEstimate,
		Embedding:      req.Embedding,
	}

	if err := h.engine.RecordTurn(ctx, turn); err != nil {
		if isValidationError(err) {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to record turn",
			"user_id", userID,
			"conversation_id", req.ConversationID,
			"error", err,
		)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to record turn", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusCreated, recordTurnResponse{Recorded: true})
}

// BuildContext handles POST /api/v1/memory/{userID}/context
func (h *MemoryHandler) BuildContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID is required", getRequestID(ctx))
		return
	}

	var req buildContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if req.ChatID == "" || req.ConversationID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "chat_id and conversation_id are required", getRequestID(ctx))
		return
	}

	formatted, result := h.engine.BuildContext(ctx, userID, req.ChatID, req.ConversationID, req.Message)

	resp := buildContextResponse{Context: formatted}
	if result != nil {
		resp.TotalFound = result.TotalFound
	}
	response.JSON(w, http.StatusOK, resp)
}

// Erase handles DELETE /api/v1/memory/{userID}
func (h *MemoryHandler) Erase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID is required", getRequestID(ctx))
		return
	}

	deleted, err := h.engine.Erase(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to erase user memory", "user_id", userID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to erase user memory", getRequestID(ctx))
		return
	}

	h.logger.Info("User memory erased", "user_id", userID, "deleted", deleted)
	response.JSON(w, http.StatusOK, eraseResponse{Deleted: deleted})
}

func isValidationError(err error) bool {
	return errors.Is(err, memory.ErrInvalidUserID) ||
		errors.Is(err, memory.ErrInvalidChatID) ||
		errors.Is(err, memory.ErrInvalidConversationID) ||
		errors.Is(err, memory.ErrInvalidRole)
}
