package handler

import (
	"log/slog"
	"net/http"

	"github.com/chatmeter/chatmeter/internal/auth"
	"github.com/chatmeter/chatmeter/internal/handler/dto"
	"github.com/chatmeter/chatmeter/internal/service"
)

// ChatHandler serves metered chat and balance queries.
type ChatHandler struct {
	svc    *service.MeteringService
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *service.MeteringService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger}
}

// Chat handles POST /api/v1/chat. Requires an authenticated account.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountIDFromContext(r.Context())
	if accountID == "" {
		writeServiceError(w, h.logger, service.ErrNoCredentials)
		return
	}

	var req dto.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing := req.Missing(); missing != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorsResponse{Errors: missing})
		return
	}

	result, err := h.svc.Chat(r.Context(), accountID, *req.Message)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ChatResponse{
		Message:         result.Record.Message,
		Response:        result.Response,
		TokensRemaining: result.TokensRemaining,
		Chat:            dto.ToChatRecordResponse(result.Record),
	})
}

// Tokens handles GET /api/v1/tokens.
func (h *ChatHandler) Tokens(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountIDFromContext(r.Context())
	if accountID == "" {
		writeServiceError(w, h.logger, service.ErrNoCredentials)
		return
	}

	balance, err := h.svc.Balance(r.Context(), accountID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{Tokens: balance})
}
