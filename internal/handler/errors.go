package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/chatmeter/chatmeter/internal/handler/dto"
	"github.com/chatmeter/chatmeter/internal/service"
)

// writeServiceError maps service errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		verr     *service.ValidationError
		balErr   *service.InsufficientBalanceError
		rbErr    *service.RollbackFailedError
		gwErr    *service.GatewayError
		storeErr *service.PersistError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, dto.ErrorsResponse{Errors: dto.FieldErrors(verr.Fields)})
	case errors.Is(err, service.ErrInvalidLogin):
		writeJSON(w, http.StatusUnauthorized, dto.MessageResponse{Message: "Invalid credentials"})
	case errors.Is(err, service.ErrNoCredentials),
		errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, dto.MessageResponse{Message: err.Error()})
	case errors.Is(err, service.ErrAccountNotFound):
		// The account vanished after its credential was resolved.
		writeJSON(w, http.StatusUnauthorized, dto.MessageResponse{Message: service.ErrInvalidCredentials.Error()})
	case errors.As(err, &balErr):
		writeJSON(w, http.StatusPaymentRequired, dto.BalanceResponse{
			Message: "Insufficient tokens",
			Tokens:  balErr.Current,
		})
	case errors.As(err, &rbErr):
		writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{
			Message: "Balance reconciliation required",
			Detail:  "transaction " + rbErr.TxID,
		})
	case errors.As(err, &gwErr):
		writeJSON(w, http.StatusBadGateway, dto.MessageResponse{
			Message: "AI service error",
			Detail:  gwErr.Cause.Error(),
		})
	case errors.As(err, &storeErr):
		if storeErr.Refunded {
			writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{Message: "Chat could not be saved; tokens were refunded"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{
			Message: "Chat could not be confirmed as saved; tokens were charged",
			Detail:  "transaction " + storeErr.TxID,
		})
	default:
		logger.Error("internal_error", "error", err)
		writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{Message: "internal server error"})
	}
}
