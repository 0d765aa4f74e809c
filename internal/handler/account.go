package handler

import (
	"log/slog"
	"net/http"

	"github.com/chatmeter/chatmeter/internal/handler/dto"
	"github.com/chatmeter/chatmeter/internal/service"
)

// AccountHandler handles registration and login.
type AccountHandler struct {
	svc    *service.AccountService
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger}
}

// Register handles POST /api/v1/register.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing := req.Missing(); missing != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorsResponse{Errors: missing})
		return
	}

	account, err := h.svc.Register(r.Context(), *req.Username, *req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RegisterResponse{
		Message:  "Registration successful",
		Username: account.Username,
		Tokens:   account.Balance,
	})
}

// Login handles POST /api/v1/login.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.CredentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if missing := req.Missing(); missing != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorsResponse{Errors: missing})
		return
	}

	issued, account, err := h.svc.Login(r.Context(), *req.Username, *req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("login",
		"account_id", account.ID,
		"credential_prefix", issued.Credential.Prefix,
	)

	writeJSON(w, http.StatusOK, dto.LoginResponse{
		Token:    issued.Secret,
		Username: account.Username,
	})
}
