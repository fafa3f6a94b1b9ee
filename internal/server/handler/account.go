package handler

import (
	"log/slog"
	"net/http"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// AccountHandler exposes the custody ledger's funding ramp and balance reads.
type AccountHandler struct {
	funds  domain.Ledger
	logger *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(funds domain.Ledger, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{funds: funds, logger: logger}
}

// depositRequest is the JSON body for crediting an account.
type depositRequest struct {
	Amount uint64 `json:"amount"`
}

// Deposit credits a user's custody balance from outside the ledger.
// POST /api/users/{user}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if err := h.funds.Deposit(r.Context(), user, req.Amount); err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: deposit failed",
				slog.String("user", user),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	balance, err := h.funds.Balance(r.Context(), user)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: balance read failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"balance": balance,
	})
}

// Balance returns a user's custody balance.
// GET /api/users/{user}/balance
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}

	balance, err := h.funds.Balance(r.Context(), user)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: balance read failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"balance": balance,
	})
}
