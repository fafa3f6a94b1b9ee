package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// LiquidityService defines the methods that the liquidity handler requires
// from the service layer.
type LiquidityService interface {
	Add(ctx context.Context, caseID, provider string, amounts []uint64) (uint64, error)
	Remove(ctx context.Context, caseID, provider string, lpTokens uint64) ([]uint64, error)
}

// LiquidityHandler serves pool deposit and withdrawal endpoints.
type LiquidityHandler struct {
	liquidity LiquidityService
	logger    *slog.Logger
}

// NewLiquidityHandler creates a LiquidityHandler with the given service and
// logger.
func NewLiquidityHandler(liquidity LiquidityService, logger *slog.Logger) *LiquidityHandler {
	return &LiquidityHandler{
		liquidity: liquidity,
		logger:    logger,
	}
}

// addLiquidityRequest is the JSON body for a pool deposit.
type addLiquidityRequest struct {
	Provider string   `json:"provider"`
	Amounts  []uint64 `json:"amounts"`
}

// removeLiquidityRequest is the JSON body for a pool withdrawal.
type removeLiquidityRequest struct {
	Provider string `json:"provider"`
	LPTokens uint64 `json:"lp_tokens"`
}

// AddLiquidity deposits per-outcome amounts into a market's pool.
// POST /api/markets/{id}/liquidity
func (h *LiquidityHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	caseID := pathParam(r, "id")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req addLiquidityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}

	minted, err := h.liquidity.Add(r.Context(), caseID, req.Provider, req.Amounts)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: add liquidity failed",
				slog.String("case_id", caseID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case_id": caseID,
		"minted":  minted,
	})
}

// RemoveLiquidity burns LP tokens for a pro-rata withdrawal.
// POST /api/markets/{id}/liquidity/withdraw
func (h *LiquidityHandler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	caseID := pathParam(r, "id")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req removeLiquidityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}

	withdrawn, err := h.liquidity.Remove(r.Context(), caseID, req.Provider, req.LPTokens)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: remove liquidity failed",
				slog.String("case_id", caseID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case_id":   caseID,
		"withdrawn": withdrawn,
	})
}
