package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/engine"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	Create(ctx context.Context, p engine.CreateParams) (domain.Market, error)
	Get(ctx context.Context, caseID string) (domain.Market, error)
	Prices(ctx context.Context, caseID string) ([]uint64, error)
	ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Count(ctx context.Context) (int64, error)
	Close(ctx context.Context, caseID string) error
	Settle(ctx context.Context, caseID, caller string, outcomeIdx int) (domain.Market, error)
}

// MarketHandler serves market lifecycle HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body for market creation.
type createMarketRequest struct {
	CaseID           string    `json:"case_id"`
	Creator          string    `json:"creator"`
	Oracle           string    `json:"oracle"`
	Outcomes         []string  `json:"outcomes"`
	SettlementTime   time.Time `json:"settlement_time"`
	InitialLiquidity uint64    `json:"initial_liquidity"`
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// CreateMarket opens a new market funded by the creator.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CaseID == "" || req.Creator == "" || req.Oracle == "" {
		writeError(w, http.StatusBadRequest, "case_id, creator and oracle are required")
		return
	}

	market, err := h.markets.Create(r.Context(), engine.CreateParams{
		CaseID:           req.CaseID,
		Creator:          req.Creator,
		Oracle:           req.Oracle,
		Outcomes:         req.Outcomes,
		SettlementTime:   req.SettlementTime,
		InitialLiquidity: req.InitialLiquidity,
	})
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: create market failed",
				slog.String("case_id", req.CaseID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets returns markets filtered by status (default active).
// GET /api/markets?status=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusActive
	}
	switch status {
	case domain.MarketStatusActive, domain.MarketStatusClosed,
		domain.MarketStatusSettled, domain.MarketStatusDisputed,
		domain.MarketStatusCancelled:
	default:
		writeError(w, http.StatusBadRequest, "unknown market status")
		return
	}

	markets, err := h.markets.ListByStatus(r.Context(), status, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	total, err := h.markets.Count(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: count markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to count markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its case id.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.Get(r.Context(), id)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: get market failed",
				slog.String("case_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}

// GetPrices returns the current price vector for a market.
// GET /api/markets/{id}/prices
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	prices, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: get prices failed",
				slog.String("case_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case_id": id,
		"prices":  prices,
		"scale":   domain.PriceScale,
	})
}

// CloseMarket moves a past-deadline market from active to closed.
// POST /api/markets/{id}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	if err := h.markets.Close(r.Context(), id); err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: close market failed",
				slog.String("case_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.MarketStatusClosed)})
}

// settleRequest is the JSON body for settlement.
type settleRequest struct {
	Oracle       string `json:"oracle"`
	OutcomeIndex int    `json:"outcome_index"`
}

// SettleMarket records the oracle's winning outcome.
// POST /api/markets/{id}/settle
func (h *MarketHandler) SettleMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req settleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Oracle == "" {
		writeError(w, http.StatusBadRequest, "oracle is required")
		return
	}

	market, err := h.markets.Settle(r.Context(), id, req.Oracle, req.OutcomeIndex)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: settle market failed",
				slog.String("case_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, market)
}
