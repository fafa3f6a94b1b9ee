package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/engine"
)

// BetService defines the methods that the bet handler requires from the
// service layer.
type BetService interface {
	PlaceBet(ctx context.Context, caseID string, p engine.BetParams) (domain.Bet, error)
	Claim(ctx context.Context, betID, caller string) (engine.Payout, error)
	Get(ctx context.Context, betID string) (domain.Bet, error)
	ListByMarket(ctx context.Context, caseID string, opts domain.ListOpts) ([]domain.Bet, error)
	ListByUser(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet placement, lookup, and claim endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the JSON body for placing a bet.
type placeBetRequest struct {
	User         string `json:"user"`
	OutcomeIndex int    `json:"outcome_index"`
	Amount       uint64 `json:"amount"`
	MinSharesOut uint64 `json:"min_shares_out"`
}

// claimRequest is the JSON body for claiming a payout.
type claimRequest struct {
	User string `json:"user"`
}

// listBetsResponse wraps bet list output with pagination metadata.
type listBetsResponse struct {
	Bets   []domain.Bet `json:"bets"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// PlaceBet stakes an amount on one outcome of a market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caseID := pathParam(r, "id")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	var req placeBetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	bet, err := h.bets.PlaceBet(r.Context(), caseID, engine.BetParams{
		User:         req.User,
		OutcomeIndex: req.OutcomeIndex,
		Amount:       req.Amount,
		MinSharesOut: req.MinSharesOut,
	})
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: place bet failed",
				slog.String("case_id", caseID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// GetBet returns one bet, addressed by its market and sequence number.
// GET /api/markets/{id}/bets/{seq}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	betID, ok := betIDFromPath(w, r)
	if !ok {
		return
	}

	bet, err := h.bets.Get(r.Context(), betID)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: get bet failed",
				slog.String("bet_id", betID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bet)
}

// ListMarketBets returns a market's bets in placement order.
// GET /api/markets/{id}/bets
func (h *BetHandler) ListMarketBets(w http.ResponseWriter, r *http.Request) {
	caseID := pathParam(r, "id")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}
	opts := parseListOpts(r)

	bets, err := h.bets.ListByMarket(r.Context(), caseID, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list market bets failed",
			slog.String("case_id", caseID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   bets,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// ListUserBets returns a user's bets across markets, newest first.
// GET /api/users/{user}/bets
func (h *BetHandler) ListUserBets(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}
	opts := parseListOpts(r)

	bets, err := h.bets.ListByUser(r.Context(), user, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list user bets failed",
			slog.String("user", user),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   bets,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// ClaimBet pays out a settled winning bet to its owner.
// POST /api/markets/{id}/bets/{seq}/claim
func (h *BetHandler) ClaimBet(w http.ResponseWriter, r *http.Request) {
	betID, ok := betIDFromPath(w, r)
	if !ok {
		return
	}

	var req claimRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}

	payout, err := h.bets.Claim(r.Context(), betID, req.User)
	if err != nil {
		if statusForError(err) == http.StatusInternalServerError {
			h.logger.ErrorContext(r.Context(), "handler: claim failed",
				slog.String("bet_id", betID),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payout)
}

// betIDFromPath rebuilds the deterministic bet id from the {id} and {seq}
// path segments. It writes the error response itself and reports success.
func betIDFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	caseID := pathParam(r, "id")
	if caseID == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return "", false
	}
	seq, err := strconv.ParseUint(pathParam(r, "seq"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bet sequence number")
		return "", false
	}
	return domain.BetID(caseID, seq), true
}
