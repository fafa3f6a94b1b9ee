package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/engine"
)

type stubMarketService struct {
	market    domain.Market
	err       error
	createdAs engine.CreateParams
}

func (s *stubMarketService) Create(_ context.Context, p engine.CreateParams) (domain.Market, error) {
	s.createdAs = p
	return s.market, s.err
}

func (s *stubMarketService) Get(context.Context, string) (domain.Market, error) {
	return s.market, s.err
}

func (s *stubMarketService) Prices(context.Context, string) ([]uint64, error) {
	return []uint64{500_000, 500_000}, s.err
}

func (s *stubMarketService) ListByStatus(context.Context, domain.MarketStatus, domain.ListOpts) ([]domain.Market, error) {
	return []domain.Market{s.market}, s.err
}

func (s *stubMarketService) Count(context.Context) (int64, error) { return 1, s.err }

func (s *stubMarketService) Close(context.Context, string) error { return s.err }

func (s *stubMarketService) Settle(context.Context, string, string, int) (domain.Market, error) {
	return s.market, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newMarketRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	return httptest.NewRequest(method, target, &buf)
}

func TestGetMarketNotFound(t *testing.T) {
	h := NewMarketHandler(&stubMarketService{err: domain.ErrNotFound}, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/markets/case-404", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

func TestCreateMarketPassesParams(t *testing.T) {
	settlement := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := &stubMarketService{market: domain.Market{CaseID: "case-1"}}
	h := NewMarketHandler(svc, discardLogger())

	req := newMarketRequest(t, http.MethodPost, "/api/markets", map[string]any{
		"case_id":           "case-1",
		"creator":           "alice",
		"oracle":            "oracle-1",
		"outcomes":          []string{"plaintiff", "defendant"},
		"settlement_time":   settlement,
		"initial_liquidity": uint64(2_000_000_000),
	})
	rec := httptest.NewRecorder()
	h.CreateMarket(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "case-1", svc.createdAs.CaseID)
	assert.Equal(t, "alice", svc.createdAs.Creator)
	assert.Equal(t, []string{"plaintiff", "defendant"}, svc.createdAs.Outcomes)
	assert.True(t, settlement.Equal(svc.createdAs.SettlementTime))
}

func TestCreateMarketRejectsMissingFields(t *testing.T) {
	h := NewMarketHandler(&stubMarketService{}, discardLogger())

	req := newMarketRequest(t, http.MethodPost, "/api/markets", map[string]any{
		"case_id": "case-1",
	})
	rec := httptest.NewRecorder()
	h.CreateMarket(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettleConflictStatus(t *testing.T) {
	h := NewMarketHandler(&stubMarketService{err: domain.ErrMarketAlreadySettled}, discardLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/markets/{id}/settle", h.SettleMarket)

	req := newMarketRequest(t, http.MethodPost, "/api/markets/case-1/settle", map[string]any{
		"oracle":        "oracle-1",
		"outcome_index": 0,
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"market already settled"}`, rec.Body.String())
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"oracle auth", domain.ErrOracleNotAuthorized, http.StatusForbidden},
		{"owner auth", domain.ErrUnauthorized, http.StatusForbidden},
		{"already claimed", domain.ErrAlreadyClaimed, http.StatusConflict},
		{"lock held", domain.ErrLockHeld, http.StatusConflict},
		{"not active", domain.ErrMarketNotActive, http.StatusConflict},
		{"bet too small", domain.ErrBetAmountTooSmall, http.StatusUnprocessableEntity},
		{"slippage", domain.ErrSlippageExceeded, http.StatusUnprocessableEntity},
		{"insufficient funds", domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
		{"unknown", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestParseListOpts(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/markets?limit=9999&offset=20", nil)
	opts := parseListOpts(r)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)

	r = httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	opts = parseListOpts(r)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
}
