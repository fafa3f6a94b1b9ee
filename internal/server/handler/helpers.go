package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// maxBodyBytes bounds request bodies; every mutating payload here is tiny.
const maxBodyBytes = 1 << 16

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a service error onto an HTTP status and writes it.
// Unknown errors become an opaque 500 so internals never leak to clients.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, domainMessage(err))
}

// statusForError picks the HTTP status for a domain sentinel. Lifecycle
// conflicts are 409, rejected inputs are 422, authorization failures 403.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrOracleNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAlreadyClaimed),
		errors.Is(err, domain.ErrLockHeld),
		errors.Is(err, domain.ErrMarketNotActive),
		errors.Is(err, domain.ErrMarketAlreadySettled),
		errors.Is(err, domain.ErrMarketNotSettled),
		errors.Is(err, domain.ErrSettlementTimeNotReached):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBetAmountTooSmall),
		errors.Is(err, domain.ErrBetAmountTooLarge),
		errors.Is(err, domain.ErrSlippageExceeded),
		errors.Is(err, domain.ErrInvalidOutcomeIndex),
		errors.Is(err, domain.ErrNotWinningBet),
		errors.Is(err, domain.ErrTooManyOutcomes),
		errors.Is(err, domain.ErrInsufficientLiquidity),
		errors.Is(err, domain.ErrInvalidLiquidityAmounts),
		errors.Is(err, domain.ErrInsufficientLPTokens),
		errors.Is(err, domain.ErrCaseIDTooLong),
		errors.Is(err, domain.ErrOutcomeNameTooLong),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// domainMessage strips service wrapping down to the sentinel text so client
// errors stay stable across refactors.
func domainMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrNotFound, domain.ErrUnauthorized, domain.ErrOracleNotAuthorized,
		domain.ErrAlreadyExists, domain.ErrAlreadyClaimed, domain.ErrLockHeld,
		domain.ErrMarketNotActive, domain.ErrMarketAlreadySettled,
		domain.ErrMarketNotSettled, domain.ErrSettlementTimeNotReached,
		domain.ErrBetAmountTooSmall, domain.ErrBetAmountTooLarge,
		domain.ErrSlippageExceeded, domain.ErrInvalidOutcomeIndex,
		domain.ErrNotWinningBet, domain.ErrTooManyOutcomes,
		domain.ErrInsufficientLiquidity, domain.ErrInvalidLiquidityAmounts,
		domain.ErrInsufficientLPTokens, domain.ErrCaseIDTooLong,
		domain.ErrOutcomeNameTooLong, domain.ErrInsufficientFunds,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}

// decodeJSON reads and unmarshals the request body into v, rejecting unknown
// fields and oversized bodies.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
