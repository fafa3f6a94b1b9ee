package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/verdictlabs/casemarket/internal/domain"
	"github.com/verdictlabs/casemarket/internal/service"
)

// StreamReader reads back durable event streams.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// streamNames maps the public stream names onto the bus keys.
var streamNames = map[string]string{
	"bets":        service.StreamBets,
	"settlements": service.StreamSettlements,
}

// EventsHandler serves replay reads over the durable event streams, for
// consumers that missed the live pub/sub fan-out.
type EventsHandler struct {
	bus    StreamReader
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(bus StreamReader, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger}
}

// streamEntry is one replayed event with its stream cursor.
type streamEntry struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ReadStream returns events from a durable stream after the given cursor.
// GET /api/streams/{stream}?after=<id>&limit=50
func (h *EventsHandler) ReadStream(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "stream")
	stream, ok := streamNames[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown stream")
		return
	}

	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	opts := parseListOpts(r)

	msgs, err := h.bus.StreamRead(r.Context(), stream, after, opts.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: stream read failed",
			slog.String("stream", name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read stream")
		return
	}

	entries := make([]streamEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = streamEntry{ID: m.ID, Payload: m.Payload}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stream":  name,
		"entries": entries,
	})
}
