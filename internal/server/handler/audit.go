package handler

import (
	"log/slog"
	"net/http"

	"github.com/verdictlabs/casemarket/internal/domain"
)

// AuditHandler exposes the append-only audit log to operators.
type AuditHandler struct {
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewAuditHandler creates an AuditHandler.
func NewAuditHandler(audit domain.AuditStore, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// ListAudit returns audit log entries, newest first.
// GET /api/audit
func (h *AuditHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}
