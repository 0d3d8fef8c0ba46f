package handlers

import (
	"errors"
	"net/http"

	"github.com/fleetworks/punchd/internal/capture"
	"github.com/fleetworks/punchd/internal/journal"
	"github.com/fleetworks/punchd/pkg/httputil"
	"github.com/fleetworks/punchd/pkg/logging"
)

// DiagHandler serves the operator diagnostics: last raw capture and
// ingestion health counts.
type DiagHandler struct {
	captures *capture.Store
	reader   *journal.Reader
	logger   *logging.Logger
}

// NewDiagHandler wires the diagnostics endpoints.
func NewDiagHandler(captures *capture.Store, reader *journal.Reader, logger *logging.Logger) *DiagHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DiagHandler{captures: captures, reader: reader, logger: logger}
}

// HandleLast returns the most recent raw capture verbatim.
func (h *DiagHandler) HandleLast(w http.ResponseWriter, r *http.Request) {
	rc, err := h.captures.Last()
	if err != nil {
		if errors.Is(err, capture.ErrEmpty) {
			httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"ok":  true,
				"msg": "no captures yet",
			})
			return
		}
		h.logger.ErrorContext(r.Context(), "reading last capture failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "capture store unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rc)
}

// HandleHealth reports captured vs journaled counts. The two numbers
// drifting apart is expected (not every capture carries punches); a
// journaled count stuck at zero while captures climb is the signal
// worth alerting on.
func (h *DiagHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	raw, err := h.captures.Count()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "counting captures failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "capture store unavailable")
		return
	}
	parsed, err := h.reader.Count()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "counting journal entries failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"raw":    raw,
		"parsed": parsed,
	})
}

// HandleLiveness is the plain process liveness probe.
func (h *DiagHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
