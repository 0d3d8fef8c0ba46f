package handlers

import (
	"encoding/csv"
	"net/http"

	"github.com/fleetworks/punchd/internal/journal"
	"github.com/fleetworks/punchd/internal/models"
	"github.com/fleetworks/punchd/pkg/httputil"
	"github.com/fleetworks/punchd/pkg/logging"
)

// Export result size defaults. Tabular exports feed spreadsheet
// imports and get a much larger ceiling.
const (
	DefaultJSONLimit = 1000
	DefaultCSVLimit  = 50000
)

// ExportHandler serves filtered journal exports in structured and
// tabular form.
type ExportHandler struct {
	reader *journal.Reader
	logger *logging.Logger
}

// NewExportHandler wires the export endpoints.
func NewExportHandler(reader *journal.Reader, logger *logging.Logger) *ExportHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ExportHandler{reader: reader, logger: logger}
}

// HandleJSON returns matching events as a structured sequence.
// Filters: sn, user_id, since, until (YYYY-MM-DD HH:MM:SS), limit.
func (h *ExportHandler) HandleJSON(w http.ResponseWriter, r *http.Request) {
	items, err := h.query(r, DefaultJSONLimit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "export query failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	if items == nil {
		items = []models.FlatEvent{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"count": len(items),
		"items": items,
	})
}

// HandleCSV returns matching events as text/csv with the journal's
// fixed 15-column header first.
func (h *ExportHandler) HandleCSV(w http.ResponseWriter, r *http.Request) {
	items, err := h.query(r, DefaultCSVLimit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "export query failed", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	cw := csv.NewWriter(w)
	if err := cw.Write(models.FlatColumns); err != nil {
		h.logger.ErrorContext(r.Context(), "writing export header failed", logging.Error(err))
		return
	}
	for i := range items {
		if err := cw.Write(items[i].Row()); err != nil {
			h.logger.ErrorContext(r.Context(), "writing export row failed", logging.Error(err))
			return
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		h.logger.ErrorContext(r.Context(), "flushing export failed", logging.Error(err))
	}
}

func (h *ExportHandler) query(r *http.Request, defaultLimit int) ([]models.FlatEvent, error) {
	q := r.URL.Query()
	filter := journal.Filter{
		SN:     q.Get("sn"),
		UserID: q.Get("user_id"),
		Since:  q.Get("since"),
		Until:  q.Get("until"),
	}
	limit := httputil.ParseIntParam(q.Get("limit"), defaultLimit)
	return h.reader.Query(filter, limit)
}
