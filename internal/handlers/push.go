// Package handlers exposes the HTTP surface: device push endpoints,
// diagnostics, and journal exports.
package handlers

import (
	"net/http"
	"net/url"

	"github.com/fleetworks/punchd/internal/metrics"
	"github.com/fleetworks/punchd/internal/ratelimit"
	"github.com/fleetworks/punchd/internal/service"
	"github.com/fleetworks/punchd/pkg/httputil"
	"github.com/fleetworks/punchd/pkg/iclock"
	"github.com/fleetworks/punchd/pkg/logging"
)

// Endpoint paths as the firmware dials them. The parser receives these
// as raw_source provenance, so they stay canonical without the
// trailing slash.
const (
	PathCData      = "/iclock/cdata"
	PathGetRequest = "/iclock/getrequest"
	PathRtlog      = "/iclock/rtlog"
)

// okBody is the literal response every push endpoint returns on
// success. Firmware matches it exactly and retries on anything else.
const okBody = "OK"

// PushHandler serves the device push endpoints. Every response is
// 200/OK unless raw capture itself failed: parse problems are the
// server's to sort out later from the captured payload, not the
// terminal's.
type PushHandler struct {
	coordinator *service.Coordinator
	limiter     ratelimit.RateLimiter
	logger      *logging.Logger
}

// NewPushHandler wires the push endpoints.
func NewPushHandler(coordinator *service.Coordinator, limiter ratelimit.RateLimiter, logger *logging.Logger) *PushHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PushHandler{coordinator: coordinator, limiter: limiter, logger: logger}
}

// HandleCData receives bulk ATTLOG pushes: capture, parse, journal.
func (h *PushHandler) HandleCData(w http.ResponseWriter, r *http.Request) {
	body := httputil.ReadBody(r)
	params := iclock.MergeParams(
		r.URL.Query(),
		httputil.FormValues(r.Header.Get("Content-Type"), body),
	)

	h.checkRateLimit(r, params)

	if _, err := h.coordinator.IngestBulk(r.Context(), PathCData, params, body); err != nil {
		h.logger.ErrorContext(r.Context(), "bulk ingestion failed",
			logging.Path(PathCData), logging.Error(err))
		httputil.WritePlain(w, http.StatusInternalServerError, "ERROR")
		return
	}
	httputil.WritePlain(w, http.StatusOK, okBody)
}

// HandleGetRequest receives the polling/ack endpoint. Capture only;
// these payloads carry commands traffic, not punches.
func (h *PushHandler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	body := httputil.ReadBody(r)
	params := r.URL.Query()

	if err := h.coordinator.CaptureOnly(r.Context(), PathGetRequest, params, body); err != nil {
		h.logger.ErrorContext(r.Context(), "capture failed",
			logging.Path(PathGetRequest), logging.Error(err))
		httputil.WritePlain(w, http.StatusInternalServerError, "ERROR")
		return
	}
	httputil.WritePlain(w, http.StatusOK, okBody)
}

// HandleRtlog receives single-punch realtime pushes. Query parameters
// merge with form body parameters, query winning on conflicts.
func (h *PushHandler) HandleRtlog(w http.ResponseWriter, r *http.Request) {
	body := httputil.ReadBody(r)
	merged := iclock.MergeParams(
		r.URL.Query(),
		httputil.FormValues(r.Header.Get("Content-Type"), body),
	)

	h.checkRateLimit(r, merged)

	if _, err := h.coordinator.IngestRealtime(r.Context(), PathRtlog, merged, body); err != nil {
		h.logger.ErrorContext(r.Context(), "realtime ingestion failed",
			logging.Path(PathRtlog), logging.Error(err))
		httputil.WritePlain(w, http.StatusInternalServerError, "ERROR")
		return
	}
	httputil.WritePlain(w, http.StatusOK, okBody)
}

// checkRateLimit is advisory: a device over its window is logged and
// counted but its punches are still ingested. Dropping them would
// trade durability for backpressure the firmware cannot act on anyway.
func (h *PushHandler) checkRateLimit(r *http.Request, params url.Values) {
	key := httputil.GetClientIP(r)
	if sn := iclock.DeviceSerial(params); sn != nil {
		key = *sn
	}

	allowed, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		h.logger.WarnContext(r.Context(), "rate limit check failed", logging.Error(err))
		return
	}
	if !allowed {
		metrics.RateLimitHits.WithLabelValues(key).Inc()
		h.logger.WarnContext(r.Context(), "device over rate limit", logging.DeviceSN(key))
	}
}
