// Package service holds the ingestion coordinator: the one component
// that strings capture, parsing, and journaling together for each
// inbound device request.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/fleetworks/punchd/internal/capture"
	"github.com/fleetworks/punchd/internal/journal"
	"github.com/fleetworks/punchd/internal/metrics"
	"github.com/fleetworks/punchd/internal/models"
	"github.com/fleetworks/punchd/pkg/iclock"
	"github.com/fleetworks/punchd/pkg/logging"
)

// Publisher fans journal entries out to downstream consumers after a
// successful append. Implementations must be best-effort: the journal
// is the durability guarantee, not the publish.
type Publisher interface {
	PublishEntry(ctx context.Context, entry *models.JournalEntry)
}

// Coordinator drives capture -> parse -> append for every inbound
// request. Capture is unconditional and its failure is the only
// ingestion error a device ever sees; everything after it degrades to
// skipped lines, never to a lost request.
type Coordinator struct {
	captures  *capture.Store
	journal   *journal.Journal
	publisher Publisher
	logger    *slog.Logger
}

// New wires a coordinator. publisher may be nil when fan-out is
// disabled.
func New(captures *capture.Store, j *journal.Journal, publisher Publisher, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		captures:  captures,
		journal:   j,
		publisher: publisher,
		logger:    logger,
	}
}

// IngestBulk handles a bulk push: capture the request, run the bulk
// recognizer, journal every valid event. Returns how many events were
// journaled. Zero events is a normal outcome, not an error.
func (c *Coordinator) IngestBulk(ctx context.Context, path string, params url.Values, body string) (int, error) {
	receipt, err := c.captureRequest(path, params, body)
	if err != nil {
		return 0, err
	}

	events := iclock.ParseBulk(params, body)
	appended, err := c.appendAll(ctx, path, receipt, params, events)
	if err != nil {
		return appended, err
	}
	if appended > 0 {
		c.logger.InfoContext(ctx, "journaled bulk push",
			logging.CaptureID(receipt.ID),
			logging.Path(path),
			logging.EventCount(appended),
		)
	}
	return appended, nil
}

// CaptureOnly records the request without parsing. Used by the
// polling/ack endpoint, whose payloads carry no punches.
func (c *Coordinator) CaptureOnly(ctx context.Context, path string, params url.Values, body string) error {
	_, err := c.captureRequest(path, params, body)
	return err
}

// IngestRealtime handles an rtlog push: capture, then a single-event
// parse over the merged parameters. An unparseable payload is
// captured and dropped; the device still gets its OK.
func (c *Coordinator) IngestRealtime(ctx context.Context, path string, merged url.Values, body string) (bool, error) {
	receipt, err := c.captureRequest(path, merged, body)
	if err != nil {
		return false, err
	}

	ev, ok := iclock.ParseSingle(merged)
	if !ok && body != "" {
		// Some terminals put PIN=..&Time=.. in the body without the
		// form content type, so the upstream merge never saw them.
		merged = iclock.MergeParams(merged, iclock.BodyParams(body))
		ev, ok = iclock.ParseSingle(merged)
	}
	if !ok {
		return false, nil
	}
	if _, err := c.appendAll(ctx, path, receipt, merged, []models.AttendanceEvent{ev}); err != nil {
		return false, err
	}
	c.logger.InfoContext(ctx, "journaled realtime punch",
		logging.CaptureID(receipt.ID),
		logging.UserID(ev.UserID),
	)
	return true, nil
}

func (c *Coordinator) captureRequest(path string, params url.Values, body string) (capture.Receipt, error) {
	receipt, err := c.captures.Capture(path, params, body)
	if err != nil {
		metrics.CaptureErrors.Inc()
		return capture.Receipt{}, fmt.Errorf("capture %s: %w", path, err)
	}
	metrics.CapturesTotal.WithLabelValues(path).Inc()
	return receipt, nil
}

// appendAll journals each event in order, decorated with the capture
// timestamp, device serial, and originating path. Stops at the first
// append error: by then earlier events are durable in both sinks and
// the raw capture covers whatever was lost.
func (c *Coordinator) appendAll(ctx context.Context, path string, receipt capture.Receipt, params url.Values, events []models.AttendanceEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	sn := iclock.DeviceSerial(params)
	appended := 0
	for i := range events {
		entry := &models.JournalEntry{
			TsIngest:        receipt.Timestamp,
			SN:              sn,
			AttendanceEvent: events[i],
			RawSource:       path,
		}
		if err := c.journal.Append(entry); err != nil {
			metrics.AppendErrors.Inc()
			return appended, fmt.Errorf("journal append: %w", err)
		}
		metrics.AppendsTotal.Inc()
		metrics.EventsTotal.WithLabelValues(path).Inc()
		appended++

		if c.publisher != nil {
			c.publisher.PublishEntry(ctx, entry)
		}
	}
	return appended, nil
}
