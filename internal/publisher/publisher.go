// Package publisher fans journaled events out to downstream consumers
// over NATS. The fan-out is strictly best-effort: the journal already
// made the event durable, so a publish failure is logged and counted
// but never surfaced to ingestion. Consumers that were offline catch
// up from the export endpoints, not from replayed messages.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fleetworks/punchd/internal/metrics"
	"github.com/fleetworks/punchd/internal/models"
)

// Publisher publishes journal entries as JSON messages. A nil
// Publisher is a valid no-op.
type Publisher struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *slog.Logger
}

// Config holds NATS connection settings.
type Config struct {
	URL           string
	SubjectPrefix string
}

// New connects to NATS with infinite reconnects. punchd keeps
// ingesting while the broker is down; the connection buffers and
// resumes on its own.
func New(cfg Config, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "punchd.events"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("punchd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Publisher{conn: conn, subjectPrefix: prefix, logger: logger}, nil
}

// PublishEntry sends one journal entry to its subject. Never returns
// an error to the caller; failures go to logs and metrics.
func (p *Publisher) PublishEntry(ctx context.Context, entry *models.JournalEntry) {
	if p == nil {
		return
	}
	if err := ctx.Err(); err != nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		metrics.PublishErrors.Inc()
		p.logger.Error("marshal journal entry for publish", slog.String("error", err.Error()))
		return
	}

	subject := p.subjectPrefix + "." + subjectKind(entry.RawSource)
	if err := p.conn.Publish(subject, data); err != nil {
		metrics.PublishErrors.Inc()
		p.logger.Warn("downstream publish failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}

// subjectKind maps the originating endpoint to a subject token:
// rtlog pushes get their own subject, everything else is attlog.
func subjectKind(rawSource string) string {
	if strings.Contains(rawSource, "rtlog") {
		return "rtlog"
	}
	return "attlog"
}
