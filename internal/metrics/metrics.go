package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CapturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_captures_total",
			Help: "Raw request snapshots written, by endpoint",
		},
		[]string{"endpoint"},
	)

	CaptureErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchd_capture_errors_total",
			Help: "Raw capture write failures",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_events_total",
			Help: "Events parsed and accepted, by source endpoint",
		},
		[]string{"endpoint"},
	)

	AppendsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchd_journal_appends_total",
			Help: "Journal entries written to both sinks",
		},
	)

	AppendErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchd_journal_append_errors_total",
			Help: "Journal append failures",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "punchd_rate_limit_hits_total",
			Help: "Push requests over the per-device rate limit (advisory only)",
		},
		[]string{"device"},
	)

	PublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "punchd_publish_errors_total",
			Help: "Best-effort downstream publish failures",
		},
	)
)
