// Package replay re-feeds previously captured raw requests through
// the ingestion coordinator. It is the recovery path after a parser
// fix: captures are never deleted, so whatever a bug dropped can be
// re-ingested offline.
package replay

import (
	"context"
	"strings"

	"github.com/fleetworks/punchd/internal/capture"
	"github.com/fleetworks/punchd/internal/models"
	"github.com/fleetworks/punchd/internal/service"
)

// Result summarizes one replay run.
type Result struct {
	Replayed int // captures re-fed through ingestion
	Skipped  int // captures with no ATTLOG signal
	Events   int // events journaled across all replayed captures
}

// Run walks the capture store in arrival order and re-ingests every
// capture that looks ATTLOG-relevant: table=ATTLOG in the query, the
// ATTLOG= marker in the body, or a tab in the body. Each replayed
// request is captured again, like any other ingestion, so the run
// itself leaves an audit trail.
func Run(ctx context.Context, store *capture.Store, coordinator *service.Coordinator) (Result, error) {
	var res Result
	err := store.Walk(func(id string, rc *models.RawCapture) error {
		if !relevant(rc) {
			res.Skipped++
			return nil
		}
		path := rc.Path
		if path == "" {
			path = "/replay"
		}
		n, err := coordinator.IngestBulk(ctx, path, rc.Query, rc.Body)
		if err != nil {
			return err
		}
		res.Replayed++
		res.Events += n
		return nil
	})
	return res, err
}

func relevant(rc *models.RawCapture) bool {
	if table := first(rc.Query, "table"); strings.EqualFold(table, "ATTLOG") {
		return true
	}
	return strings.Contains(rc.Body, "ATTLOG=") || strings.Contains(rc.Body, "\t")
}

func first(query map[string][]string, key string) string {
	if vs, ok := query[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
