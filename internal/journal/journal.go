// Package journal owns the durable, append-only event log: an NDJSON
// record sink and a CSV tabular sink kept one-to-one in the same
// order. Writes go through a single mutex so concurrent ingestion
// requests serialize into one total order shared by both sinks, and
// so the tabular header check cannot race.
package journal

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fleetworks/punchd/internal/models"
)

// Config carries the journal's on-disk locations.
type Config struct {
	RecordPath  string // NDJSON record sink
	TabularPath string // CSV tabular sink
}

// Journal appends accepted events to both sinks. Safe for concurrent
// use; reads go through Reader, which never takes this lock.
type Journal struct {
	cfg Config

	mu         sync.Mutex
	record     *os.File
	tabular    *os.File
	headerDone bool
}

// Open prepares both sink files for appending and creates parent
// directories as needed. The tabular header is not written here: it
// goes in front of the first data row, under the append lock.
func Open(cfg Config) (*Journal, error) {
	if cfg.RecordPath == "" || cfg.TabularPath == "" {
		return nil, fmt.Errorf("journal: both sink paths required")
	}
	for _, p := range []string{cfg.RecordPath, cfg.TabularPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	record, err := os.OpenFile(cfg.RecordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open record sink: %w", err)
	}
	tabular, err := os.OpenFile(cfg.TabularPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		record.Close()
		return nil, fmt.Errorf("open tabular sink: %w", err)
	}

	return &Journal{cfg: cfg, record: record, tabular: tabular}, nil
}

// Append writes the entry to both sinks and syncs them before
// returning. The whole sequence runs under one lock: header check,
// record line, tabular row. An I/O error is fatal for this entry only;
// appends never rewrite earlier bytes, so prior entries stay intact.
func (j *Journal) Append(entry *models.JournalEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.ensureHeaderLocked(); err != nil {
		return err
	}

	if _, err := j.record.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record sink: %w", err)
	}

	w := csv.NewWriter(j.tabular)
	if err := w.Write(entry.Flatten().Row()); err != nil {
		return fmt.Errorf("append tabular sink: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush tabular sink: %w", err)
	}

	if err := j.record.Sync(); err != nil {
		return fmt.Errorf("sync record sink: %w", err)
	}
	if err := j.tabular.Sync(); err != nil {
		return fmt.Errorf("sync tabular sink: %w", err)
	}
	return nil
}

// ensureHeaderLocked writes the fixed tabular header once, in front of
// any data row. Caller holds j.mu, which is what makes the
// check-then-act safe against concurrent first writers.
func (j *Journal) ensureHeaderLocked() error {
	if j.headerDone {
		return nil
	}
	info, err := j.tabular.Stat()
	if err != nil {
		return fmt.Errorf("stat tabular sink: %w", err)
	}
	if info.Size() == 0 {
		w := csv.NewWriter(j.tabular)
		if err := w.Write(models.FlatColumns); err != nil {
			return fmt.Errorf("write tabular header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return fmt.Errorf("flush tabular header: %w", err)
		}
	}
	j.headerDone = true
	return nil
}

// Close flushes and closes both sinks.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	recErr := j.record.Close()
	tabErr := j.tabular.Close()
	if recErr != nil {
		return recErr
	}
	return tabErr
}
