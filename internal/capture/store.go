// Package capture persists one immutable JSON snapshot per inbound
// device request. Capture happens before parsing and is unconditional:
// whatever the parser later makes of a payload, the raw request is
// already on disk and can be replayed.
package capture

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fleetworks/punchd/internal/models"
)

// ErrEmpty is returned by Last when no capture exists yet.
var ErrEmpty = errors.New("capture: no captures recorded")

// Receipt identifies a stored capture. Timestamp is the ingestion
// instant reused as ts_ingest on every event journaled from this
// request.
type Receipt struct {
	ID        string
	Timestamp string
}

// Store writes and reads raw captures under a single directory.
// Capture IDs are time-ordered: a UTC microsecond timestamp plus a
// process-local sequence, so concurrent requests inside the same
// microsecond still get distinct, ordered names.
type Store struct {
	dir string
	seq atomic.Uint64
}

// NewStore creates the capture directory if needed.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("capture: directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create capture dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the capture directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Capture writes one request snapshot and returns its receipt. It
// never inspects the payload; failures here are fatal for the request
// because without the raw copy nothing downstream is replayable.
func (s *Store) Capture(path string, query url.Values, body string) (Receipt, error) {
	now := time.Now().UTC()
	ts := ingestTimestamp(now)
	id := fmt.Sprintf("%s-%06d", ts, s.seq.Add(1)%1000000)

	rc := models.RawCapture{
		Ts:    ts,
		Path:  path,
		Query: query,
		Body:  body,
	}
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal capture: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, id+".json"), data, 0o644); err != nil {
		return Receipt{}, fmt.Errorf("write capture %s: %w", id, err)
	}
	return Receipt{ID: id, Timestamp: ts}, nil
}

// Last returns the most recent capture, by ID order.
func (s *Store) Last() (*models.RawCapture, error) {
	ids, err := s.list()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrEmpty
	}
	return s.read(ids[len(ids)-1])
}

// Count returns the number of stored captures.
func (s *Store) Count() (int, error) {
	ids, err := s.list()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Walk visits every capture in ID (arrival) order. A capture that no
// longer unmarshals is skipped; fn errors abort the walk.
func (s *Store) Walk(fn func(id string, rc *models.RawCapture) error) error {
	ids, err := s.list()
	if err != nil {
		return err
	}
	for _, id := range ids {
		rc, err := s.read(id)
		if err != nil {
			continue
		}
		if err := fn(id, rc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read capture dir: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) read(id string) (*models.RawCapture, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("read capture %s: %w", id, err)
	}
	var rc models.RawCapture
	if err := json.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("decode capture %s: %w", id, err)
	}
	return &rc, nil
}

// ingestTimestamp renders the capture instant as a compact UTC string
// with microsecond precision, e.g. 20240131T080000123456Z.
func ingestTimestamp(t time.Time) string {
	return fmt.Sprintf("%sT%s%06dZ",
		t.Format("20060102"), t.Format("150405"), t.Nanosecond()/1000)
}
