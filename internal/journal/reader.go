package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/fleetworks/punchd/internal/models"
)

// Filter is the conjunctive predicate applied while scanning the
// record sink. SN and UserID are exact string matches. Since and
// Until bound the normalized event timestamp inclusively, compared as
// strings; the canonical format is fixed-width and zero-padded so the
// comparison orders chronologically. Events that kept an unparseable
// raw timestamp compare unpredictably against the bounds — accepted
// limitation, not silently corrected.
type Filter struct {
	SN     string
	UserID string
	Since  string
	Until  string
}

// Reader scans the record sink sequentially. It holds no lock and
// opens the file per query, so ongoing appends are never blocked; a
// query issued mid-ingestion sees the snapshot that existed when its
// scan began, and a torn final line is skipped like any malformed one.
type Reader struct {
	recordPath string
}

// NewReader builds a read-only view over a journal's record sink.
func NewReader(cfg Config) *Reader {
	return &Reader{recordPath: cfg.RecordPath}
}

// Query returns at most the last limit matching events, in arrival
// order. limit <= 0 means unbounded. Malformed lines are skipped,
// never fatal. A journal that does not exist yet yields zero events.
func (r *Reader) Query(f Filter, limit int) ([]models.FlatEvent, error) {
	file, err := os.Open(r.recordPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var items []models.FlatEvent
	err = scanLines(file, func(line []byte) {
		var entry models.JournalEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return
		}
		flat := entry.Flatten()
		if f.matches(flat) {
			items = append(items, flat)
		}
	})
	if err != nil {
		return nil, err
	}

	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

// Count returns the number of scannable lines in the record sink,
// parseable or not. Used by the health endpoint to compare captured
// vs journaled.
func (r *Reader) Count() (int, error) {
	file, err := os.Open(r.recordPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer file.Close()

	count := 0
	err = scanLines(file, func([]byte) { count++ })
	return count, err
}

// maxLineBytes bounds a single journal line. Device records are tiny;
// this only guards the scan against a corrupted sink.
const maxLineBytes = 1024 * 1024

// scanLines calls fn once per newline-delimited line. A line over
// maxLineBytes is discarded and the scan keeps going, so one corrupt
// run in the sink never hides the entries after it. fn must not
// retain the slice.
func scanLines(file *os.File, fn func(line []byte)) error {
	br := bufio.NewReaderSize(file, 64*1024)
	var buf []byte
	skipping := false
	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !skipping {
				buf = append(buf, chunk...)
				if len(buf) > maxLineBytes {
					buf = buf[:0]
					skipping = true
				}
			}
			continue
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}

		if !skipping {
			buf = append(buf, chunk...)
			if line := bytes.TrimRight(buf, "\r\n"); len(line) > 0 {
				fn(line)
			}
		}
		buf = buf[:0]
		skipping = false

		if err != nil {
			return nil
		}
	}
}

func (f Filter) matches(ev models.FlatEvent) bool {
	if f.SN != "" && (ev.SN == nil || *ev.SN != f.SN) {
		return false
	}
	if f.UserID != "" && ev.UserID != f.UserID {
		return false
	}
	if f.Since != "" && ev.Timestamp < f.Since {
		return false
	}
	if f.Until != "" && ev.Timestamp > f.Until {
		return false
	}
	return true
}
