// Package iclock parses the HTTP push protocol spoken by attendance
// terminals. It recognizes three wire encodings — extended
// tab-separated ATTLOG records, short comma-separated ATTLOG records,
// and single-punch rtlog parameter sets — and normalizes all of them
// into models.AttendanceEvent. Parsing is pure: no I/O, no state.
package iclock

import (
	"net/url"
	"strings"

	"github.com/fleetworks/punchd/internal/models"
)

// attlogMarker is the form-body marker terminals embed ahead of each
// record in bulk pushes.
const attlogMarker = "ATTLOG="

// serialKeys are the query parameter names a terminal may use for its
// serial number. First found wins.
var serialKeys = []string{"SN", "sn", "SerialNumber"}

// DeviceSerial extracts the terminal serial from query parameters.
// Returns nil when no known key is present.
func DeviceSerial(query url.Values) *string {
	for _, key := range serialKeys {
		if vs, ok := query[key]; ok && len(vs) > 0 && vs[0] != "" {
			sn := vs[0]
			return &sn
		}
	}
	return nil
}

// ParseBulk applies the ordered bulk recognition rules and returns
// every valid event found. Unparseable lines are skipped, never
// reported: the terminal retries whole payloads, not lines, and a
// defect in one line must not block its neighbors.
//
// Recognition order, first match wins:
//  1. body lines carrying the ATTLOG= marker (form-embedded push)
//  2. table=ATTLOG with a tab or newline in the raw body
//  3. table=ATTLOG with ATTLOG query parameter values
func ParseBulk(query url.Values, body string) []models.AttendanceEvent {
	switch {
	case strings.Contains(body, attlogMarker):
		var events []models.AttendanceEvent
		for _, line := range splitLines(body) {
			if !strings.Contains(line, attlogMarker) {
				continue
			}
			raw := line[strings.Index(line, attlogMarker)+len(attlogMarker):]
			if ev, ok := parseLine(raw); ok {
				events = append(events, ev)
			}
		}
		return events

	case tableIsAttlog(query) && strings.ContainsAny(body, "\t\n"):
		var events []models.AttendanceEvent
		for _, line := range splitLines(body) {
			if ev, ok := parseLine(line); ok {
				events = append(events, ev)
			}
		}
		return events

	case tableIsAttlog(query) && len(query["ATTLOG"]) > 0:
		var events []models.AttendanceEvent
		for _, value := range query["ATTLOG"] {
			for _, line := range splitLines(value) {
				if ev, ok := parseLine(line); ok {
					events = append(events, ev)
				}
			}
		}
		return events
	}

	return nil
}

// ParseSingle extracts one rtlog punch from merged request
// parameters. The key lookup is case-insensitive. Returns false when
// PIN or Time is missing: both are mandatory. rtlog carries no punch
// direction, so Punch is always nil.
func ParseSingle(merged url.Values) (models.AttendanceEvent, bool) {
	pin := lookupFold(merged, "PIN")
	tstr := lookupFold(merged, "Time")
	if pin == "" || tstr == "" {
		return models.AttendanceEvent{}, false
	}

	ev := models.AttendanceEvent{
		UserID:    pin,
		Timestamp: NormalizeTimestamp(tstr),
	}
	if st := lookupFold(merged, "Status"); st != "" {
		ev.Status = &st
	}
	if wc := lookupFold(merged, "Workcode"); wc != "" {
		ev.Workcode = &wc
	}
	return ev, true
}

// BodyParams decodes a request body as loose query-string parameters.
// Some firmware sends rtlog bodies shaped like PIN=..&Time=.. without
// the form content type, so a content-type-gated form decode never
// sees them. Decode failures yield whatever pairs did parse.
func BodyParams(body string) url.Values {
	values, _ := url.ParseQuery(body)
	return values
}

// MergeParams folds form-decoded body parameters into a copy of the
// query parameters. Query values win: a key already present from the
// query is never overwritten.
func MergeParams(query url.Values, form url.Values) url.Values {
	merged := make(url.Values, len(query)+len(form))
	for k, vs := range query {
		merged[k] = append([]string(nil), vs...)
	}
	for k, vs := range form {
		if _, exists := merged[k]; !exists {
			merged[k] = append([]string(nil), vs...)
		}
	}
	return merged
}

// parseLine parses one candidate ATTLOG record. A line containing any
// comma is treated as the short encoding even if tabs are present;
// real firmware behavior is unverified and this precedence matches
// deployed devices.
func parseLine(line string) (models.AttendanceEvent, bool) {
	raw := strings.TrimRight(line, " \t\r\n")
	raw = strings.TrimRight(raw, ",")
	if raw == "" {
		return models.AttendanceEvent{}, false
	}

	if strings.Contains(raw, "\t") && !strings.Contains(raw, ",") {
		return parseExtended(raw)
	}
	return parseShort(raw)
}

// parseExtended handles the tab-separated encoding:
// user_id, time, verified, status, punch, workcode, c7, c8, c9.
func parseExtended(raw string) (models.AttendanceEvent, bool) {
	parts := strings.Split(raw, "\t")
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 2 {
		return models.AttendanceEvent{}, false
	}

	userID := strings.TrimSpace(parts[0])
	dtStr := strings.TrimSpace(parts[1])
	if userID == "" || dtStr == "" {
		return models.AttendanceEvent{}, false
	}

	ext := models.Extension{
		Verified: field(parts, 2),
		Status:   field(parts, 3),
		Punch:    field(parts, 4),
		Workcode: field(parts, 5),
		C7:       field(parts, 6),
		C8:       field(parts, 7),
		C9:       field(parts, 8),
	}

	return models.AttendanceEvent{
		UserID:    userID,
		Timestamp: NormalizeTimestamp(dtStr),
		Status:    ext.Status,
		Punch:     ext.Punch,
		Workcode:  ext.Workcode,
		Ext:       ext,
	}, true
}

// parseShort handles the comma-separated encoding:
// user_id, time, status, punch, workcode. Missing trailing fields are
// nil, not an error.
func parseShort(raw string) (models.AttendanceEvent, bool) {
	split := strings.Split(raw, ",")
	parts := make([]*string, 5)
	for i := 0; i < len(split) && i < 5; i++ {
		v := strings.TrimSpace(split[i])
		if v != "" {
			parts[i] = &v
		}
	}
	if parts[0] == nil || parts[1] == nil {
		return models.AttendanceEvent{}, false
	}

	return models.AttendanceEvent{
		UserID:    *parts[0],
		Timestamp: NormalizeTimestamp(*parts[1]),
		Status:    parts[2],
		Punch:     parts[3],
		Workcode:  parts[4],
	}, true
}

// field returns a trimmed positional field, or nil when the record is
// too short to carry it.
func field(parts []string, i int) *string {
	if i >= len(parts) {
		return nil
	}
	v := strings.TrimSpace(parts[i])
	return &v
}

func tableIsAttlog(query url.Values) bool {
	return strings.EqualFold(query.Get("table"), "ATTLOG")
}

func splitLines(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == '\n' || r == '\r' })
}

// lookupFold returns the first value whose key matches case
// insensitively, preferring an exact-case match.
func lookupFold(params url.Values, key string) string {
	if vs, ok := params[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	for k, vs := range params {
		if strings.EqualFold(k, key) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}
