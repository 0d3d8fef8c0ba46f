package iclock

import (
	"strings"
	"time"
)

// CanonicalTimeLayout is the normalized device-time format used across
// the journal and the export filters. Fixed-width and zero-padded so
// string comparison orders chronologically.
const CanonicalTimeLayout = "2006-01-02 15:04:05"

// deviceTimeLayouts are the device timestamp shapes seen in the wild,
// tried in order. Fractional seconds are handled by time.Parse when
// the base layout matches.
var deviceTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// NormalizeTimestamp converts a device-reported time string to the
// canonical "YYYY-MM-DD HH:MM:SS" form. Internal runs of whitespace
// collapse to a single space before parsing, since some firmware pads
// the date/time separator. Unparseable input is returned verbatim,
// padding included: a bad clock must not cost the punch, and the raw
// string is the only evidence of what the device sent.
func NormalizeTimestamp(s string) string {
	collapsed := strings.Join(strings.Fields(s), " ")
	if collapsed == "" {
		return s
	}
	for _, layout := range deviceTimeLayouts {
		if t, err := time.Parse(layout, collapsed); err == nil {
			return t.Format(CanonicalTimeLayout)
		}
	}
	return s
}
