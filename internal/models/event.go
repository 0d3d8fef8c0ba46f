package models

// Extension carries the trailing fields of an extended tab-separated
// ATTLOG record. Devices that push the short comma-separated encoding
// or rtlog never populate it.
type Extension struct {
	Verified *string `json:"verified,omitempty"`
	Status   *string `json:"status,omitempty"`
	Punch    *string `json:"punch,omitempty"`
	Workcode *string `json:"workcode,omitempty"`
	C7       *string `json:"c7,omitempty"`
	C8       *string `json:"c8,omitempty"`
	C9       *string `json:"c9,omitempty"`
}

// IsEmpty reports whether no extension field is set.
func (e Extension) IsEmpty() bool {
	return e.Verified == nil && e.Status == nil && e.Punch == nil &&
		e.Workcode == nil && e.C7 == nil && e.C8 == nil && e.C9 == nil
}

// AttendanceEvent is the canonical punch record produced by the
// protocol parser. UserID and Timestamp are mandatory; a candidate
// line lacking either never becomes an event. Timestamp holds the
// device time normalized to "YYYY-MM-DD HH:MM:SS" when parseable,
// otherwise the raw device string.
type AttendanceEvent struct {
	UserID    string    `json:"user_id"`
	Timestamp string    `json:"timestamp"`
	Status    *string   `json:"status"`
	Punch     *string   `json:"punch"`
	Workcode  *string   `json:"workcode"`
	Ext       Extension `json:"ext"`
}

// JournalEntry is an AttendanceEvent decorated with ingestion
// metadata. One line per entry in each journal sink.
type JournalEntry struct {
	TsIngest string  `json:"ts_ingest"`
	SN       *string `json:"sn"`
	AttendanceEvent
	RawSource string `json:"raw_source"`
}

// RawCapture is the immutable snapshot of one inbound device request,
// written before any parsing happens. It is the sole source of truth
// for offline replay.
type RawCapture struct {
	Ts    string              `json:"ts"`
	Path  string              `json:"path"`
	Query map[string][]string `json:"query"`
	Body  string              `json:"body"`
}

// FlatColumns is the fixed column order shared by the tabular journal
// sink and both export projections.
var FlatColumns = []string{
	"ts_ingest", "sn", "user_id", "timestamp",
	"status", "punch", "workcode",
	"ext_verified", "ext_status", "ext_punch", "ext_workcode",
	"ext_c7", "ext_c8", "ext_c9",
	"raw_source",
}

// FlatEvent is the flattened projection of a JournalEntry used by the
// export endpoints.
type FlatEvent struct {
	TsIngest    string  `json:"ts_ingest"`
	SN          *string `json:"sn"`
	UserID      string  `json:"user_id"`
	Timestamp   string  `json:"timestamp"`
	Status      *string `json:"status"`
	Punch       *string `json:"punch"`
	Workcode    *string `json:"workcode"`
	ExtVerified *string `json:"ext_verified"`
	ExtStatus   *string `json:"ext_status"`
	ExtPunch    *string `json:"ext_punch"`
	ExtWorkcode *string `json:"ext_workcode"`
	ExtC7       *string `json:"ext_c7"`
	ExtC8       *string `json:"ext_c8"`
	ExtC9       *string `json:"ext_c9"`
	RawSource   string  `json:"raw_source"`
}

// Flatten projects a JournalEntry into the fixed export shape.
func (j *JournalEntry) Flatten() FlatEvent {
	return FlatEvent{
		TsIngest:    j.TsIngest,
		SN:          j.SN,
		UserID:      j.UserID,
		Timestamp:   j.Timestamp,
		Status:      j.Status,
		Punch:       j.Punch,
		Workcode:    j.Workcode,
		ExtVerified: j.Ext.Verified,
		ExtStatus:   j.Ext.Status,
		ExtPunch:    j.Ext.Punch,
		ExtWorkcode: j.Ext.Workcode,
		ExtC7:       j.Ext.C7,
		ExtC8:       j.Ext.C8,
		ExtC9:       j.Ext.C9,
		RawSource:   j.RawSource,
	}
}

// Row renders the flat event in FlatColumns order for the CSV sink.
// Nil fields become empty strings.
func (f FlatEvent) Row() []string {
	return []string{
		f.TsIngest,
		deref(f.SN),
		f.UserID,
		f.Timestamp,
		deref(f.Status),
		deref(f.Punch),
		deref(f.Workcode),
		deref(f.ExtVerified),
		deref(f.ExtStatus),
		deref(f.ExtPunch),
		deref(f.ExtWorkcode),
		deref(f.ExtC7),
		deref(f.ExtC8),
		deref(f.ExtC9),
		f.RawSource,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
