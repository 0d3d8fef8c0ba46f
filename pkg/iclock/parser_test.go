package iclock

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestParseBulk_ExtendedEncoding(t *testing.T) {
	body := "ATTLOG=1001\t2024-01-31 08:00:00\t1\t0\t0"

	events := ParseBulk(url.Values{}, body)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "1001", ev.UserID)
	assert.Equal(t, "2024-01-31 08:00:00", ev.Timestamp)

	// Top-level status/punch/workcode mirror the extension's
	// positional status (field 3), punch (field 4), workcode (field 5).
	assert.Equal(t, strptr("0"), ev.Status)
	assert.Equal(t, strptr("0"), ev.Punch)
	assert.Nil(t, ev.Workcode)

	assert.Equal(t, strptr("1"), ev.Ext.Verified)
	assert.Equal(t, strptr("0"), ev.Ext.Status)
	assert.Equal(t, strptr("0"), ev.Ext.Punch)
	assert.Nil(t, ev.Ext.Workcode)
	assert.Nil(t, ev.Ext.C7)
	assert.Nil(t, ev.Ext.C8)
	assert.Nil(t, ev.Ext.C9)
}

func TestParseBulk_ExtendedFullWidth(t *testing.T) {
	body := "ATTLOG=7\t2024-02-01 17:30:00\t1\t2\t3\t4\t5\t6\t7"

	events := ParseBulk(url.Values{}, body)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, strptr("1"), ev.Ext.Verified)
	assert.Equal(t, strptr("2"), ev.Ext.Status)
	assert.Equal(t, strptr("3"), ev.Ext.Punch)
	assert.Equal(t, strptr("4"), ev.Ext.Workcode)
	assert.Equal(t, strptr("5"), ev.Ext.C7)
	assert.Equal(t, strptr("6"), ev.Ext.C8)
	assert.Equal(t, strptr("7"), ev.Ext.C9)
	assert.Equal(t, strptr("2"), ev.Status)
	assert.Equal(t, strptr("3"), ev.Punch)
	assert.Equal(t, strptr("4"), ev.Workcode)
}

func TestParseBulk_ShortEncoding(t *testing.T) {
	body := "ATTLOG=1001,2024-01-31 08:00:00,1,0"

	events := ParseBulk(url.Values{}, body)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "1001", ev.UserID)
	assert.Equal(t, "2024-01-31 08:00:00", ev.Timestamp)
	assert.Equal(t, strptr("1"), ev.Status)
	assert.Equal(t, strptr("0"), ev.Punch)
	assert.Nil(t, ev.Workcode)
	assert.True(t, ev.Ext.IsEmpty(), "short encoding must leave extension empty")
}

func TestParseBulk_CommaWinsOverTab(t *testing.T) {
	// A comma anywhere routes the line to the short encoding even when
	// tabs are present. Deployed firmware behavior, preserved as-is.
	body := "ATTLOG=1001\t2024-01-31 08:00:00\tWC,7"

	events := ParseBulk(url.Values{}, body)
	require.Len(t, events, 1)
	assert.True(t, events[0].Ext.IsEmpty())
	assert.Equal(t, "1001\t2024-01-31 08:00:00\tWC", events[0].UserID)
}

func TestParseBulk_MultiLineMarkerBody(t *testing.T) {
	body := "ATTLOG=1001\t2024-01-31 08:00:00\t1\n" +
		"garbage line without marker\n" +
		"ATTLOG=1002\t2024-01-31 08:05:00\t1\n"

	events := ParseBulk(url.Values{}, body)
	require.Len(t, events, 2)
	assert.Equal(t, "1001", events[0].UserID)
	assert.Equal(t, "1002", events[1].UserID)
}

func TestParseBulk_TableParamWithBody(t *testing.T) {
	query := url.Values{"table": {"AttLog"}} // case-insensitive
	body := "1001\t2024-01-31 08:00:00\t1\t0\n1002\t2024-01-31 08:01:00\t1\t0\n"

	events := ParseBulk(query, body)
	require.Len(t, events, 2)
	assert.Equal(t, "1001", events[0].UserID)
	assert.Equal(t, "1002", events[1].UserID)
}

func TestParseBulk_TableParamWithAttlogValues(t *testing.T) {
	query := url.Values{
		"table":  {"ATTLOG"},
		"ATTLOG": {"1001,2024-01-31 08:00:00,1", "1002,2024-01-31 08:10:00,1\n1003,2024-01-31 08:11:00,1"},
	}

	events := ParseBulk(query, "")
	require.Len(t, events, 3)
	assert.Equal(t, "1001", events[0].UserID)
	assert.Equal(t, "1002", events[1].UserID)
	assert.Equal(t, "1003", events[2].UserID)
}

func TestParseBulk_MarkerBeatsTableRules(t *testing.T) {
	// Rule 1 is exclusive: when the marker is present, the table=ATTLOG
	// query values are not parsed a second time.
	query := url.Values{
		"table":  {"ATTLOG"},
		"ATTLOG": {"2001,2024-01-31 09:00:00,1"},
	}
	body := "ATTLOG=1001\t2024-01-31 08:00:00\t1"

	events := ParseBulk(query, body)
	require.Len(t, events, 1)
	assert.Equal(t, "1001", events[0].UserID)
}

func TestParseBulk_NoSignal(t *testing.T) {
	assert.Empty(t, ParseBulk(url.Values{}, "just some text"))
	assert.Empty(t, ParseBulk(url.Values{"table": {"OPERLOG"}}, "a\tb\n"))
	assert.Empty(t, ParseBulk(url.Values{"table": {"ATTLOG"}}, "single-line-no-tab"))
}

func TestParseBulk_SkipsInvalidLines(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty line", "ATTLOG="},
		{"only trailing commas", "ATTLOG=,,,,"},
		{"only whitespace", "ATTLOG=   \t  "},
		{"extended single field", "ATTLOG=1001\t"},
		{"short missing timestamp", "ATTLOG=1001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, ParseBulk(url.Values{}, tt.body))
		})
	}
}

func TestParseBulk_MalformedTimestampKept(t *testing.T) {
	body := "ATTLOG=1001\tnot-a-date\t1"

	events := ParseBulk(url.Values{}, body)
	require.Len(t, events, 1)
	assert.Equal(t, "not-a-date", events[0].Timestamp)
}

func TestParseBulk_DropsTrailingEmptyTabFields(t *testing.T) {
	// Interior empties survive as empty strings; trailing ones drop.
	body := "ATTLOG=1001\t2024-01-31 08:00:00\t\t4"

	events := ParseBulk(url.Values{}, body)
	require.Len(t, events, 1)
	assert.Equal(t, strptr(""), events[0].Ext.Verified)
	assert.Equal(t, strptr("4"), events[0].Ext.Status)
	assert.Nil(t, events[0].Ext.Punch)
}

func TestParseSingle(t *testing.T) {
	merged := url.Values{
		"PIN":    {"77"},
		"Time":   {"2024-02-01 09:15:00"},
		"Status": {"1"},
	}

	ev, ok := ParseSingle(merged)
	require.True(t, ok)
	assert.Equal(t, "77", ev.UserID)
	assert.Equal(t, "2024-02-01 09:15:00", ev.Timestamp)
	assert.Equal(t, strptr("1"), ev.Status)
	assert.Nil(t, ev.Punch, "rtlog carries no punch direction")
	assert.Nil(t, ev.Workcode)
	assert.True(t, ev.Ext.IsEmpty())
}

func TestParseSingle_CaseInsensitiveKeys(t *testing.T) {
	merged := url.Values{
		"pin":      {"42"},
		"TIME":     {"2024-02-01 10:00:00"},
		"workcode": {"9"},
	}

	ev, ok := ParseSingle(merged)
	require.True(t, ok)
	assert.Equal(t, "42", ev.UserID)
	assert.Equal(t, strptr("9"), ev.Workcode)
	assert.Nil(t, ev.Status)
}

func TestParseSingle_MissingMandatory(t *testing.T) {
	_, ok := ParseSingle(url.Values{"PIN": {"77"}})
	assert.False(t, ok, "missing Time must yield no event")

	_, ok = ParseSingle(url.Values{"Time": {"2024-02-01 09:15:00"}})
	assert.False(t, ok, "missing PIN must yield no event")

	_, ok = ParseSingle(url.Values{})
	assert.False(t, ok)
}

func TestMergeParams_QueryWins(t *testing.T) {
	query := url.Values{"PIN": {"1"}, "SN": {"DEV1"}}
	form := url.Values{"PIN": {"2"}, "Time": {"2024-02-01 09:15:00"}}

	merged := MergeParams(query, form)
	assert.Equal(t, "1", merged.Get("PIN"), "query value must not be overwritten")
	assert.Equal(t, "DEV1", merged.Get("SN"))
	assert.Equal(t, "2024-02-01 09:15:00", merged.Get("Time"))

	// The inputs stay untouched.
	assert.Equal(t, "2", form.Get("PIN"))
}

func TestBodyParams(t *testing.T) {
	values := BodyParams("PIN=77&Time=2024-02-01 09:15:00&Status=1")
	assert.Equal(t, "77", values.Get("PIN"))
	assert.Equal(t, "2024-02-01 09:15:00", values.Get("Time"))
	assert.Equal(t, "1", values.Get("Status"))

	// Partial decode failures keep whatever pairs did parse.
	values = BodyParams("PIN=77&bad=%zz")
	assert.Equal(t, "77", values.Get("PIN"))

	assert.Empty(t, BodyParams(""))
}

func TestDeviceSerial(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  *string
	}{
		{"SN", url.Values{"SN": {"A1"}}, strptr("A1")},
		{"lowercase sn", url.Values{"sn": {"a2"}}, strptr("a2")},
		{"SerialNumber", url.Values{"SerialNumber": {"A3"}}, strptr("A3")},
		{"first found wins", url.Values{"SN": {"A1"}, "sn": {"a2"}}, strptr("A1")},
		{"absent", url.Values{"other": {"x"}}, nil},
		{"empty value", url.Values{"SN": {""}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeviceSerial(tt.query))
		})
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"canonical", "2024-01-31 08:00:00", "2024-01-31 08:00:00"},
		{"iso T separator", "2024-01-31T08:00:00", "2024-01-31 08:00:00"},
		{"padded separator", "2024-01-31  08:00:00", "2024-01-31 08:00:00"},
		{"date only", "2024-01-31", "2024-01-31 00:00:00"},
		{"minutes only", "2024-01-31 08:00", "2024-01-31 08:00:00"},
		{"fractional seconds", "2024-01-31 08:00:00.123456", "2024-01-31 08:00:00"},
		{"unparseable kept", "31/01/2024 08:00", "31/01/2024 08:00"},
		{"unparseable keeps padding", "2024/01/31  08:00", "2024/01/31  08:00"},
		{"garbage kept", "soon", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeTimestamp(tt.in))
		})
	}
}
