package handlers_test

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetworks/punchd/internal/capture"
	"github.com/fleetworks/punchd/internal/handlers"
	"github.com/fleetworks/punchd/internal/journal"
	"github.com/fleetworks/punchd/internal/models"
	"github.com/fleetworks/punchd/internal/server"
	"github.com/fleetworks/punchd/internal/service"
)

type env struct {
	ts     *httptest.Server
	store  *capture.Store
	reader *journal.Reader
}

func newEnv(t *testing.T, apiKey string) *env {
	t.Helper()
	dir := t.TempDir()

	store, err := capture.NewStore(filepath.Join(dir, "raw"))
	require.NoError(t, err)

	cfg := journal.Config{
		RecordPath:  filepath.Join(dir, "attlog.ndjson"),
		TabularPath: filepath.Join(dir, "attlog.csv"),
	}
	j, err := journal.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	coordinator := service.New(store, j, nil, nil)
	reader := journal.NewReader(cfg)

	router := server.NewRouter(
		handlers.NewPushHandler(coordinator, nil, nil),
		handlers.NewDiagHandler(store, reader, nil),
		handlers.NewExportHandler(reader, nil),
		apiKey,
	)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &env{ts: ts, store: store, reader: reader}
}

func (e *env) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	return e.postRaw(t, path, "application/x-www-form-urlencoded", form.Encode())
}

// postRaw sends the body verbatim. Terminals embed literal tabs after
// the ATTLOG= marker instead of form-escaping them, so marker pushes
// must not go through url.Values.Encode.
func (e *env) postRaw(t *testing.T, path, contentType, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(e.ts.URL+path, contentType, strings.NewReader(body))
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(data)
}

func (e *env) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, string(body)
}

func TestCDataMarkerPush(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.postRaw(t, "/iclock/cdata?SN=DEV1", "text/plain",
		"ATTLOG=1001\t2024-01-31 08:00:00\t1\t0\t0")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body, "firmware matches the body byte for byte")

	events, err := e.reader.Query(journal.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "1001", events[0].UserID)
	require.NotNil(t, events[0].SN)
	assert.Equal(t, "DEV1", *events[0].SN)
}

func TestCDataRawBodyPush(t *testing.T) {
	e := newEnv(t, "")

	// table=ATTLOG with a tab-separated raw body, the way most firmware
	// actually pushes. Not form-encoded.
	resp, err := http.Post(
		e.ts.URL+"/iclock/cdata?SN=DEV2&table=ATTLOG",
		"text/plain",
		strings.NewReader("1001\t2024-01-31 08:00:00\t1\t0\n1002\t2024-01-31 08:01:00\t1\t0\n"),
	)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	events, err := e.reader.Query(journal.Filter{}, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCDataTrailingSlash(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.get(t, "/iclock/cdata/?SN=DEV1&table=ATTLOG")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestGetRequestCapturesWithoutParsing(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.get(t, "/iclock/getrequest?SN=DEV1&INFO=ver+6.60")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	count, err := e.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	events, err := e.reader.Query(journal.Filter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRtlogQueryAndForm(t *testing.T) {
	e := newEnv(t, "")

	// Query parameters only.
	resp, body := e.get(t, "/iclock/rtlog?SN=DEV1&PIN=42&Time=2024-02-01+09:15:00&Status=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	// Form body, query SN winning the merge.
	resp, body = e.post(t, "/iclock/rtlog?SN=DEV1",
		url.Values{"PIN": {"43"}, "Time": {"2024-02-01 09:16:00"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	events, err := e.reader.Query(journal.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "42", events[0].UserID)
	assert.Equal(t, "43", events[1].UserID)
	assert.Nil(t, events[1].Punch)
}

func TestRtlogPlainTextBody(t *testing.T) {
	e := newEnv(t, "")

	// Some terminals send the parameter string as the body without the
	// form content type. The punch must still be journaled.
	resp, body := e.postRaw(t, "/iclock/rtlog?SN=DEV1", "text/plain",
		"PIN=77&Time=2024-02-01 09:15:00&Status=1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	events, err := e.reader.Query(journal.Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "77", events[0].UserID)
	assert.Equal(t, "2024-02-01 09:15:00", events[0].Timestamp)
}

func TestRtlogUnparseableStillOK(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.get(t, "/iclock/rtlog?SN=DEV1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)

	count, err := e.store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLastCapture(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.get(t, "/adms/last")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"msg":"no captures yet"}`, body)

	e.get(t, "/iclock/getrequest?SN=DEV7")

	_, body = e.get(t, "/adms/last")
	var rc models.RawCapture
	require.NoError(t, json.Unmarshal([]byte(body), &rc))
	assert.Equal(t, "/iclock/getrequest", rc.Path)
	assert.Equal(t, []string{"DEV7"}, rc.Query["SN"])

	// Same handler under the device prefix.
	_, body2 := e.get(t, "/iclock/last")
	assert.Equal(t, body, body2)
}

func TestHealthCounts(t *testing.T) {
	e := newEnv(t, "")

	e.postRaw(t, "/iclock/cdata", "text/plain", "ATTLOG=1001\t2024-01-31 08:00:00\t1")
	e.get(t, "/iclock/getrequest?SN=DEV1")

	_, body := e.get(t, "/adms/health")
	var health struct {
		OK     bool `json:"ok"`
		Raw    int  `json:"raw"`
		Parsed int  `json:"parsed"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &health))
	assert.True(t, health.OK)
	assert.Equal(t, 2, health.Raw)
	assert.Equal(t, 1, health.Parsed)
}

func TestExportJSON(t *testing.T) {
	e := newEnv(t, "")

	e.postRaw(t, "/iclock/cdata?SN=DEV1", "text/plain", "ATTLOG=1001\t2024-01-31 08:00:00\t1\t0\t0")
	e.postRaw(t, "/iclock/cdata?SN=DEV2", "text/plain", "ATTLOG=1002\t2024-01-31 09:00:00\t1\t0\t0")

	_, body := e.get(t, "/adms/export.json?sn=DEV2")
	var out struct {
		OK    bool               `json:"ok"`
		Count int                `json:"count"`
		Items []models.FlatEvent `json:"items"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	assert.True(t, out.OK)
	assert.Equal(t, 1, out.Count)
	require.Len(t, out.Items, 1)
	assert.Equal(t, "1002", out.Items[0].UserID)

	// Empty result still carries an array, never null.
	_, body = e.get(t, "/adms/export.json?sn=NOPE")
	assert.Contains(t, body, `"items":[]`)
}

func TestExportCSV(t *testing.T) {
	e := newEnv(t, "")

	e.postRaw(t, "/iclock/cdata?SN=DEV1", "text/plain", "ATTLOG=1001\t2024-01-31 08:00:00\t1\t0\t0")

	resp, body := e.get(t, "/adms/export.csv")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(strings.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, models.FlatColumns, rows[0])
	assert.Equal(t, "1001", rows[1][2])
}

func TestAPIKeyGatesOperatorRoutes(t *testing.T) {
	e := newEnv(t, "sekrit")

	// Operator routes reject a missing or wrong key.
	for _, path := range []string{"/adms/last", "/adms/health", "/adms/export.json", "/adms/export.csv", "/iclock/last"} {
		resp, _ := e.get(t, path)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}

	req, err := http.NewRequest(http.MethodGet, e.ts.URL+"/adms/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The query form works too.
	resp2, _ := e.get(t, "/adms/health?api_key=sekrit")
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	// Device push endpoints are never gated.
	resp3, body := e.get(t, "/iclock/getrequest?SN=DEV1")
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestCaptureFailureYieldsServerError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions do not bind root")
	}

	dir := t.TempDir()
	rawDir := filepath.Join(dir, "raw")
	store, err := capture.NewStore(rawDir)
	require.NoError(t, err)
	cfg := journal.Config{
		RecordPath:  filepath.Join(dir, "attlog.ndjson"),
		TabularPath: filepath.Join(dir, "attlog.csv"),
	}
	j, err := journal.Open(cfg)
	require.NoError(t, err)
	defer j.Close()

	coordinator := service.New(store, j, nil, nil)
	reader := journal.NewReader(cfg)
	router := server.NewRouter(
		handlers.NewPushHandler(coordinator, nil, nil),
		handlers.NewDiagHandler(store, reader, nil),
		handlers.NewExportHandler(reader, nil),
		"",
	)
	ts := httptest.NewServer(router)
	defer ts.Close()

	// Make the capture write fail.
	require.NoError(t, os.Chmod(rawDir, 0o555))
	t.Cleanup(func() { os.Chmod(rawDir, 0o755) })

	resp, err := http.Post(ts.URL+"/iclock/cdata?SN=DEV1", "text/plain",
		strings.NewReader("ATTLOG=1001\t2024-01-31 08:00:00\t1\t0\t0"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "ERROR", string(body))

	// Nothing reached either sink.
	events, err := reader.Query(journal.Filter{}, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(context.Context, string) (bool, error) { return false, nil }
func (denyAllLimiter) Close() error                                { return nil }

func TestRateLimitDenialIsAdvisory(t *testing.T) {
	dir := t.TempDir()
	store, err := capture.NewStore(filepath.Join(dir, "raw"))
	require.NoError(t, err)
	cfg := journal.Config{
		RecordPath:  filepath.Join(dir, "attlog.ndjson"),
		TabularPath: filepath.Join(dir, "attlog.csv"),
	}
	j, err := journal.Open(cfg)
	require.NoError(t, err)
	defer j.Close()

	coordinator := service.New(store, j, nil, nil)
	reader := journal.NewReader(cfg)
	router := server.NewRouter(
		handlers.NewPushHandler(coordinator, denyAllLimiter{}, nil),
		handlers.NewDiagHandler(store, reader, nil),
		handlers.NewExportHandler(reader, nil),
		"",
	)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/iclock/cdata?SN=DEV1", "text/plain",
		strings.NewReader("ATTLOG=1001\t2024-01-31 08:00:00\t1\t0\t0"))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	// An over-limit device is counted, not refused.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	events, err := reader.Query(journal.Filter{}, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLivenessAndRequestID(t *testing.T) {
	e := newEnv(t, "")

	resp, body := e.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy"}`, body)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
