// Package server assembles the HTTP routing for punchd.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetworks/punchd/internal/handlers"
	"github.com/fleetworks/punchd/internal/middleware"
)

// NewRouter constructs the ServeMux with all routes registered.
// Device push routes answer GET and POST with the trailing slash
// optional; operator routes sit behind the API key middleware when a
// key is configured.
func NewRouter(push *handlers.PushHandler, diag *handlers.DiagHandler, export *handlers.ExportHandler, apiKey string) http.Handler {
	mux := http.NewServeMux()

	// Device push protocol. Never gated: firmware cannot authenticate.
	registerBoth(mux, handlers.PathCData, push.HandleCData)
	registerBoth(mux, handlers.PathGetRequest, push.HandleGetRequest)
	registerBoth(mux, handlers.PathRtlog, push.HandleRtlog)

	// Operator diagnostics and exports.
	gate := middleware.APIKey(apiKey)
	mux.Handle("/iclock/last", gate(http.HandlerFunc(diag.HandleLast)))
	mux.Handle("/adms/last", gate(http.HandlerFunc(diag.HandleLast)))
	mux.Handle("/adms/health", gate(http.HandlerFunc(diag.HandleHealth)))
	mux.Handle("/adms/export.json", gate(http.HandlerFunc(export.HandleJSON)))
	mux.Handle("/adms/export.csv", gate(http.HandlerFunc(export.HandleCSV)))

	// Infra endpoints.
	mux.HandleFunc("/healthz", diag.HandleLiveness)
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

// registerBoth registers a push handler with and without the trailing
// slash. The bare registration is required because a "/path/" pattern
// alone would redirect "/path", and terminals do not follow redirects.
func registerBoth(mux *http.ServeMux, path string, fn http.HandlerFunc) {
	mux.HandleFunc(path, fn)
	mux.HandleFunc(path+"/", fn)
}
