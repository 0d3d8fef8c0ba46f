package httputil

import (
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// GetClientIP extracts the real client IP address from request
// headers, handling proxy scenarios:
//  1. X-Forwarded-For (first IP in the comma-separated list)
//  2. X-Real-IP
//  3. RemoteAddr
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}

// ParseIntParam parses an integer query parameter with a default
// value. Returns defaultVal if the parameter is empty or invalid.
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}

// ReadBody drains the request body as text. Read errors yield the
// bytes read so far: terminals abort uploads mid-stream and a partial
// payload is still worth capturing.
func ReadBody(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	defer r.Body.Close()
	data, _ := io.ReadAll(r.Body)
	return string(data)
}

// FormValues decodes a form-encoded body without consuming anything
// else. Returns empty values when the content type is not a form or
// the body does not decode; terminals send loosely formatted payloads
// and a decode failure is not an error.
func FormValues(contentType, body string) url.Values {
	if !strings.HasPrefix(contentType, "application/x-www-form-urlencoded") || body == "" {
		return url.Values{}
	}
	form, err := url.ParseQuery(body)
	if err != nil {
		return url.Values{}
	}
	return form
}
