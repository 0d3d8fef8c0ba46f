package logging

import "log/slog"

// Common field names for consistent logging across the service.
const (
	FieldService    = "service"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldError      = "error"
	FieldDeviceSN   = "device_sn"
	FieldUserID     = "user_id"
	FieldCaptureID  = "capture_id"
	FieldEventCount = "event_count"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// DeviceSN returns a slog attribute for a terminal serial number.
func DeviceSN(sn string) slog.Attr {
	return slog.String(FieldDeviceSN, sn)
}

// UserID returns a slog attribute for a device-local user ID (PIN).
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// CaptureID returns a slog attribute for a raw capture ID.
func CaptureID(id string) slog.Attr {
	return slog.String(FieldCaptureID, id)
}

// EventCount returns a slog attribute for a number of journaled events.
func EventCount(n int) slog.Attr {
	return slog.Int(FieldEventCount, n)
}
