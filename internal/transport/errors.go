package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
)

const (
	// MsgServer is shown for any 5xx response.
	MsgServer = "Something went wrong. Please try again later."
	// MsgNetwork is shown when the backend could not be reached.
	MsgNetwork = "Unable to reach the server. Please check your connection."
	// MsgSessionExpired is shown when the session could not be renewed.
	MsgSessionExpired = "Your session has expired. Please sign in again."
)

// ErrSessionExpired is returned when a request stays unauthorized after a
// refresh attempt, or the refresh itself fails.
var ErrSessionExpired = errors.New("session expired")

// Error is a failed backend call. Its Error() is the operator-facing text.
type Error struct {
	Status  int
	Message string
	// Fields holds per-field messages when the backend reported them.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Network reports whether the request never produced a response.
func (e *Error) Network() bool { return e.Status == 0 }

// UserMessage returns the toast text for any error returned by this package.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSessionExpired) {
		return MsgSessionExpired
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return MsgNetwork
	}
	return MsgServer
}

// statusError builds the error for a non-2xx response body.
func statusError(status int, body []byte) *Error {
	if status >= 500 {
		return &Error{Status: status, Message: MsgServer}
	}
	msg, fields := extractMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &Error{Status: status, Message: msg, Fields: fields}
}

// extractMessage finds the backend message in the shapes backends commonly
// use: {message}, {error: "..."}, {error: {message, details}}, {errors: ...}.
func extractMessage(body []byte) (string, map[string]string) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return strings.TrimSpace(string(body)), nil
	}

	fields := fieldErrors(raw["errors"])
	if errObj, ok := raw["error"].(map[string]any); ok {
		for k, v := range fieldErrors(errObj["details"]) {
			if fields == nil {
				fields = map[string]string{}
			}
			fields[k] = v
		}
	}

	if msg, ok := raw["message"].(string); ok && msg != "" {
		return msg, fields
	}
	switch e := raw["error"].(type) {
	case string:
		if e != "" {
			return e, fields
		}
	case map[string]any:
		if msg, ok := e["message"].(string); ok && msg != "" {
			return msg, fields
		}
	}
	if msg := firstError(raw["errors"]); msg != "" {
		return msg, fields
	}
	return "", fields
}

func fieldErrors(v any) map[string]string {
	out := map[string]string{}
	switch errs := v.(type) {
	case map[string]any:
		for k, msg := range errs {
			switch m := msg.(type) {
			case string:
				out[k] = m
			case []any:
				if len(m) > 0 {
					if s, ok := m[0].(string); ok {
						out[k] = s
					}
				}
			}
		}
	case []any:
		for _, item := range errs {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			field, _ := obj["field"].(string)
			msg, _ := obj["message"].(string)
			if field != "" && msg != "" {
				if _, seen := out[field]; !seen {
					out[field] = msg
				}
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func firstError(v any) string {
	switch errs := v.(type) {
	case []any:
		for _, item := range errs {
			switch e := item.(type) {
			case string:
				return e
			case map[string]any:
				if msg, ok := e["message"].(string); ok {
					return msg
				}
			}
		}
	case map[string]any:
		fields := fieldErrors(errs)
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) > 0 {
			return fields[keys[0]]
		}
	}
	return ""
}
