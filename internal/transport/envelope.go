package transport

import (
	"encoding/json"
	"fmt"
)

// Envelope is the backend's response wrapper.
type Envelope struct {
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// OK reports whether the backend did not flag the call as failed. A missing
// success flag counts as success.
func (e *Envelope) OK() bool {
	return e.Success == nil || *e.Success
}

// Decode unmarshals the data payload into out.
func (e *Envelope) Decode(out any) error {
	if out == nil || len(e.Data) == 0 || string(e.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Page is the paginated list payload.
type Page[T any] struct {
	Records     []T `json:"records"`
	TotalRecord int `json:"total_record"`
	TotalPage   int `json:"total_page"`
}

// TokenPair is the login and refresh payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
