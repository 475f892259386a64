package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorPayload is the JSON body the backend returns on failure. Errors is
// either a list of strings or an object keyed by field.
type ErrorPayload struct {
	Message string          `json:"message,omitempty"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// Details flattens Errors into readable lines.
func (p *ErrorPayload) Details() []string {
	if p == nil || len(p.Errors) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(p.Errors, &list); err == nil {
		return list
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(p.Errors, &fields); err == nil {
		out := make([]string, 0, len(fields))
		for field, val := range fields {
			out = append(out, fmt.Sprintf("%s %v", field, val))
		}
		return out
	}
	return nil
}

// HTTPError is returned for any non-2xx backend response.
type HTTPError struct {
	Status  int
	Message string
	Payload *ErrorPayload
}

func (e *HTTPError) Error() string {
	return e.Message
}

func newHTTPError(status int, statusText string, payload *ErrorPayload) *HTTPError {
	message := statusText
	if payload != nil && payload.Message != "" {
		message = payload.Message
	}
	if message == "" {
		message = "Unexpected API error"
	}
	return &HTTPError{Status: status, Message: message, Payload: payload}
}

// statusText mirrors what browsers expose as Response.statusText.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}

// ErrorMessage normalises any error into the single string shown to users.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message
	}
	return err.Error()
}
