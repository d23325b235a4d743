package veeamapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrorResponse is returned for any non-2xx API response.
type ErrorResponse struct {
	StatusCode int
	Message    string
}

func (e *ErrorResponse) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func checkResponse(resp *http.Response) error {
	if c := resp.StatusCode; http.StatusOK <= c && c < http.StatusMultipleChoices {
		return nil
	}
	buf, _ := io.ReadAll(resp.Body)
	return &ErrorResponse{StatusCode: resp.StatusCode, Message: serverMessage(buf)}
}

// serverMessage extracts the "message" field of a JSON error body, falling
// back to the raw body.
func serverMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}
