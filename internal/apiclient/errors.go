package apiclient

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrTimeout      = errors.New("request timed out")
	ErrNetwork      = errors.New("network error")
)

// APIError is the normalized form of every failed call. Status is zero when
// the request never produced an HTTP response.
type APIError struct {
	Status  int
	Message string
	Errors  map[string][]string
	kind    error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// Flatten joins the server's field-keyed validation messages into one string,
// falling back to Message when there are none.
func (e *APIError) Flatten() string {
	if len(e.Errors) == 0 {
		return e.Message
	}

	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		messages = append(messages, e.Errors[field]...)
	}
	return strings.Join(messages, " ")
}

// Message extracts a human readable message from any error returned by the client.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Flatten()
	}
	return err.Error()
}

type errorBody struct {
	Message string              `json:"message"`
	Error   string              `json:"error"`
	Errors  map[string][]string `json:"errors"`
}

func newHTTPError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var parsed errorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		apiErr.Message = parsed.Message
		if apiErr.Message == "" {
			apiErr.Message = parsed.Error
		}
		apiErr.Errors = parsed.Errors
	}
	if apiErr.Message == "" {
		apiErr.Message = fmt.Sprintf("Request failed with status %d (%s)", status, http.StatusText(status))
	}

	switch status {
	case http.StatusUnauthorized:
		apiErr.kind = ErrUnauthorized
	case http.StatusNotFound:
		apiErr.kind = ErrNotFound
	case http.StatusUnprocessableEntity:
		apiErr.kind = ErrValidation
	}

	return apiErr
}

func newTransportError(kind error, message string) *APIError {
	return &APIError{Message: message, kind: kind}
}
