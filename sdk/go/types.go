package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gradekit/core"
)

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

// APIError is a non-2xx response. It unwraps to the matching core error so
// callers can branch with errors.Is(err, core.ErrStudentNotFound) and friends.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "student_not_found":
		return core.ErrStudentNotFound
	case "not_found", "invalid_credentials":
		return core.ErrNotFound
	case "invalid_input", "invalid_body", "invalid_order", "invalid_threshold", "invalid_direction":
		return core.ErrValidation
	case "conflict":
		return core.ErrConflict
	case "unavailable":
		return core.ErrTransient
	}
	return nil
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

var (
	// ErrEmptyStudentID is returned when the student id is empty.
	ErrEmptyStudentID = errors.New("student id is required")
	// ErrEmptyUsername is returned when the username is empty.
	ErrEmptyUsername = errors.New("username is required")
)
