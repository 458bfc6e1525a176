package client

import (
	"encoding/json"
	"fmt"
)

// APIError represents an error returned by the API
type APIError struct {
	StatusCode int             `json:"-"`
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error [%s]: %s (status: %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("API error: %s (status: %d)", e.Message, e.StatusCode)
}

// IsNotFound returns true if the error is a 404 not found error
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401 unauthorized error
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsValidationError returns true if the error is a 400 validation error
func (e *APIError) IsValidationError() bool {
	return e.StatusCode == 400
}

// IsRateLimited returns true if the server throttled the request
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsDetectionFailed returns true if a detection run produced an error envelope
func (e *APIError) IsDetectionFailed() bool {
	return e.Code == "DETECTION_FAILED"
}

// DetectionResult decodes the failed run attached to a DETECTION_FAILED error
func (e *APIError) DetectionResult() (*DetectionResult, bool) {
	if !e.IsDetectionFailed() || len(e.Details) == 0 {
		return nil, false
	}
	var res DetectionResult
	if err := json.Unmarshal(e.Details, &res); err != nil {
		return nil, false
	}
	return &res, true
}

// IsServerError returns true if the error is a 5xx server error
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500
}
