// Package errors defines the error envelope every SolveMate API endpoint
// returns on failure, plus abort helpers for the common statuses. Handlers
// put machine-readable context (validation reason, session state, device
// kind) in Details; Error stays a human-readable sentence.
package errors

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}
