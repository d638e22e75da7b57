package fetcher

import (
	"fmt"
)

// CredentialsError is returned when a call failed because access credentials
// were missing, expired or rejected
type CredentialsError struct {
	Operation string
	Err       error
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("%s: credentials failure: %v", e.Operation, e.Err)
}

func (e *CredentialsError) Unwrap() error {
	return e.Err
}

// APIError is a structured failure reported by the remote service
type APIError struct {
	Operation  string
	Code       string // Service error code, e.g. ThrottlingException
	Message    string // Raw message body
	StatusCode int    // HTTP status, 0 if unknown
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: api error: %s", e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: api error %s: %s", e.Operation, e.Code, e.Message)
}
