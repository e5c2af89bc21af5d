// Package apierrors implements the five-kind error taxonomy shared by
// every command response on the wire protocol and by the HTTP facade.
package apierrors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorType is one of the five wire-level error kinds from the
// orchestrator's command protocol.
type ErrorType string

const (
	InvalidPayload     ErrorType = "INVALID_PAYLOAD"
	NotFound           ErrorType = "NOT_FOUND"
	AuthorisationError ErrorType = "AUTHORISATION_ERROR"
	OperationError     ErrorType = "OPERATION_ERROR"
	InternalError      ErrorType = "INTERNAL_ERROR"
)

// APIError is the orchestrator-wide error value: a stable, user-safe
// message plus the error kind and (server-side only) the causing error.
type APIError struct {
	Type   ErrorType `json:"error_type"`
	Msg    string    `json:"public_error_message"`
	Status int       `json:"-"`
	Err    error     `json:"-"`
}

func (e APIError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e APIError) Unwrap() error { return e.Err }

var statusByType = map[ErrorType]int{
	InvalidPayload:     http.StatusBadRequest,
	NotFound:           http.StatusNotFound,
	AuthorisationError: http.StatusUnauthorized,
	OperationError:     http.StatusConflict,
	InternalError:      http.StatusInternalServerError,
}

// StatusFor returns the HTTP status code the facade should use for a
// wire-level error kind, falling back to 500 for unknown types.
func StatusFor(t ErrorType) int {
	if status, ok := statusByType[t]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func New(t ErrorType, msg string, cause error) APIError {
	status, ok := statusByType[t]
	if !ok {
		status = http.StatusInternalServerError
	}
	return APIError{Type: t, Msg: msg, Status: status, Err: cause}
}

func NewInvalidPayload(msg string, cause error) APIError {
	return New(InvalidPayload, msg, cause)
}

func NewNotFound(msg string, cause error) APIError {
	return New(NotFound, msg, cause)
}

func NewAuthorisationError(msg string, cause error) APIError {
	return New(AuthorisationError, msg, cause)
}

func NewOperationError(msg string, cause error) APIError {
	return New(OperationError, msg, cause)
}

func NewInternalError(msg string, cause error) APIError {
	return New(InternalError, msg, cause)
}

// TypeOf extracts the ErrorType of err if it is (or wraps) an APIError,
// defaulting to InternalError otherwise.
func TypeOf(err error) ErrorType {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Type
	}
	return InternalError
}

// WireError is the {error_type, public_error_message} shape carried in
// a response envelope's `error` field.
type WireError struct {
	ErrorType          ErrorType `json:"error_type"`
	PublicErrorMessage string    `json:"public_error_message"`
}

func (e APIError) ToWireError() WireError {
	return WireError{ErrorType: e.Type, PublicErrorMessage: e.Msg}
}

// WriteHTTP projects an APIError onto an http.ResponseWriter, carrying
// the typed error kind alongside the public message.
func WriteHTTP(w http.ResponseWriter, e APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e.ToWireError())
}
