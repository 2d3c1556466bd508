/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and carries a business code, a short client-facing message and, for HTTP responses, a status code.
The same value is turned into a protocol Error reply when a chat session rejects a request.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"

	"chatrelay/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the client-facing description, sent verbatim as the protocol Error reason.
	Message string

	// Status is the HTTP status code used when the error is returned by an HTTP endpoint.
	Status int
}

// Error implements the standard Go error interface.
func (e *CustomError) Error() string {
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// Is reports whether target is a CustomError with the same code, so callers can use
// errors.Is(err, errs.NewError(errs.ErrNameTaken)).
func (e *CustomError) Is(target error) bool {
	var other *CustomError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError constructs a *CustomError from a predefined error code.
// Unknown codes are logged and mapped to ErrUnknown.
func NewError(code int) *CustomError {
	templateErr, ok := errorMap[code]
	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)
		templateErr = errorMap[ErrUnknown]
	}

	customErr := templateErr
	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	return &customErr
}
