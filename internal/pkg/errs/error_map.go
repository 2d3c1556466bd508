/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct. The messages double
as the reasons carried by protocol Error replies, so they stay short and lower case.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "invalid request parameters", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "rate limit exceeded", Status: http.StatusTooManyRequests},

	// 2xxx: Chat Protocol and Session Errors
	ErrMalformedMessage:      {Code: ErrMalformedMessage, Message: "malformed message"},
	ErrUnexpectedMessage:     {Code: ErrUnexpectedMessage, Message: "unexpected message type"},
	ErrNameTaken:             {Code: ErrNameTaken, Message: "name taken"},
	ErrInvalidName:           {Code: ErrInvalidName, Message: "invalid name"},
	ErrNameRequired:          {Code: ErrNameRequired, Message: "must set name first"},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "message too long"},
	ErrMessageEmpty:          {Code: ErrMessageEmpty, Message: "empty message"},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "something went wrong", Status: http.StatusInternalServerError},
}
