/*
Package resp provides helper functions for constructing and sending standardized HTTP JSON responses.

Every HTTP endpoint of the relay (health, user listing, rejected WebSocket upgrades) answers with
the same envelope: a business code, a message, and optional data.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
)

// JSONResponse defines the standardized JSON response structure.
type JSONResponse struct {
	// Code is the business status code (0 for success, see errs for the rest).
	Code int `json:"code"`

	// Message is the client-friendly status description or error message.
	Message string `json:"message"`

	// Data is the optional response payload.
	Data any `json:"data,omitempty"`
}

// RespondJSON sets the Content-Type and writes payload with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(err, "Error encoding JSON response", "http_status", httpStatus)
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpStatus)

	if _, err := w.Write(response); err != nil {
		logx.Warn("Failed to write JSON response", "error", err.Error(), "request_uri", r.RequestURI)
	}
}

// RespondSuccess sends a 200 OK response wrapping data.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// RespondError sends the error's code and message with its HTTP status.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
	})
}
