package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err, session)
//  3. Error is mapped to a status and a user message
//  4. Technical error + context is logged with request ID for correlation
//  5. User message is rendered as JSON, with the session snapshot when
//     the error came from a workflow step

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/bizimport/internal/importer"
	"github.com/JonMunkholm/bizimport/internal/logging"
	"github.com/JonMunkholm/bizimport/internal/preset"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Action  string           `json:"action,omitempty"`
	Code    string           `json:"code"`
	Session *SessionResponse `json:"session,omitempty"`
}

type webErrorCode struct {
	target error
	status int
	msg    importer.UserMessage
}

// webErrorCodes covers the errors raised by the web layer itself.
var webErrorCodes = []webErrorCode{
	{ErrSessionNotFound, http.StatusNotFound, importer.UserMessage{
		Message: "Import session not found",
		Action:  "Start a new import",
		Code:    "SES001",
	}},
	{ErrTooManySessions, http.StatusServiceUnavailable, importer.UserMessage{
		Message: "Too many imports are open",
		Action:  "Please try again in a few minutes",
		Code:    "SES002",
	}},
	{ErrBusy, http.StatusServiceUnavailable, importer.UserMessage{
		Message: "The server is busy with other imports",
		Action:  "Please try again in a few moments",
		Code:    "SES003",
	}},
	{preset.ErrInvalidPreset, http.StatusUnprocessableEntity, importer.UserMessage{
		Message: "The import preset is invalid",
		Action:  "Check the preset entity, field names and options",
		Code:    "PRE001",
	}},
}

// mapError returns the HTTP status and user message for err.
func mapError(err error) (int, importer.UserMessage) {
	for _, ec := range webErrorCodes {
		if errors.Is(err, ec.target) {
			return ec.status, ec.msg
		}
	}

	msg := importer.MapError(err)
	switch {
	case errors.Is(err, importer.ErrUnknownEntity):
		return http.StatusNotFound, msg
	case errors.Is(err, importer.ErrCommitFailed):
		return http.StatusBadGateway, msg
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msg
	case importer.IsUserFacing(err):
		return http.StatusUnprocessableEntity, msg
	default:
		return http.StatusInternalServerError, msg
	}
}

// respondError handles error responses with user-friendly messages.
// It logs the technical error server-side and returns the mapped message.
// session is attached when the error came from a workflow step.
func respondError(w http.ResponseWriter, r *http.Request, err error, session *importer.Session) {
	status, userMsg := mapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}

	if !wantsJSON(r) {
		http.Error(w, userMsg.Message+" ("+userMsg.Code+")", status)
		return
	}

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	}
	if session != nil {
		snapshot := newSessionResponse(*session)
		resp.Session = &snapshot
	}
	writeJSON(w, r, status, resp)
}

// writeError writes a JSON error response for malformed requests that
// never reached the importer.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	logging.FromContext(r.Context()).Info("bad request",
		"path", r.URL.Path,
		"status", status,
		"error", message,
	)
	writeJSON(w, r, status, ErrorResponse{
		Error:   message,
		Message: message,
		Code:    "REQ001",
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	contentType := r.Header.Get("Content-Type")

	if strings.Contains(accept, "application/json") {
		return true
	}
	if strings.Contains(contentType, "application/json") {
		return true
	}

	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
