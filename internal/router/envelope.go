package router

import (
	"fmt"
	"math"
	"time"
)

// Machine-readable error codes carried in error responses.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeUnknownRequestType = "unknown_request_type"
	CodeAuthentication     = "authentication_failed"
	CodeNotFound           = "not_found"
	CodeRateLimited        = "rate_limited"
	CodeDuplicate          = "duplicate"
	CodeReactionLimit      = "reaction_limit_exceeded"
	CodeInternal           = "internal_error"
)

// Request is the part of an inbound payload common to every request type.
type Request struct {
	RequestID   string `json:"request_id"`
	RequestType string `json:"request_type"`
	PlayerKey   string `json:"player_key,omitempty"`
}

// Fields is a success payload; the router adds request_id and success.
type Fields map[string]any

type errorResponse struct {
	RequestID  string `json:"request_id"`
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	ErrorCode  string `json:"error_code"`
	RetryAfter *int   `json:"retry_after,omitempty"`
}

// Error is a handler failure that is reported to the player.
type Error struct {
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func invalid(format string, args ...any) *Error {
	return newError(CodeInvalidRequest, fmt.Sprintf(format, args...))
}

func (e *Error) response(requestID string) errorResponse {
	resp := errorResponse{
		RequestID: requestID,
		Error:     e.Message,
		ErrorCode: e.Code,
	}
	if e.RetryAfter > 0 {
		secs := int(math.Ceil(e.RetryAfter.Seconds()))
		resp.RetryAfter = &secs
	}
	return resp
}

func successResponse(requestID string, fields Fields) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["request_id"] = requestID
	out["success"] = true
	return out
}
