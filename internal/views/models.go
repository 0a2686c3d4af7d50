package views

import (
	"fmt"
	"time"
)

// Ack error codes.
const (
	CodeInvalidPayload = "invalid_payload"
	CodeIdentity       = "identity_mismatch"
	CodeAuthentication = "authentication_failed"
	CodeOwnerMissing   = "owner_missing"
	CodeDuplicate      = "duplicate"
	CodeRateLimited    = "rate_limited"
	CodeNotFound       = "not_found"
	CodeSelfView       = "self_view"
	CodeInternal       = "internal_error"
)

type Intent string

const (
	IntentIntentional Intent = "intentional"
	IntentAutomated   Intent = "automated"
)

// Payload is what a player publishes on its view topic.
type Payload struct {
	PostID        int64  `json:"post_id"`
	Timestamp     string `json:"timestamp"`
	PlayerKey     string `json:"player_key,omitempty"`
	ViewIntent    Intent `json:"view_intent,omitempty"`
	LocalDatetime string `json:"local_datetime,omitempty"`
	LocalTimezone string `json:"local_timezone,omitempty"`
	RequestAck    bool   `json:"request_ack,omitempty"`
}

// Event is the normalised record handed to the view queue.
type Event struct {
	ID              string     `json:"id"`
	PlayerID        string     `json:"player_id"`
	ViewerAccountID string     `json:"viewer_account_id"`
	PostID          int64      `json:"post_id"`
	PostOwnerID     string     `json:"post_owner_id"`
	Intent          Intent     `json:"intent"`
	ViewedAt        *time.Time `json:"viewed_at,omitempty"`
	LocalDatetime   string     `json:"local_datetime,omitempty"`
	LocalTimezone   string     `json:"local_timezone,omitempty"`
	ReceivedAt      time.Time  `json:"received_at"`
}

type Ack struct {
	Success   bool   `json:"success"`
	PostID    int64  `json:"post_id,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Rejection is a view the pipeline refused. Code is one of the Code*
// constants.
type Rejection struct {
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("view rejected (%s): %s", r.Code, r.Message)
}

// Retryable reports whether the player may resend the same event and have it
// counted.
func (r *Rejection) Retryable() bool {
	return r.Code == CodeRateLimited || r.Code == CodeInternal
}

func reject(code, msg string) *Rejection {
	return &Rejection{Code: code, Message: msg}
}
