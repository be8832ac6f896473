package idempotency

import "time"

// A key moves IN_PROGRESS -> DONE, or IN_PROGRESS -> FAILED -> IN_PROGRESS
// when a failed checkout is retried under the same key.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record guards one checkout request in the idempotency table.
type Record struct {
	Key           string    `dynamodbav:"idempotency_key"`
	Status        string    `dynamodbav:"status"`
	SessionID     string    `dynamodbav:"session_id,omitempty"`
	TransactionID string    `dynamodbav:"transaction_id,omitempty"`
	ReplayBody    string    `dynamodbav:"response_body,omitempty"`
	ReplayStatus  int       `dynamodbav:"response_status,omitempty"`
	Note          string    `dynamodbav:"note,omitempty"`
	CreatedAt     time.Time `dynamodbav:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at"`
	ExpiresAt     int64     `dynamodbav:"expires_at"`
}

// Response is the reply kept for a completed checkout.
type Response struct {
	Status int
	Body   []byte
}

// Replay returns the kept response. ok is false when none was stored.
func (r Record) Replay() (resp Response, ok bool) {
	if r.ReplayBody == "" || r.ReplayStatus == 0 {
		return Response{}, false
	}
	return Response{Status: r.ReplayStatus, Body: []byte(r.ReplayBody)}, true
}

// DynamoDB deletes TTL'd items lazily, so expiry is also checked on read.
func (r Record) expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() >= r.ExpiresAt
}
