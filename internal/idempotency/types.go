package idempotency

import "time"

// Status values for ledger entries.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is the shape persisted in the idempotency DynamoDB table. Once a
// record reaches DONE it is immutable: the stored response is what every
// replay of the same logical request receives.
type Record struct {
	LedgerKey      string    `dynamodbav:"idempotency_key"` // PK: {tenant}#{method}#{route}#{client key}
	RequestHash    string    `dynamodbav:"request_hash"`
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`
	ResponseStatus int       `dynamodbav:"response_status,omitempty"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Outcome states returned by Reserve.
type OutcomeState int

const (
	// Fresh: the reservation is ours; execute the operation with a
	// CommitItem riding in its write transaction.
	Fresh OutcomeState = iota
	// Replay: an identical request already completed; return the stored response verbatim.
	Replay
	// Pending: an identical request is still executing elsewhere.
	Pending
)

// Outcome is the result of a Reserve call.
type Outcome struct {
	State          OutcomeState
	ResponseStatus int
	ResponseBody   string
	OrderID        string
}
