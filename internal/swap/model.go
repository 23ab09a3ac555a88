package swap

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// ParseStatus validates a caller-supplied status filter.
func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusRejected, StatusCancelled:
		return Status(s), true
	}
	return "", false
}

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Request is a proposal to exchange two slots between their owners.
// CounterpartID is fixed at creation to the counterpart slot's owner;
// the response fields are written exactly once, at resolution.
type Request struct {
	ID                uuid.UUID
	RequesterSlotID   uuid.UUID
	CounterpartSlotID uuid.UUID
	RequesterID       uuid.UUID
	CounterpartID     uuid.UUID
	Status            Status
	Message           *string
	ResponseMessage   *string
	CreatedAt         time.Time
	RespondedAt       *time.Time
	ExpiresAt         time.Time
}

// Expired reports whether a still-pending request is past its response
// window. An expired request stays pending; it just refuses every response.
func (r *Request) Expired(now time.Time) bool {
	return r.Status == StatusPending && now.After(r.ExpiresAt)
}

// Terminal reports whether the request can never transition again.
func (r *Request) Terminal() bool {
	return r.Status != StatusPending
}

// NormalizePair orders a slot pair so that (A,B) and (B,A) collide on the
// same key, mirroring the partial unique index in storage.
func NormalizePair(a, b uuid.UUID) (lo, hi uuid.UUID) {
	if b.String() < a.String() {
		return b, a
	}
	return a, b
}
