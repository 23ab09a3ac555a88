package swap

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/shiftmarket/slotswap/internal/ledger"
)

// Tx gives one negotiator transition an exclusive, atomic view of the
// request and the two slots it touches. Slot mutations go through the slot
// ledger's operations so the swap_pending freeze is never bypassed by a
// direct field write.
type Tx interface {
	SlotForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Slot, error)
	SetSlotStatus(ctx context.Context, id uuid.UUID, from, to ledger.SlotStatus) error
	ExchangeSlotOwners(ctx context.Context, slotAID, slotBID, requestID uuid.UUID) error

	RequestForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)

	// PendingRequestForPair reports an existing pending request over the
	// unordered pair, or ErrRequestNotFound when there is none.
	PendingRequestForPair(ctx context.Context, slotA, slotB uuid.UUID) (*Request, error)

	InsertRequest(ctx context.Context, req *Request) error

	// ResolveRequest moves a pending request to a terminal status and writes
	// the response fields. The update is a compare-and-swap from pending.
	ResolveRequest(ctx context.Context, id uuid.UUID, to Status, responseMessage *string, respondedAt time.Time) (*Request, error)
}

// ListFilter narrows the list queries.
type ListFilter struct {
	Status *Status

	// ActiveOnly keeps pending requests that have not yet expired as of Now.
	ActiveOnly bool
	Now        time.Time
}

// Repository contains the negotiator's storage interactions. All writes go
// through InTx; the reads run outside any transaction.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	RequestByID(ctx context.Context, id uuid.UUID) (*Request, error)
	ListByCounterpart(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Request, error)
	ListByRequester(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Request, error)

	// AcceptedInvolving lists accepted requests where the user was either
	// party, most recently resolved first.
	AcceptedInvolving(ctx context.Context, userID uuid.UUID) ([]Request, error)

	// ExpiredPending lists requests past their expiry that are still
	// pending. Used only by the opt-in sweeper.
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]Request, error)
}
