package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrNotOwner          = errors.New("slot does not belong to this user")
	ErrSlotFrozen        = errors.New("slot is frozen by a pending swap")
	ErrInvalidInterval   = errors.New("slot end must be after start")
	ErrPastSlot          = errors.New("slot start is not in the future")
	ErrInvalidTransition = errors.New("invalid slot status transition")
	ErrConflict          = errors.New("slot was modified concurrently, retry")
)

// Store contains the slot and user queries the ledger service needs.
type Store interface {
	CreateSlot(ctx context.Context, slot *Slot) error
	SlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// UpdateSlotStatus is a compare-and-swap: it only applies when the slot
	// is still in the from status, and reports ErrConflict otherwise.
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error)

	ListSlotsByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Slot, error)
	HistoryForSlot(ctx context.Context, slotID uuid.UUID) ([]HistoryEntry, error)

	UserByID(ctx context.Context, id uuid.UUID) (*User, error)
}
