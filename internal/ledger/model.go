package ledger

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotBusy        SlotStatus = "busy"
	SlotSwappable   SlotStatus = "swappable"
	SlotSwapPending SlotStatus = "swap_pending"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is one calendar interval owned by a user. OriginalOwnerID is set at
// creation and never changes; OwnerID changes when a swap is accepted.
type Slot struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	OriginalOwnerID uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	Status          SlotStatus
	Category        string
	Location        *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StartsAfter reports whether the slot has not yet begun at t.
func (s *Slot) StartsAfter(t time.Time) bool {
	return s.StartTime.After(t)
}

// ReleaseStatus is the status a frozen slot returns to when its pending swap
// is rejected, cancelled, or swept. A slot whose start has passed can never
// be swappable again, so it falls back to busy.
func (s *Slot) ReleaseStatus(now time.Time) SlotStatus {
	if s.StartsAfter(now) {
		return SlotSwappable
	}
	return SlotBusy
}

// HistoryEntry is one append-only record of an accepted swap touching a slot.
type HistoryEntry struct {
	ID            int64
	SlotID        uuid.UUID
	CounterpartID uuid.UUID
	RequestID     uuid.UUID
	SwappedAt     time.Time
}
