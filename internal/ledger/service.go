package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Service owns the owner-facing slot operations. The swap negotiator bypasses
// it and mutates slots through the store's transactional operations instead,
// which is the only path allowed to touch a swap_pending slot.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// NewSlot carries the caller-supplied fields for slot creation.
type NewSlot struct {
	StartTime time.Time
	EndTime   time.Time
	Category  string
	Location  *string
}

// CreateSlot records a new busy slot for ownerID.
func (s *Service) CreateSlot(ctx context.Context, ownerID uuid.UUID, in NewSlot) (*Slot, error) {
	if !in.EndTime.After(in.StartTime) {
		return nil, ErrInvalidInterval
	}

	if _, err := s.store.UserByID(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("load owner: %w", err)
	}

	slot := &Slot{
		ID:              uuid.New(),
		OwnerID:         ownerID,
		OriginalOwnerID: ownerID,
		StartTime:       in.StartTime,
		EndTime:         in.EndTime,
		Status:          SlotBusy,
		Category:        in.Category,
		Location:        in.Location,
	}

	if err := s.store.CreateSlot(ctx, slot); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.logger.Info("slot created",
		zap.String("slot_id", slot.ID.String()),
		zap.String("owner_id", ownerID.String()),
		zap.Time("start_time", slot.StartTime),
	)

	return slot, nil
}

// Slot returns a slot together with its swap history.
func (s *Service) Slot(ctx context.Context, id uuid.UUID) (*Slot, []HistoryEntry, error) {
	slot, err := s.store.SlotByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.store.HistoryForSlot(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load swap history: %w", err)
	}

	return slot, history, nil
}

// SetSlotStatus flips a slot between busy and swappable on behalf of its
// owner. A frozen slot cannot be touched, and a slot whose start has passed
// can never be offered as swappable.
func (s *Service) SetSlotStatus(ctx context.Context, slotID, ownerID uuid.UUID, to SlotStatus) (*Slot, error) {
	if to != SlotBusy && to != SlotSwappable {
		return nil, fmt.Errorf("%w: owners may only set busy or swappable", ErrInvalidTransition)
	}

	slot, err := s.store.SlotByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	if slot.Status == SlotSwapPending {
		return nil, ErrSlotFrozen
	}
	if to == SlotSwappable && !slot.StartsAfter(s.now()) {
		return nil, ErrPastSlot
	}

	if slot.Status == to {
		return slot, nil
	}

	updated, err := s.store.UpdateSlotStatus(ctx, slotID, slot.Status, to)
	if err != nil {
		return nil, err
	}

	s.logger.Info("slot status changed",
		zap.String("slot_id", slotID.String()),
		zap.String("from", string(slot.Status)),
		zap.String("to", string(to)),
	)

	return updated, nil
}

// ListSlots returns the owner's slots starting within [from, to).
func (s *Service) ListSlots(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	if to.IsZero() {
		to = s.now().AddDate(1, 0, 0)
	}
	return s.store.ListSlotsByOwner(ctx, ownerID, from, to)
}
