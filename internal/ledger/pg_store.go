package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/shiftmarket/slotswap/internal/db"
)

type PgStore struct {
	q db.Querier
}

// NewPgStore builds a store over a pool or, inside a negotiator transaction,
// over the transaction itself.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{q: q}
}

const slotColumns = `id, owner_id, original_owner_id, start_time, end_time, status, category, location, created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var location *string

	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.OriginalOwnerID,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.Category,
		&location,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.Location = location
	return &s, nil
}

func (r *PgStore) CreateSlot(ctx context.Context, slot *Slot) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO slots (id, owner_id, original_owner_id, start_time, end_time, status, category, location, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, slot.ID, slot.OwnerID, slot.OriginalOwnerID, slot.StartTime, slot.EndTime, slot.Status, slot.Category, slot.Location)

	if err := row.Scan(&slot.CreatedAt, &slot.UpdatedAt); err != nil {
		return fmt.Errorf("insert slot: %w", err)
	}
	return nil
}

func (r *PgStore) SlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

// SlotForUpdate locks the slot row for the rest of the enclosing transaction.
// Only meaningful when the store runs over a pgx.Tx.
func (r *PgStore) SlotForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (r *PgStore) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+slotColumns+`
	`, id, to, from)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// Distinguish a missing slot from one that drifted out of the
			// expected status between read and write.
			if _, getErr := r.SlotByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrConflict
		}
		return nil, err
	}

	return slot, nil
}

// ExchangeOwners swaps ownership of the two slots, marks both busy, and
// appends one history entry per slot recording the new counterpart and the
// triggering request. It must run inside the negotiator's transaction so it
// can never partially apply.
func (r *PgStore) ExchangeOwners(ctx context.Context, slotAID, slotBID, requestID uuid.UUID) error {
	a, err := r.SlotByID(ctx, slotAID)
	if err != nil {
		return err
	}
	b, err := r.SlotByID(ctx, slotBID)
	if err != nil {
		return err
	}

	tag, err := r.q.Exec(ctx, `
		UPDATE slots AS s
		SET owner_id = v.new_owner,
		    status = 'busy',
		    updated_at = now()
		FROM (VALUES ($1::uuid, $4::uuid), ($2::uuid, $3::uuid)) AS v(id, new_owner)
		WHERE s.id = v.id
	`, a.ID, b.ID, a.OwnerID, b.OwnerID)
	if err != nil {
		return fmt.Errorf("exchange owners: %w", err)
	}
	if tag.RowsAffected() != 2 {
		return fmt.Errorf("exchange owners: expected 2 rows, got %d", tag.RowsAffected())
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO slot_swap_history (slot_id, counterpart_id, request_id, swapped_at)
		VALUES ($1, $2, $5, now()),
		       ($3, $4, $5, now())
	`, a.ID, a.OwnerID, b.ID, b.OwnerID, requestID)
	if err != nil {
		return fmt.Errorf("append swap history: %w", err)
	}

	return nil
}

func (r *PgStore) ListSlotsByOwner(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]Slot, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE owner_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgStore) HistoryForSlot(ctx context.Context, slotID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, slot_id, counterpart_id, request_id, swapped_at
		FROM slot_swap_history
		WHERE slot_id = $1
		ORDER BY swapped_at DESC
	`, slotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.SlotID, &h.CounterpartID, &h.RequestID, &h.SwappedAt); err != nil {
			return nil, err
		}
		result = append(result, h)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgStore) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	var email *string

	err := r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &email, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Email = email
	return &u, nil
}
