package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftmarket/slotswap/internal/ledger"
)

const pendingPairConstraint = "swap_requests_pending_pair_idx"

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const requestColumns = `id, requester_slot_id, counterpart_slot_id, requester_id, counterpart_id, status, message, response_message, created_at, responded_at, expires_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var message, responseMessage *string
	var respondedAt *time.Time

	err := row.Scan(
		&r.ID,
		&r.RequesterSlotID,
		&r.CounterpartSlotID,
		&r.RequesterID,
		&r.CounterpartID,
		&r.Status,
		&message,
		&responseMessage,
		&r.CreatedAt,
		&respondedAt,
		&r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	r.Message = message
	r.ResponseMessage = responseMessage
	r.RespondedAt = respondedAt
	return &r, nil
}

// translatePgErr maps storage-layer failures onto the negotiator's error
// taxonomy: the pending-pair unique index fires as a duplicate pending
// request, lock and serialization failures as retryable conflicts.
func translatePgErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case "23505":
		if pgErr.ConstraintName == pendingPairConstraint {
			return fmt.Errorf("%w: a pending swap already exists for this slot pair", ErrInvalidState)
		}
		return err
	case "40001", "40P01", "55P03":
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.Code)
	}

	return err
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx, slots: ledger.NewPgStore(tx)}); err != nil {
		return translatePgErr(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return translatePgErr(fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

func (r *PgRepository) RequestByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM swap_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) listByParty(ctx context.Context, column string, userID uuid.UUID, f ListFilter) ([]Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM swap_requests
		WHERE ` + column + ` = $1`
	args := []any{userID}

	if f.Status != nil {
		args = append(args, *f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.ActiveOnly {
		args = append(args, f.Now)
		query += fmt.Sprintf(" AND status = 'pending' AND expires_at > $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *PgRepository) ListByCounterpart(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Request, error) {
	return r.listByParty(ctx, "counterpart_id", userID, f)
}

func (r *PgRepository) ListByRequester(ctx context.Context, userID uuid.UUID, f ListFilter) ([]Request, error) {
	return r.listByParty(ctx, "requester_id", userID, f)
}

func (r *PgRepository) AcceptedInvolving(ctx context.Context, userID uuid.UUID) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM swap_requests
		WHERE status = 'accepted'
		  AND (requester_id = $1 OR counterpart_id = $1)
		ORDER BY responded_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func (r *PgRepository) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+requestColumns+`
		FROM swap_requests
		WHERE status = 'pending'
		  AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectRequests(rows)
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	var result []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// pgTx backs one negotiator transition. Slot operations delegate to the
// ledger store bound to the same transaction.
type pgTx struct {
	tx    pgx.Tx
	slots *ledger.PgStore
}

func (t *pgTx) SlotForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Slot, error) {
	return t.slots.SlotForUpdate(ctx, id)
}

func (t *pgTx) SetSlotStatus(ctx context.Context, id uuid.UUID, from, to ledger.SlotStatus) error {
	_, err := t.slots.UpdateSlotStatus(ctx, id, from, to)
	return err
}

func (t *pgTx) ExchangeSlotOwners(ctx context.Context, slotAID, slotBID, requestID uuid.UUID) error {
	return t.slots.ExchangeOwners(ctx, slotAID, slotBID, requestID)
}

func (t *pgTx) RequestForUpdate(ctx context.Context, id uuid.UUID) (*Request, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM swap_requests
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanRequest(row)
}

func (t *pgTx) PendingRequestForPair(ctx context.Context, slotA, slotB uuid.UUID) (*Request, error) {
	lo, hi := NormalizePair(slotA, slotB)
	row := t.tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM swap_requests
		WHERE status = 'pending'
		  AND LEAST(requester_slot_id, counterpart_slot_id) = $1
		  AND GREATEST(requester_slot_id, counterpart_slot_id) = $2
	`, lo, hi)
	return scanRequest(row)
}

func (t *pgTx) InsertRequest(ctx context.Context, req *Request) error {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO swap_requests (id, requester_slot_id, counterpart_slot_id, requester_id, counterpart_id, status, message, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), $8)
		RETURNING created_at
	`, req.ID, req.RequesterSlotID, req.CounterpartSlotID, req.RequesterID, req.CounterpartID, req.Status, req.Message, req.ExpiresAt)

	if err := row.Scan(&req.CreatedAt); err != nil {
		return fmt.Errorf("insert swap request: %w", err)
	}
	return nil
}

func (t *pgTx) ResolveRequest(ctx context.Context, id uuid.UUID, to Status, responseMessage *string, respondedAt time.Time) (*Request, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE swap_requests
		SET status = $2,
		    response_message = $3,
		    responded_at = $4
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+requestColumns+`
	`, id, to, responseMessage, respondedAt)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// The row was locked by this transaction, so losing the
			// compare-and-swap here means a real race at a lower level.
			return nil, ErrConflict
		}
		return nil, err
	}

	return req, nil
}
