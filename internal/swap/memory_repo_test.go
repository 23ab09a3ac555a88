package swap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftmarket/slotswap/internal/ledger"
	redisclient "github.com/shiftmarket/slotswap/internal/redis"
)

// memoryRepo is an in-memory Repository for service tests. InTx serializes
// on a mutex and rolls the maps back when fn fails, mirroring the isolation
// and atomicity the Postgres implementation gets from transactions. The
// pending-pair uniqueness check in InsertRequest mirrors the partial unique
// index.
type memoryRepo struct {
	mu       sync.Mutex
	slots    map[uuid.UUID]*ledger.Slot
	requests map[uuid.UUID]*Request
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		slots:    make(map[uuid.UUID]*ledger.Slot),
		requests: make(map[uuid.UUID]*Request),
	}
}

func (m *memoryRepo) addSlot(s *ledger.Slot) {
	cp := *s
	m.slots[s.ID] = &cp
}

func (m *memoryRepo) slot(id uuid.UUID) ledger.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.slots[id]
}

func (m *memoryRepo) request(id uuid.UUID) Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.requests[id]
}

func cloneSlots(in map[uuid.UUID]*ledger.Slot) map[uuid.UUID]*ledger.Slot {
	out := make(map[uuid.UUID]*ledger.Slot, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneRequests(in map[uuid.UUID]*Request) map[uuid.UUID]*Request {
	out := make(map[uuid.UUID]*Request, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (m *memoryRepo) InTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	slotsSnap := cloneSlots(m.slots)
	requestsSnap := cloneRequests(m.requests)

	if err := fn(&memoryTx{repo: m}); err != nil {
		m.slots = slotsSnap
		m.requests = requestsSnap
		return err
	}
	return nil
}

func (m *memoryRepo) RequestByID(_ context.Context, id uuid.UUID) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *memoryRepo) list(match func(*Request) bool, newerFirst func(a, b *Request) bool) []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Request
	for _, req := range m.requests {
		if match(req) {
			out = append(out, *req)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(&out[i], &out[j])
	})
	return out
}

func byCreatedDesc(a, b *Request) bool { return a.CreatedAt.After(b.CreatedAt) }

func matchesFilter(req *Request, f ListFilter) bool {
	if f.Status != nil && req.Status != *f.Status {
		return false
	}
	if f.ActiveOnly && (req.Status != StatusPending || !req.ExpiresAt.After(f.Now)) {
		return false
	}
	return true
}

func (m *memoryRepo) ListByCounterpart(_ context.Context, userID uuid.UUID, f ListFilter) ([]Request, error) {
	return m.list(func(r *Request) bool {
		return r.CounterpartID == userID && matchesFilter(r, f)
	}, byCreatedDesc), nil
}

func (m *memoryRepo) ListByRequester(_ context.Context, userID uuid.UUID, f ListFilter) ([]Request, error) {
	return m.list(func(r *Request) bool {
		return r.RequesterID == userID && matchesFilter(r, f)
	}, byCreatedDesc), nil
}

func (m *memoryRepo) AcceptedInvolving(_ context.Context, userID uuid.UUID) ([]Request, error) {
	return m.list(func(r *Request) bool {
		return r.Status == StatusAccepted && (r.RequesterID == userID || r.CounterpartID == userID)
	}, func(a, b *Request) bool {
		return a.RespondedAt.After(*b.RespondedAt)
	}), nil
}

func (m *memoryRepo) ExpiredPending(_ context.Context, now time.Time, limit int) ([]Request, error) {
	out := m.list(func(r *Request) bool {
		return r.Status == StatusPending && r.ExpiresAt.Before(now)
	}, byCreatedDesc)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) SlotForUpdate(_ context.Context, id uuid.UUID) (*ledger.Slot, error) {
	slot, ok := t.repo.slots[id]
	if !ok {
		return nil, ledger.ErrSlotNotFound
	}
	cp := *slot
	return &cp, nil
}

func (t *memoryTx) SetSlotStatus(_ context.Context, id uuid.UUID, from, to ledger.SlotStatus) error {
	slot, ok := t.repo.slots[id]
	if !ok {
		return ledger.ErrSlotNotFound
	}
	if slot.Status != from {
		return ledger.ErrConflict
	}
	slot.Status = to
	return nil
}

func (t *memoryTx) ExchangeSlotOwners(_ context.Context, slotAID, slotBID, _ uuid.UUID) error {
	a, ok := t.repo.slots[slotAID]
	if !ok {
		return ledger.ErrSlotNotFound
	}
	b, ok := t.repo.slots[slotBID]
	if !ok {
		return ledger.ErrSlotNotFound
	}
	a.OwnerID, b.OwnerID = b.OwnerID, a.OwnerID
	a.Status, b.Status = ledger.SlotBusy, ledger.SlotBusy
	return nil
}

func (t *memoryTx) RequestForUpdate(_ context.Context, id uuid.UUID) (*Request, error) {
	req, ok := t.repo.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (t *memoryTx) PendingRequestForPair(_ context.Context, slotA, slotB uuid.UUID) (*Request, error) {
	loWant, hiWant := NormalizePair(slotA, slotB)
	for _, req := range t.repo.requests {
		if req.Status != StatusPending {
			continue
		}
		lo, hi := NormalizePair(req.RequesterSlotID, req.CounterpartSlotID)
		if lo == loWant && hi == hiWant {
			cp := *req
			return &cp, nil
		}
	}
	return nil, ErrRequestNotFound
}

func (t *memoryTx) InsertRequest(_ context.Context, req *Request) error {
	if _, err := t.PendingRequestForPair(context.Background(), req.RequesterSlotID, req.CounterpartSlotID); err == nil {
		return fmt.Errorf("%w: a pending swap already exists for this slot pair", ErrInvalidState)
	}
	cp := *req
	cp.CreatedAt = time.Now()
	t.repo.requests[req.ID] = &cp
	req.CreatedAt = cp.CreatedAt
	return nil
}

func (t *memoryTx) ResolveRequest(_ context.Context, id uuid.UUID, to Status, responseMessage *string, respondedAt time.Time) (*Request, error) {
	req, ok := t.repo.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return nil, ErrConflict
	}
	req.Status = to
	req.ResponseMessage = responseMessage
	at := respondedAt
	req.RespondedAt = &at
	cp := *req
	return &cp, nil
}

// fakeLocker trades the Redis pair lock for a no-op, or a permanent refusal
// when contended is set.
type fakeLocker struct {
	contended bool
}

func (f *fakeLocker) WithPairLock(ctx context.Context, _, _ uuid.UUID, fn func(ctx context.Context) error) error {
	if f.contended {
		return redisclient.ErrLockNotAcquired
	}
	return fn(ctx)
}
