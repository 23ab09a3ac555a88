package swap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiftmarket/slotswap/internal/config"
	"github.com/shiftmarket/slotswap/internal/ledger"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, &fakeLocker{}, zap.NewNop(), config.Config{
		SwapRequestTTL: 7 * 24 * time.Hour,
	})
	svc.now = func() time.Time { return testNow }
	return svc
}

func makeSlot(owner uuid.UUID, status ledger.SlotStatus, start time.Time) *ledger.Slot {
	return &ledger.Slot{
		ID:              uuid.New(),
		OwnerID:         owner,
		OriginalOwnerID: owner,
		StartTime:       start,
		EndTime:         start.Add(2 * time.Hour),
		Status:          status,
		Category:        "on-call",
	}
}

// seedPair sets up two swappable future slots with distinct owners.
func seedPair(repo *memoryRepo) (u1, u2 uuid.UUID, s1, s2 *ledger.Slot) {
	u1, u2 = uuid.New(), uuid.New()
	s1 = makeSlot(u1, ledger.SlotSwappable, testNow.Add(48*time.Hour))
	s2 = makeSlot(u2, ledger.SlotSwappable, testNow.Add(72*time.Hour))
	repo.addSlot(s1)
	repo.addSlot(s2)
	return u1, u2, s1, s2
}

func strPtr(s string) *string { return &s }

func TestCreateSwap(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, strPtr("trade?"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if req.Status != StatusPending {
		t.Fatalf("expected pending, got %s", req.Status)
	}
	if req.RequesterID != u1 || req.CounterpartID != u2 {
		t.Fatalf("wrong parties: %s vs %s", req.RequesterID, req.CounterpartID)
	}
	if !req.ExpiresAt.Equal(testNow.Add(7 * 24 * time.Hour)) {
		t.Fatalf("expected expiry at now+7d, got %s", req.ExpiresAt)
	}
	if req.Message == nil || *req.Message != "trade?" {
		t.Fatalf("message not stored")
	}

	if got := repo.slot(s1.ID).Status; got != ledger.SlotSwapPending {
		t.Fatalf("requester slot not frozen: %s", got)
	}
	if got := repo.slot(s2.ID).Status; got != ledger.SlotSwapPending {
		t.Fatalf("counterpart slot not frozen: %s", got)
	}
}

func TestCreateSwapValidation(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(repo *memoryRepo) (requester uuid.UUID, mySlot, theirSlot uuid.UUID)
		wantErr error
	}{
		{
			name: "same slot on both sides",
			setup: func(repo *memoryRepo) (uuid.UUID, uuid.UUID, uuid.UUID) {
				u1, _, s1, _ := seedPair(repo)
				return u1, s1.ID, s1.ID
			},
			wantErr: ErrInvalidState,
		},
		{
			name: "counterpart slot missing",
			setup: func(repo *memoryRepo) (uuid.UUID, uuid.UUID, uuid.UUID) {
				u1, _, s1, _ := seedPair(repo)
				return u1, s1.ID, uuid.New()
			},
			wantErr: ledger.ErrSlotNotFound,
		},
		{
			name: "requester does not own offered slot",
			setup: func(repo *memoryRepo) (uuid.UUID, uuid.UUID, uuid.UUID) {
				_, _, s1, s2 := seedPair(repo)
				return uuid.New(), s1.ID, s2.ID
			},
			wantErr: ErrForbidden,
		},
		{
			name: "both slots owned by requester",
			setup: func(repo *memoryRepo) (uuid.UUID, uuid.UUID, uuid.UUID) {
				u1 := uuid.New()
				s1 := makeSlot(u1, ledger.SlotSwappable, testNow.Add(24*time.Hour))
				s2 := makeSlot(u1, ledger.SlotSwappable, testNow.Add(48*time.Hour))
				repo.addSlot(s1)
				repo.addSlot(s2)
				return u1, s1.ID, s2.ID
			},
			wantErr: ErrInvalidState,
		},
		{
			name: "counterpart slot not swappable",
			setup: func(repo *memoryRepo) (uuid.UUID, uuid.UUID, uuid.UUID) {
				u1, u2 := uuid.New(), uuid.New()
				s1 := makeSlot(u1, ledger.SlotSwappable, testNow.Add(24*time.Hour))
				s2 := makeSlot(u2, ledger.SlotBusy, testNow.Add(48*time.Hour))
				repo.addSlot(s1)
				repo.addSlot(s2)
				return u1, s1.ID, s2.ID
			},
			wantErr: ErrInvalidState,
		},
		{
			name: "requester slot already started",
			setup: func(repo *memoryRepo) (uuid.UUID, uuid.UUID, uuid.UUID) {
				u1, u2 := uuid.New(), uuid.New()
				s1 := makeSlot(u1, ledger.SlotSwappable, testNow.Add(-time.Hour))
				s2 := makeSlot(u2, ledger.SlotSwappable, testNow.Add(48*time.Hour))
				repo.addSlot(s1)
				repo.addSlot(s2)
				return u1, s1.ID, s2.ID
			},
			wantErr: ErrInvalidState,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemoryRepo()
			svc := newTestService(repo)
			requester, mySlot, theirSlot := tc.setup(repo)

			_, err := svc.Create(context.Background(), requester, mySlot, theirSlot, nil)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSwapDuplicatePair(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	if _, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Same direction.
	if _, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	// Opposite direction collides on the same unordered pair.
	if _, err := svc.Create(context.Background(), u2, s2.ID, s1.ID, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for reversed pair, got %v", err)
	}
}

func TestCreateSwapLockContention(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, &fakeLocker{contended: true}, zap.NewNop(), config.Config{
		SwapRequestTTL: 7 * 24 * time.Hour,
	})
	svc.now = func() time.Time { return testNow }
	u1, _, s1, s2 := seedPair(repo)

	_, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAcceptSwap(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, strPtr("hi"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolved, err := svc.Respond(context.Background(), req.ID, u2, ActionAccept, strPtr("ok"))
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	if resolved.Status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", resolved.Status)
	}
	if resolved.ResponseMessage == nil || *resolved.ResponseMessage != "ok" {
		t.Fatalf("response message not stored")
	}
	if resolved.RespondedAt == nil || !resolved.RespondedAt.Equal(testNow) {
		t.Fatalf("responded_at not set to now")
	}

	got1, got2 := repo.slot(s1.ID), repo.slot(s2.ID)
	if got1.OwnerID != u2 || got2.OwnerID != u1 {
		t.Fatalf("owners not exchanged: %s / %s", got1.OwnerID, got2.OwnerID)
	}
	if got1.Status != ledger.SlotBusy || got2.Status != ledger.SlotBusy {
		t.Fatalf("slots not busy after accept: %s / %s", got1.Status, got2.Status)
	}
	if got1.OriginalOwnerID != u1 || got2.OriginalOwnerID != u2 {
		t.Fatalf("original owners must never change")
	}
}

func TestRejectSwap(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolved, err := svc.Respond(context.Background(), req.ID, u2, ActionReject, strPtr("no thanks"))
	if err != nil {
		t.Fatalf("reject: %v", err)
	}

	if resolved.Status != StatusRejected {
		t.Fatalf("expected rejected, got %s", resolved.Status)
	}

	got1, got2 := repo.slot(s1.ID), repo.slot(s2.ID)
	if got1.OwnerID != u1 || got2.OwnerID != u2 {
		t.Fatalf("owners changed on reject")
	}
	if got1.Status != ledger.SlotSwappable || got2.Status != ledger.SlotSwappable {
		t.Fatalf("slots not released: %s / %s", got1.Status, got2.Status)
	}
}

func TestCancelSwap(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resolved, err := svc.Cancel(context.Background(), req.ID, u1)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if resolved.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", resolved.Status)
	}
	if resolved.RespondedAt == nil {
		t.Fatalf("responded_at not set on cancel")
	}

	got1, got2 := repo.slot(s1.ID), repo.slot(s2.ID)
	if got1.OwnerID != u1 || got2.OwnerID != u2 {
		t.Fatalf("owners changed on cancel")
	}
	if got1.Status != ledger.SlotSwappable || got2.Status != ledger.SlotSwappable {
		t.Fatalf("slots not released: %s / %s", got1.Status, got2.Status)
	}
}

func TestSwapAuthorization(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The requester may not respond to their own request.
	if _, err := svc.Respond(context.Background(), req.ID, u1, ActionAccept, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for requester accept, got %v", err)
	}

	// A stranger may not respond.
	if _, err := svc.Respond(context.Background(), req.ID, uuid.New(), ActionReject, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}

	// The counterpart may not cancel.
	if _, err := svc.Cancel(context.Background(), req.ID, u2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for counterpart cancel, got %v", err)
	}

	// A failed response must leave everything frozen and pending.
	if got := repo.request(req.ID).Status; got != StatusPending {
		t.Fatalf("request drifted to %s", got)
	}
	if got := repo.slot(s1.ID).Status; got != ledger.SlotSwapPending {
		t.Fatalf("slot thawed by failed response: %s", got)
	}
}

func TestRespondTwice(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Respond(context.Background(), req.ID, u2, ActionAccept, nil); err != nil {
		t.Fatalf("first accept: %v", err)
	}

	if _, err := svc.Respond(context.Background(), req.ID, u2, ActionAccept, nil); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on second accept, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), req.ID, u1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on cancel after accept, got %v", err)
	}
}

func TestExpiredRequest(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	svc.now = func() time.Time { return testNow.Add(8 * 24 * time.Hour) }

	if _, err := svc.Respond(context.Background(), req.ID, u2, ActionAccept, nil); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired on accept, got %v", err)
	}
	if _, err := svc.Respond(context.Background(), req.ID, u2, ActionReject, nil); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired on reject, got %v", err)
	}
	if _, err := svc.Cancel(context.Background(), req.ID, u1); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired on cancel, got %v", err)
	}

	// No auto-transition: the request stays pending and the slots frozen.
	if got := repo.request(req.ID).Status; got != StatusPending {
		t.Fatalf("expired request auto-transitioned to %s", got)
	}
	if got := repo.slot(s2.ID).Status; got != ledger.SlotSwapPending {
		t.Fatalf("expired request thawed slot: %s", got)
	}
}

func TestRejectReleasesPastSlotAsBusy(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	u1, u2 := uuid.New(), uuid.New()
	s1 := makeSlot(u1, ledger.SlotSwappable, testNow.Add(time.Hour))
	s2 := makeSlot(u2, ledger.SlotSwappable, testNow.Add(30*time.Hour))
	repo.addSlot(s1)
	repo.addSlot(s2)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// s1's start passes while the request is still open.
	svc.now = func() time.Time { return testNow.Add(2 * time.Hour) }

	if _, err := svc.Respond(context.Background(), req.ID, u2, ActionReject, nil); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if got := repo.slot(s1.ID).Status; got != ledger.SlotBusy {
		t.Fatalf("started slot must release as busy, got %s", got)
	}
	if got := repo.slot(s2.ID).Status; got != ledger.SlotSwappable {
		t.Fatalf("future slot must release as swappable, got %s", got)
	}
}

func TestConcurrentAcceptExactlyOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Respond(context.Background(), req.ID, u2, ActionAccept, nil)
		}(i)
	}
	wg.Wait()

	successes, losers := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidState):
			losers++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Fatalf("expected exactly one success, got %d", successes)
	}
	if losers != attempts-1 {
		t.Fatalf("expected %d losers, got %d", attempts-1, losers)
	}

	got1 := repo.slot(s1.ID)
	if got1.OwnerID != u2 {
		t.Fatalf("exchange applied more than once or not at all")
	}
}

func TestConcurrentCreateExactlyOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, u2, s1, s2 := seedPair(repo)

	var wg sync.WaitGroup
	results := make([]error, 2)

	// Opposite directions over the same unordered pair.
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, results[0] = svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	}()
	go func() {
		defer wg.Done()
		_, results[1] = svc.Create(context.Background(), u2, s2.ID, s1.ID, nil)
	}()
	wg.Wait()

	successes := 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidState):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 {
		t.Fatalf("expected exactly one pending request, got %d successes", successes)
	}
}

func TestSweepExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	u1, _, s1, s2 := seedPair(repo)
	expired, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create expired candidate: %v", err)
	}

	u3, _, s3, s4 := seedPair(repo)
	active, err := svc.Create(context.Background(), u3, s3.ID, s4.ID, nil)
	if err != nil {
		t.Fatalf("create active candidate: %v", err)
	}

	// Push only the first request past its window.
	repo.mu.Lock()
	repo.requests[expired.ID].ExpiresAt = testNow.Add(-time.Hour)
	repo.mu.Unlock()

	swept, err := svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}

	if got := repo.request(expired.ID).Status; got != StatusCancelled {
		t.Fatalf("expired request not cancelled: %s", got)
	}
	if got := repo.slot(s1.ID).Status; got != ledger.SlotSwappable {
		t.Fatalf("swept slot not released: %s", got)
	}
	if got := repo.request(active.ID).Status; got != StatusPending {
		t.Fatalf("active request touched by sweep: %s", got)
	}
	if got := repo.slot(s3.ID).Status; got != ledger.SlotSwapPending {
		t.Fatalf("active slot thawed by sweep: %s", got)
	}
}

func TestListIncoming(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	u1, u2, s1, s2 := seedPair(repo)
	fresh, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	u3 := uuid.New()
	s3 := makeSlot(u3, ledger.SlotSwappable, testNow.Add(96*time.Hour))
	s4 := makeSlot(u2, ledger.SlotSwappable, testNow.Add(96*time.Hour))
	repo.addSlot(s3)
	repo.addSlot(s4)
	stale, err := svc.Create(context.Background(), u3, s3.ID, s4.ID, nil)
	if err != nil {
		t.Fatalf("create stale: %v", err)
	}

	repo.mu.Lock()
	repo.requests[stale.ID].ExpiresAt = testNow.Add(-time.Minute)
	repo.mu.Unlock()

	// Default view hides the expired request.
	got, err := svc.ListIncoming(context.Background(), u2, nil)
	if err != nil {
		t.Fatalf("list incoming: %v", err)
	}
	if len(got) != 1 || got[0].ID != fresh.ID {
		t.Fatalf("expected only the fresh request, got %d", len(got))
	}

	// An explicit pending filter includes it.
	pending := StatusPending
	got, err = svc.ListIncoming(context.Background(), u2, &pending)
	if err != nil {
		t.Fatalf("list incoming filtered: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both pending requests, got %d", len(got))
	}
}

func TestHistory(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	u1, u2, s1, s2 := seedPair(repo)
	first, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := svc.Respond(context.Background(), first.ID, u2, ActionAccept, nil); err != nil {
		t.Fatalf("accept first: %v", err)
	}

	// After the first swap s1 belongs to u2 and s2 to u1; trade back later.
	repo.mu.Lock()
	repo.slots[s1.ID].Status = ledger.SlotSwappable
	repo.slots[s2.ID].Status = ledger.SlotSwappable
	repo.mu.Unlock()

	svc.now = func() time.Time { return testNow.Add(time.Hour) }
	second, err := svc.Create(context.Background(), u1, s2.ID, s1.ID, nil)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if _, err := svc.Respond(context.Background(), second.ID, u2, ActionReject, nil); err != nil {
		t.Fatalf("reject second: %v", err)
	}

	got, err := svc.History(context.Background(), u1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	// Only accepted swaps count as history.
	if len(got) != 1 || got[0].ID != first.ID {
		t.Fatalf("expected only the accepted swap, got %d", len(got))
	}

	if out, err := svc.History(context.Background(), uuid.New()); err != nil || len(out) != 0 {
		t.Fatalf("stranger history should be empty, got %d (%v)", len(out), err)
	}
}

func TestGetSwap(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	u1, _, s1, s2 := seedPair(repo)

	req, err := svc.Create(context.Background(), u1, s1.ID, s2.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.Get(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != req.ID {
		t.Fatalf("wrong request returned")
	}

	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
}
