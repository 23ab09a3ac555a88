package swap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shiftmarket/slotswap/internal/config"
	"github.com/shiftmarket/slotswap/internal/ledger"
	redisclient "github.com/shiftmarket/slotswap/internal/redis"
)

const sweepBatchSize = 100

// Service is the swap negotiator. Every transition validates its
// preconditions against current request and slot state, then applies the
// request change and its slot side effects as one atomic unit.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, logger *zap.Logger, cfg config.Config) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
		ttl:    cfg.SwapRequestTTL,
		now:    time.Now,
	}
}

// lockSlotPair locks both slot rows in id order so two transitions touching
// the same pair cannot deadlock, and returns them as (mine, theirs).
func lockSlotPair(ctx context.Context, tx Tx, myID, theirID uuid.UUID) (*ledger.Slot, *ledger.Slot, error) {
	lo, hi := NormalizePair(myID, theirID)

	first, err := tx.SlotForUpdate(ctx, lo)
	if err != nil {
		return nil, nil, err
	}
	second, err := tx.SlotForUpdate(ctx, hi)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == myID {
		return first, second, nil
	}
	return second, first, nil
}

// Create opens a pending swap request between the requester's slot and the
// counterpart's slot, freezing both slots for the decision. The Redis pair
// lock sheds racing creations before they reach the database; the pending
// pair unique index closes the race for anything that gets through.
func (s *Service) Create(ctx context.Context, requesterID, mySlotID, theirSlotID uuid.UUID, message *string) (*Request, error) {
	if mySlotID == theirSlotID {
		return nil, fmt.Errorf("%w: cannot swap a slot with itself", ErrInvalidState)
	}

	var created *Request

	err := s.locker.WithPairLock(ctx, mySlotID, theirSlotID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(tx Tx) error {
			mySlot, theirSlot, err := lockSlotPair(lockCtx, tx, mySlotID, theirSlotID)
			if err != nil {
				return err
			}

			if mySlot.OwnerID != requesterID {
				return fmt.Errorf("%w: requester does not own the offered slot", ErrForbidden)
			}
			if theirSlot.OwnerID == requesterID {
				return fmt.Errorf("%w: cannot swap between two of your own slots", ErrInvalidState)
			}

			if mySlot.Status != ledger.SlotSwappable || theirSlot.Status != ledger.SlotSwappable {
				return fmt.Errorf("%w: both slots must be swappable", ErrInvalidState)
			}

			now := s.now()
			if !mySlot.StartsAfter(now) || !theirSlot.StartsAfter(now) {
				return fmt.Errorf("%w: both slots must start in the future", ErrInvalidState)
			}

			if _, err := tx.PendingRequestForPair(lockCtx, mySlotID, theirSlotID); err == nil {
				return fmt.Errorf("%w: a pending swap already exists for this slot pair", ErrInvalidState)
			} else if !errors.Is(err, ErrRequestNotFound) {
				return fmt.Errorf("check pending pair: %w", err)
			}

			req := &Request{
				ID:                uuid.New(),
				RequesterSlotID:   mySlotID,
				CounterpartSlotID: theirSlotID,
				RequesterID:       requesterID,
				CounterpartID:     theirSlot.OwnerID,
				Status:            StatusPending,
				Message:           message,
				ExpiresAt:         now.Add(s.ttl),
			}

			if err := tx.InsertRequest(lockCtx, req); err != nil {
				return err
			}

			// Freeze both slots. The request is not durably created until
			// both freezes commit with it.
			if err := tx.SetSlotStatus(lockCtx, mySlotID, ledger.SlotSwappable, ledger.SlotSwapPending); err != nil {
				return fmt.Errorf("freeze requester slot: %w", err)
			}
			if err := tx.SetSlotStatus(lockCtx, theirSlotID, ledger.SlotSwappable, ledger.SlotSwapPending); err != nil {
				return fmt.Errorf("freeze counterpart slot: %w", err)
			}

			created = req
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: slot pair is being negotiated", ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("swap request created",
		zap.String("request_id", created.ID.String()),
		zap.String("requester_id", requesterID.String()),
		zap.String("requester_slot_id", mySlotID.String()),
		zap.String("counterpart_slot_id", theirSlotID.String()),
		zap.Time("expires_at", created.ExpiresAt),
	)

	return created, nil
}

// Respond resolves a pending request as the counterpart: accept exchanges
// slot ownership, reject releases both slots unchanged.
func (s *Service) Respond(ctx context.Context, requestID, responderID uuid.UUID, action Action, message *string) (*Request, error) {
	if action != ActionAccept && action != ActionReject {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidState, action)
	}

	var resolved *Request

	err := s.repo.InTx(ctx, func(tx Tx) error {
		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.checkRespondable(req, now); err != nil {
			return err
		}
		if req.CounterpartID != responderID {
			return fmt.Errorf("%w: only the counterpart may respond", ErrForbidden)
		}

		reqSlot, cptSlot, err := lockSlotPair(ctx, tx, req.RequesterSlotID, req.CounterpartSlotID)
		if err != nil {
			return err
		}
		if reqSlot.Status != ledger.SlotSwapPending || cptSlot.Status != ledger.SlotSwapPending {
			return fmt.Errorf("%w: slots are no longer frozen for this swap", ErrInvalidState)
		}

		if action == ActionAccept {
			if err := tx.ExchangeSlotOwners(ctx, reqSlot.ID, cptSlot.ID, req.ID); err != nil {
				return fmt.Errorf("exchange owners: %w", err)
			}
			resolved, err = tx.ResolveRequest(ctx, req.ID, StatusAccepted, message, now)
			return err
		}

		if err := s.releaseSlots(ctx, tx, reqSlot, cptSlot, now); err != nil {
			return err
		}
		resolved, err = tx.ResolveRequest(ctx, req.ID, StatusRejected, message, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("swap request resolved",
		zap.String("request_id", requestID.String()),
		zap.String("responder_id", responderID.String()),
		zap.String("status", string(resolved.Status)),
	)

	return resolved, nil
}

// Cancel withdraws a pending request as its requester and releases both
// slots.
func (s *Service) Cancel(ctx context.Context, requestID, requesterID uuid.UUID) (*Request, error) {
	var resolved *Request

	err := s.repo.InTx(ctx, func(tx Tx) error {
		req, err := tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}

		now := s.now()
		if err := s.checkRespondable(req, now); err != nil {
			return err
		}
		if req.RequesterID != requesterID {
			return fmt.Errorf("%w: only the requester may cancel", ErrForbidden)
		}

		reqSlot, cptSlot, err := lockSlotPair(ctx, tx, req.RequesterSlotID, req.CounterpartSlotID)
		if err != nil {
			return err
		}

		if err := s.releaseSlots(ctx, tx, reqSlot, cptSlot, now); err != nil {
			return err
		}

		resolved, err = tx.ResolveRequest(ctx, req.ID, StatusCancelled, nil, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("swap request cancelled",
		zap.String("request_id", requestID.String()),
		zap.String("requester_id", requesterID.String()),
	)

	return resolved, nil
}

func (s *Service) checkRespondable(req *Request, now time.Time) error {
	if req.Terminal() {
		return fmt.Errorf("%w: request is already %s", ErrInvalidState, req.Status)
	}
	if req.Expired(now) {
		return ErrExpired
	}
	return nil
}

// releaseSlots thaws both frozen slots: back to swappable while still in the
// future, busy once the start has passed.
func (s *Service) releaseSlots(ctx context.Context, tx Tx, a, b *ledger.Slot, now time.Time) error {
	for _, slot := range []*ledger.Slot{a, b} {
		if slot.Status != ledger.SlotSwapPending {
			continue
		}
		if err := tx.SetSlotStatus(ctx, slot.ID, ledger.SlotSwapPending, slot.ReleaseStatus(now)); err != nil {
			return fmt.Errorf("release slot %s: %w", slot.ID, err)
		}
	}
	return nil
}

// Get returns one request by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.repo.RequestByID(ctx, id)
}

// ListIncoming lists requests addressed to the user. Without an explicit
// status filter it shows only pending requests that have not expired.
func (s *Service) ListIncoming(ctx context.Context, userID uuid.UUID, status *Status) ([]Request, error) {
	f := ListFilter{Status: status}
	if status == nil {
		f.ActiveOnly = true
		f.Now = s.now()
	}
	return s.repo.ListByCounterpart(ctx, userID, f)
}

// ListOutgoing lists requests the user has made, newest first.
func (s *Service) ListOutgoing(ctx context.Context, userID uuid.UUID, status *Status) ([]Request, error) {
	return s.repo.ListByRequester(ctx, userID, ListFilter{Status: status})
}

// History lists accepted swaps the user took part in, most recently
// resolved first.
func (s *Service) History(ctx context.Context, userID uuid.UUID) ([]Request, error) {
	return s.repo.AcceptedInvolving(ctx, userID)
}

// SweepExpired cancels expired pending requests and releases their slots.
// The negotiator never does this on its own; the sweeper command opts in.
// Each request is swept in its own transaction so one failure does not hold
// back the rest.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	candidates, err := s.repo.ExpiredPending(ctx, s.now(), sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find expired pending requests: %w", err)
	}

	swept := 0
	for _, candidate := range candidates {
		err := s.repo.InTx(ctx, func(tx Tx) error {
			req, err := tx.RequestForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}

			now := s.now()
			// Re-check under the lock: the request may have been resolved
			// since the candidate list was read.
			if req.Terminal() || !req.Expired(now) {
				return nil
			}

			reqSlot, cptSlot, err := lockSlotPair(ctx, tx, req.RequesterSlotID, req.CounterpartSlotID)
			if err != nil {
				return err
			}

			if err := s.releaseSlots(ctx, tx, reqSlot, cptSlot, now); err != nil {
				return err
			}

			if _, err := tx.ResolveRequest(ctx, req.ID, StatusCancelled, nil, now); err != nil {
				return err
			}

			swept++
			return nil
		})
		if err != nil {
			s.logger.Warn("failed to sweep expired request",
				zap.String("request_id", candidate.ID.String()),
				zap.Error(err),
			)
		}
	}

	return swept, nil
}
