package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shiftmarket/slotswap/internal/ledger"
	"github.com/shiftmarket/slotswap/internal/swap"
)

type CreateSlotRequest struct {
	OwnerID   string  `json:"owner_id"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Category  string  `json:"category"`
	Location  *string `json:"location,omitempty"`
}

type SetSlotStatusRequest struct {
	OwnerID string `json:"owner_id"`
	Status  string `json:"status"`
}

type SlotResponse struct {
	ID              uuid.UUID           `json:"id"`
	OwnerID         uuid.UUID           `json:"owner_id"`
	OriginalOwnerID uuid.UUID           `json:"original_owner_id"`
	StartTime       time.Time           `json:"start_time"`
	EndTime         time.Time           `json:"end_time"`
	Status          string              `json:"status"`
	Category        string              `json:"category"`
	Location        *string             `json:"location,omitempty"`
	SwapHistory     []SwapHistoryEntry  `json:"swap_history,omitempty"`
}

type SwapHistoryEntry struct {
	CounterpartID uuid.UUID `json:"counterpart_id"`
	RequestID     uuid.UUID `json:"request_id"`
	SwappedAt     time.Time `json:"swapped_at"`
}

type CreateSwapRequest struct {
	RequesterID string  `json:"requester_id"`
	MySlotID    string  `json:"my_slot_id"`
	TheirSlotID string  `json:"their_slot_id"`
	Message     *string `json:"message,omitempty"`
}

type RespondSwapRequest struct {
	ResponderID string  `json:"responder_id"`
	Action      string  `json:"action"`
	Message     *string `json:"message,omitempty"`
}

type CancelSwapRequest struct {
	RequesterID string `json:"requester_id"`
}

type SwapRequestResponse struct {
	ID                uuid.UUID  `json:"id"`
	RequesterSlotID   uuid.UUID  `json:"requester_slot_id"`
	CounterpartSlotID uuid.UUID  `json:"counterpart_slot_id"`
	RequesterID       uuid.UUID  `json:"requester_id"`
	CounterpartID     uuid.UUID  `json:"counterpart_id"`
	Status            string     `json:"status"`
	Message           *string    `json:"message,omitempty"`
	ResponseMessage   *string    `json:"response_message,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	RespondedAt       *time.Time `json:"responded_at,omitempty"`
	ExpiresAt         time.Time  `json:"expires_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(slot *ledger.Slot, history []ledger.HistoryEntry) SlotResponse {
	resp := SlotResponse{
		ID:              slot.ID,
		OwnerID:         slot.OwnerID,
		OriginalOwnerID: slot.OriginalOwnerID,
		StartTime:       slot.StartTime,
		EndTime:         slot.EndTime,
		Status:          string(slot.Status),
		Category:        slot.Category,
		Location:        slot.Location,
	}
	for _, h := range history {
		resp.SwapHistory = append(resp.SwapHistory, SwapHistoryEntry{
			CounterpartID: h.CounterpartID,
			RequestID:     h.RequestID,
			SwappedAt:     h.SwappedAt,
		})
	}
	return resp
}

func toSwapResponse(req *swap.Request) SwapRequestResponse {
	return SwapRequestResponse{
		ID:                req.ID,
		RequesterSlotID:   req.RequesterSlotID,
		CounterpartSlotID: req.CounterpartSlotID,
		RequesterID:       req.RequesterID,
		CounterpartID:     req.CounterpartID,
		Status:            string(req.Status),
		Message:           req.Message,
		ResponseMessage:   req.ResponseMessage,
		CreatedAt:         req.CreatedAt,
		RespondedAt:       req.RespondedAt,
		ExpiresAt:         req.ExpiresAt,
	}
}

func toSwapResponses(reqs []swap.Request) []SwapRequestResponse {
	out := make([]SwapRequestResponse, 0, len(reqs))
	for i := range reqs {
		out = append(out, toSwapResponse(&reqs[i]))
	}
	return out
}
