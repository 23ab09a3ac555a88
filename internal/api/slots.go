package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shiftmarket/slotswap/internal/ledger"
)

// SlotLedger is the slice of the ledger service the handlers need.
type SlotLedger interface {
	CreateSlot(ctx context.Context, ownerID uuid.UUID, in ledger.NewSlot) (*ledger.Slot, error)
	Slot(ctx context.Context, id uuid.UUID) (*ledger.Slot, []ledger.HistoryEntry, error)
	SetSlotStatus(ctx context.Context, slotID, ownerID uuid.UUID, to ledger.SlotStatus) (*ledger.Slot, error)
	ListSlots(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]ledger.Slot, error)
}

func createSlotHandler(svc SlotLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
			return
		}

		start, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC3339")
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be RFC3339")
			return
		}

		slot, err := svc.CreateSlot(r.Context(), ownerID, ledger.NewSlot{
			StartTime: start,
			EndTime:   end,
			Category:  req.Category,
			Location:  req.Location,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(slot, nil))
	}
}

func getSlotHandler(svc SlotLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		slot, history, err := svc.Slot(r.Context(), slotID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot, history))
	}
}

func setSlotStatusHandler(svc SlotLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		var req SetSlotStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		ownerID, err := uuid.Parse(req.OwnerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
			return
		}

		status := ledger.SlotStatus(req.Status)
		if status != ledger.SlotBusy && status != ledger.SlotSwappable {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be busy or swappable")
			return
		}

		slot, err := svc.SetSlotStatus(r.Context(), slotID, ownerID, status)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot, nil))
	}
}

func listSlotsHandler(svc SlotLedger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "userID must be a valid UUID")
			return
		}

		var from, to time.Time
		if raw := r.URL.Query().Get("from"); raw != "" {
			from, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
				return
			}
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			to, err = time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
				return
			}
		}

		slots, err := svc.ListSlots(r.Context(), ownerID, from, to)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		out := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			out = append(out, toSlotResponse(&slots[i], nil))
		}

		writeJSON(w, http.StatusOK, out)
	}
}
