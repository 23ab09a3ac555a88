package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shiftmarket/slotswap/internal/swap"
)

// Negotiator is the slice of the swap service the handlers need.
type Negotiator interface {
	Create(ctx context.Context, requesterID, mySlotID, theirSlotID uuid.UUID, message *string) (*swap.Request, error)
	Respond(ctx context.Context, requestID, responderID uuid.UUID, action swap.Action, message *string) (*swap.Request, error)
	Cancel(ctx context.Context, requestID, requesterID uuid.UUID) (*swap.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*swap.Request, error)
	ListIncoming(ctx context.Context, userID uuid.UUID, status *swap.Status) ([]swap.Request, error)
	ListOutgoing(ctx context.Context, userID uuid.UUID, status *swap.Status) ([]swap.Request, error)
	History(ctx context.Context, userID uuid.UUID) ([]swap.Request, error)
}

func createSwapHandler(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}
		mySlotID, err := uuid.Parse(req.MySlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_my_slot_id", "my_slot_id must be a valid UUID")
			return
		}
		theirSlotID, err := uuid.Parse(req.TheirSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_their_slot_id", "their_slot_id must be a valid UUID")
			return
		}

		created, err := svc.Create(r.Context(), requesterID, mySlotID, theirSlotID, req.Message)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSwapResponse(created))
	}
}

func respondSwapHandler(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		var req RespondSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		responderID, err := uuid.Parse(req.ResponderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_responder_id", "responder_id must be a valid UUID")
			return
		}

		action := swap.Action(req.Action)
		if action != swap.ActionAccept && action != swap.ActionReject {
			writeError(w, http.StatusBadRequest, "invalid_action", "action must be accept or reject")
			return
		}

		resolved, err := svc.Respond(r.Context(), requestID, responderID, action, req.Message)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSwapResponse(resolved))
	}
}

func cancelSwapHandler(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		var req CancelSwapRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		resolved, err := svc.Cancel(r.Context(), requestID, requesterID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSwapResponse(resolved))
	}
}

func getSwapHandler(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		req, err := svc.Get(r.Context(), requestID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSwapResponse(req))
	}
}

func parseStatusFilter(w http.ResponseWriter, r *http.Request) (*swap.Status, bool) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, true
	}

	status, ok := swap.ParseStatus(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_status_filter", "status must be pending, accepted, rejected, or cancelled")
		return nil, false
	}
	return &status, true
}

func listSwapsHandler(svc Negotiator, direction string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "userID must be a valid UUID")
			return
		}

		status, ok := parseStatusFilter(w, r)
		if !ok {
			return
		}

		var reqs []swap.Request
		if direction == "incoming" {
			reqs, err = svc.ListIncoming(r.Context(), userID, status)
		} else {
			reqs, err = svc.ListOutgoing(r.Context(), userID, status)
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSwapResponses(reqs))
	}
}

func swapHistoryHandler(svc Negotiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "userID must be a valid UUID")
			return
		}

		reqs, err := svc.History(r.Context(), userID)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSwapResponses(reqs))
	}
}
