package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shiftmarket/slotswap/internal/ledger"
	"github.com/shiftmarket/slotswap/internal/swap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeDomainError maps the core error taxonomy onto HTTP. Anything the map
// does not recognize is an internal error.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, swap.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "swap_request_not_found", err.Error())
	case errors.Is(err, ledger.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, ledger.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, swap.ErrForbidden), errors.Is(err, ledger.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, swap.ErrExpired):
		writeError(w, http.StatusConflict, "swap_request_expired", err.Error())
	case errors.Is(err, swap.ErrConflict), errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "conflict_retry", "lost a concurrent update race, retry with fresh state")
	case errors.Is(err, swap.ErrInvalidState),
		errors.Is(err, ledger.ErrSlotFrozen),
		errors.Is(err, ledger.ErrPastSlot),
		errors.Is(err, ledger.ErrInvalidInterval),
		errors.Is(err, ledger.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
