package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Items any    `json:"items,omitempty"`
}

// writeError maps the domain error taxonomy onto HTTP. Stock shortfalls carry
// the per-item detail so a client can show what fell short.
func writeError(w http.ResponseWriter, err error) {
	var stock *orders.InsufficientStockError
	if errors.As(err, &stock) {
		writeJSON(w, http.StatusConflict, errBody{
			Error: stock.Error(),
			Code:  "insufficient_stock",
			Items: stock.Items,
		})
		return
	}

	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errBody{Error: "not found", Code: "not_found"})
	case errors.Is(err, orders.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errBody{Error: err.Error(), Code: "invalid_input"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errBody{Error: err.Error(), Code: "invalid_transition"})
	case errors.Is(err, orders.ErrReservationConflict):
		writeJSON(w, http.StatusConflict, errBody{Error: err.Error(), Code: "reservation_conflict"})
	case errors.Is(err, orders.ErrConflict):
		writeJSON(w, http.StatusConflict, errBody{Error: err.Error(), Code: "conflict"})
	case errors.Is(err, orders.ErrTornMove):
		writeJSON(w, http.StatusInternalServerError, errBody{Error: err.Error(), Code: "torn_move"})
	default:
		writeJSON(w, http.StatusInternalServerError, errBody{Error: "internal error", Code: "internal"})
	}
}
