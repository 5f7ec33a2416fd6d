package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

// StockReader is the read-only ledger surface exposed over HTTP.
type StockReader interface {
	Validate(ctx context.Context, items []orders.ItemQty) ([]orders.StockCheck, error)
	ReadLevels(ctx context.Context, ids []string) ([]orders.StockLevel, error)
}

type StockHandler struct {
	Ledger StockReader
}

func (h *StockHandler) Register(r *chi.Mux) {
	r.Post("/stock/validate", h.validate)
	r.Get("/stock", h.levels)
}

type ValidateReq struct {
	Items []orders.ItemQty `json:"items"`
}

type ValidateResp struct {
	AllValid bool                `json:"all_valid"`
	Items    []orders.StockCheck `json:"items"`
}

// validate answers whether a basket could be covered right now. The answer is
// advisory; only the checkout decrement is authoritative.
func (h *StockHandler) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json", Code: "invalid_input"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "no items", Code: "invalid_input"})
		return
	}
	checks, err := h.Ledger.Validate(r.Context(), req.Items)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := ValidateResp{AllValid: true, Items: checks}
	for _, c := range checks {
		if !c.OK {
			resp.AllValid = false
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StockHandler) levels(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "ids query param is required", Code: "invalid_input"})
		return
	}
	levels, err := h.Ledger.ReadLevels(r.Context(), strings.Split(raw, ","))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stock": levels})
}
