package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hmaulana/go-order-engine/internal/orders"
	"github.com/hmaulana/go-order-engine/internal/requests"
)

// RequestService is the return/cancellation workflow surface.
type RequestService interface {
	SubmitReturn(ctx context.Context, in requests.SubmitReturnInput) (requests.Request, error)
	SubmitCancellation(ctx context.Context, in requests.SubmitCancellationInput) (requests.Request, error)
	Decide(ctx context.Context, in requests.DecideInput) (requests.Request, error)
	Pending(ctx context.Context) ([]requests.Request, error)
}

type RequestsHandler struct {
	Svc RequestService
}

func (h *RequestsHandler) Register(r *chi.Mux) {
	r.Post("/orders/{id}/return-request", RequireUser(h.submitReturn))
	r.Post("/orders/{id}/cancel-request", RequireUser(h.submitCancellation))
	r.Put("/requests/{id}/decision", RequireStaff(h.decide))
	r.Get("/requests/pending", RequireStaff(h.pending))
}

type ReturnReq struct {
	Items  []orders.ItemQty `json:"items"`
	Reason string           `json:"reason"`
	Image  string           `json:"image"`
}

func (h *RequestsHandler) submitReturn(w http.ResponseWriter, r *http.Request) {
	var req ReturnReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json", Code: "invalid_input"})
		return
	}
	created, err := h.Svc.SubmitReturn(r.Context(), requests.SubmitReturnInput{
		OrderID: chi.URLParam(r, "id"),
		UserID:  UserID(r.Context()),
		Items:   req.Items,
		Reason:  req.Reason,
		Image:   req.Image,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type CancelReq struct {
	Reason string `json:"reason"`
}

func (h *RequestsHandler) submitCancellation(w http.ResponseWriter, r *http.Request) {
	var req CancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json", Code: "invalid_input"})
		return
	}
	created, err := h.Svc.SubmitCancellation(r.Context(), requests.SubmitCancellationInput{
		OrderID: chi.URLParam(r, "id"),
		UserID:  UserID(r.Context()),
		Reason:  req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type DecisionReq struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (h *RequestsHandler) decide(w http.ResponseWriter, r *http.Request) {
	var req DecisionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json", Code: "invalid_input"})
		return
	}
	decided, err := h.Svc.Decide(r.Context(), requests.DecideInput{
		RequestID: chi.URLParam(r, "id"),
		Action:    req.Action,
		DecidedBy: UserID(r.Context()),
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decided)
}

func (h *RequestsHandler) pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.Pending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": list})
}
