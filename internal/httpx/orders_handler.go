package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

// OrderService is the checkout and query surface the handler drives.
type OrderService interface {
	SubmitOrder(ctx context.Context, in orders.SubmitOrderInput) (orders.Order, error)
	SubmitWalkIn(ctx context.Context, in orders.SubmitOrderInput) (orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	OrdersByPartition(ctx context.Context, partition string) ([]orders.Order, error)
	OrdersByUser(ctx context.Context, userID string) ([]orders.Order, error)
}

// MoveService is the staff transition surface.
type MoveService interface {
	Move(ctx context.Context, orderID string, from, to orders.State, attrs orders.MoveAttrs) (orders.Order, error)
	Reconcile(ctx context.Context) ([]orders.TornMoveError, error)
}

// TransitionLog reads an order's append-only move history.
type TransitionLog interface {
	Transitions(ctx context.Context, orderID string) ([]orders.Transition, error)
}

type OrdersHandler struct {
	Svc    OrderService
	Engine MoveService
	Log    TransitionLog
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", RequireUser(h.submitOrder))
	r.Post("/orders/walk-in", RequireStaff(h.submitWalkIn))
	r.Get("/orders", RequireStaff(h.listByPartition))
	r.Get("/orders/{id}", RequireUser(h.getOrder))
	r.Get("/orders/{id}/transitions", RequireStaff(h.transitions))
	r.Post("/orders/{id}/move", RequireStaff(h.move))
	r.Post("/admin/reconcile", RequireStaff(h.reconcile))
	r.Get("/users/{id}/orders", RequireUser(h.listByUser))
}

type SubmitOrderReq struct {
	Items        []orders.ItemQty `json:"items"`
	ContactName  string           `json:"contact_name"`
	ContactPhone string           `json:"contact_phone"`
	Address      string           `json:"address"`
	Payment      orders.Payment   `json:"payment"`
	Notes        string           `json:"notes"`
}

type SubmitOrderResp struct {
	OrderID     string       `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	State       orders.State `json:"state"`
	TotalCents  int          `json:"total_cents"`
}

func (h *OrdersHandler) submitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json", Code: "invalid_input"})
		return
	}
	o, err := h.Svc.SubmitOrder(r.Context(), orders.SubmitOrderInput{
		UserID:       UserID(r.Context()),
		Items:        req.Items,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
		Address:      req.Address,
		Payment:      req.Payment,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitOrderResp{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		State:       o.State,
		TotalCents:  o.TotalCents,
	})
}

type WalkInReq struct {
	UserID string           `json:"user_id"`
	Items  []orders.ItemQty `json:"items"`
	Notes  string           `json:"notes"`
}

func (h *OrdersHandler) submitWalkIn(w http.ResponseWriter, r *http.Request) {
	var req WalkInReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json", Code: "invalid_input"})
		return
	}
	o, err := h.Svc.SubmitWalkIn(r.Context(), orders.SubmitOrderInput{
		UserID: req.UserID,
		Items:  req.Items,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, SubmitOrderResp{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		State:       o.State,
		TotalCents:  o.TotalCents,
	})
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	// Customers only see their own orders.
	if !IsStaff(r.Context()) && o.UserID != UserID(r.Context()) {
		writeError(w, orders.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listByPartition(w http.ResponseWriter, r *http.Request) {
	list, err := h.Svc.OrdersByPartition(r.Context(), r.URL.Query().Get("partition"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *OrdersHandler) listByUser(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "id")
	if !IsStaff(r.Context()) && uid != UserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errBody{Error: "not your orders", Code: "forbidden"})
		return
	}
	list, err := h.Svc.OrdersByUser(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

type MoveReq struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Note               string `json:"note"`
	DenialReason       string `json:"denial_reason"`
	ReturnReason       string `json:"return_reason"`
	ReturnImage        string `json:"return_image"`
	CancellationReason string `json:"cancellation_reason"`
}

func (h *OrdersHandler) move(w http.ResponseWriter, r *http.Request) {
	var req MoveReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errBody{Error: "invalid json", Code: "invalid_input"})
		return
	}
	from, err := orders.ParseState(req.From)
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := orders.ParseState(req.To)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.Engine.Move(r.Context(), chi.URLParam(r, "id"), from, to, orders.MoveAttrs{
		Actor:              UserID(r.Context()),
		Note:               req.Note,
		DenialReason:       req.DenialReason,
		ReturnReason:       req.ReturnReason,
		ReturnImage:        req.ReturnImage,
		CancellationReason: req.CancellationReason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) transitions(w http.ResponseWriter, r *http.Request) {
	log, err := h.Log.Transitions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": log})
}

func (h *OrdersHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	torn, err := h.Engine.Reconcile(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"torn": torn, "count": len(torn)})
}
