package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hmaulana/go-order-engine/internal/orders"
)

type stubOrderService struct {
	order      orders.Order
	list       []orders.Order
	submitErr  error
	getErr     error
	listErr    error
	lastSubmit orders.SubmitOrderInput
}

func (s *stubOrderService) SubmitOrder(_ context.Context, in orders.SubmitOrderInput) (orders.Order, error) {
	s.lastSubmit = in
	return s.order, s.submitErr
}

func (s *stubOrderService) SubmitWalkIn(_ context.Context, in orders.SubmitOrderInput) (orders.Order, error) {
	s.lastSubmit = in
	return s.order, s.submitErr
}

func (s *stubOrderService) GetOrder(_ context.Context, _ string) (orders.Order, error) {
	return s.order, s.getErr
}

func (s *stubOrderService) OrdersByPartition(_ context.Context, _ string) ([]orders.Order, error) {
	return s.list, s.listErr
}

func (s *stubOrderService) OrdersByUser(_ context.Context, _ string) ([]orders.Order, error) {
	return s.list, s.listErr
}

type stubMoveService struct {
	order   orders.Order
	torn    []orders.TornMoveError
	moveErr error
}

func (s *stubMoveService) Move(_ context.Context, _ string, _, _ orders.State, _ orders.MoveAttrs) (orders.Order, error) {
	return s.order, s.moveErr
}

func (s *stubMoveService) Reconcile(_ context.Context) ([]orders.TornMoveError, error) {
	return s.torn, nil
}

type stubTransitionLog struct {
	log []orders.Transition
	err error
}

func (s *stubTransitionLog) Transitions(_ context.Context, _ string) ([]orders.Transition, error) {
	return s.log, s.err
}

func newOrdersRouter(svc OrderService, engine MoveService, tl TransitionLog) http.Handler {
	r := NewRouter()
	(&OrdersHandler{Svc: svc, Engine: engine, Log: tl}).Register(r)
	return r
}

func doReq(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func asUser(id string) map[string]string  { return map[string]string{"X-User-Id": id} }
func asStaff(id string) map[string]string { return map[string]string{"X-User-Id": id, "X-Staff": "true"} }

func TestSubmitOrderHandler(t *testing.T) {
	t.Parallel()

	okOrder := orders.Order{ID: "o1", OrderNumber: "ORD-20260828-AB12CD", State: orders.StatePending, TotalCents: 12000, UserID: "u1"}
	body := `{"items":[{"product_id":"p1","qty":2}],"address":"Jl. Melati 5"}`

	tests := []struct {
		name       string
		body       string
		headers    map[string]string
		submitErr  error
		wantStatus int
		wantSubstr string
	}{
		{
			name:       "created",
			body:       body,
			headers:    asUser("u1"),
			wantStatus: http.StatusCreated,
			wantSubstr: `"order_number":"ORD-20260828-AB12CD"`,
		},
		{
			name:       "missing identity",
			body:       body,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "bad json",
			body:       `{"items":`,
			headers:    asUser("u1"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid input",
			body:       body,
			headers:    asUser("u1"),
			submitErr:  orders.ErrInvalidInput,
			wantStatus: http.StatusBadRequest,
			wantSubstr: `"code":"invalid_input"`,
		},
		{
			name:    "insufficient stock carries items",
			body:    body,
			headers: asUser("u1"),
			submitErr: &orders.InsufficientStockError{
				Items: []orders.Shortfall{{ProductID: "p1", Required: 2, Available: 1}},
			},
			wantStatus: http.StatusConflict,
			wantSubstr: `"code":"insufficient_stock"`,
		},
		{
			name:       "reservation conflict",
			body:       body,
			headers:    asUser("u1"),
			submitErr:  orders.ErrReservationConflict,
			wantStatus: http.StatusConflict,
			wantSubstr: `"code":"reservation_conflict"`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubOrderService{order: okOrder, submitErr: tc.submitErr}
			h := newOrdersRouter(svc, &stubMoveService{}, &stubTransitionLog{})

			rec := doReq(t, h, http.MethodPost, "/orders", tc.body, tc.headers)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantSubstr != "" && !strings.Contains(rec.Body.String(), tc.wantSubstr) {
				t.Fatalf("expected body to contain %s, got %s", tc.wantSubstr, rec.Body.String())
			}
		})
	}

	t.Run("user id comes from the header, not the body", func(t *testing.T) {
		t.Parallel()
		svc := &stubOrderService{order: okOrder}
		h := newOrdersRouter(svc, &stubMoveService{}, &stubTransitionLog{})

		doReq(t, h, http.MethodPost, "/orders", body, asUser("u42"))
		if svc.lastSubmit.UserID != "u42" {
			t.Fatalf("expected user u42, got %q", svc.lastSubmit.UserID)
		}
	})
}

func TestWalkInHandler(t *testing.T) {
	t.Parallel()

	svc := &stubOrderService{order: orders.Order{ID: "o1", State: orders.StateWalkIn}}
	h := newOrdersRouter(svc, &stubMoveService{}, &stubTransitionLog{})
	body := `{"user_id":"counter","items":[{"product_id":"p1","qty":1}]}`

	t.Run("staff only", func(t *testing.T) {
		rec := doReq(t, h, http.MethodPost, "/orders/walk-in", body, asUser("u1"))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("created by staff", func(t *testing.T) {
		rec := doReq(t, h, http.MethodPost, "/orders/walk-in", body, asStaff("staff-1"))
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestMoveHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		moveErr    error
		wantStatus int
		wantSubstr string
	}{
		{
			name:       "moved",
			body:       `{"from":"pending","to":"accepted"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown state in body",
			body:       `{"from":"pending","to":"limbo"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid transition",
			body:       `{"from":"pending","to":"returned"}`,
			moveErr:    orders.ErrInvalidTransition,
			wantStatus: http.StatusConflict,
			wantSubstr: `"code":"invalid_transition"`,
		},
		{
			name:       "absent from partition",
			body:       `{"from":"pending","to":"accepted"}`,
			moveErr:    orders.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "torn move is a distinct server error",
			body:       `{"from":"pending","to":"accepted"}`,
			moveErr:    &orders.TornMoveError{OrderID: "o1", State: orders.StatePending, LoggedState: orders.StateAccepted},
			wantStatus: http.StatusInternalServerError,
			wantSubstr: `"code":"torn_move"`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			engine := &stubMoveService{order: orders.Order{ID: "o1", State: orders.StateAccepted}, moveErr: tc.moveErr}
			h := newOrdersRouter(&stubOrderService{}, engine, &stubTransitionLog{})

			rec := doReq(t, h, http.MethodPost, "/orders/o1/move", tc.body, asStaff("staff-1"))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
			if tc.wantSubstr != "" && !strings.Contains(rec.Body.String(), tc.wantSubstr) {
				t.Fatalf("expected body to contain %s, got %s", tc.wantSubstr, rec.Body.String())
			}
		})
	}

	t.Run("customers cannot move orders", func(t *testing.T) {
		t.Parallel()
		h := newOrdersRouter(&stubOrderService{}, &stubMoveService{}, &stubTransitionLog{})
		rec := doReq(t, h, http.MethodPost, "/orders/o1/move", `{"from":"pending","to":"accepted"}`, asUser("u1"))
		if rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rec.Code)
		}
	})
}

func TestGetOrderHandler(t *testing.T) {
	t.Parallel()

	owned := orders.Order{ID: "o1", UserID: "u1", State: orders.StatePending}

	t.Run("owner sees the order", func(t *testing.T) {
		h := newOrdersRouter(&stubOrderService{order: owned}, &stubMoveService{}, &stubTransitionLog{})
		rec := doReq(t, h, http.MethodGet, "/orders/o1", "", asUser("u1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("another user's order reads as absent", func(t *testing.T) {
		h := newOrdersRouter(&stubOrderService{order: owned}, &stubMoveService{}, &stubTransitionLog{})
		rec := doReq(t, h, http.MethodGet, "/orders/o1", "", asUser("u2"))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("staff sees any order", func(t *testing.T) {
		h := newOrdersRouter(&stubOrderService{order: owned}, &stubMoveService{}, &stubTransitionLog{})
		rec := doReq(t, h, http.MethodGet, "/orders/o1", "", asStaff("staff-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}

func TestListByPartitionHandler(t *testing.T) {
	t.Parallel()

	t.Run("staff lists a partition", func(t *testing.T) {
		svc := &stubOrderService{list: []orders.Order{{ID: "o1"}, {ID: "o2"}}}
		h := newOrdersRouter(svc, &stubMoveService{}, &stubTransitionLog{})
		rec := doReq(t, h, http.MethodGet, "/orders?partition=pending", "", asStaff("staff-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("unknown partition", func(t *testing.T) {
		svc := &stubOrderService{listErr: orders.ErrInvalidInput}
		h := newOrdersRouter(svc, &stubMoveService{}, &stubTransitionLog{})
		rec := doReq(t, h, http.MethodGet, "/orders?partition=limbo", "", asStaff("staff-1"))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})
}

func TestReconcileHandler(t *testing.T) {
	t.Parallel()

	engine := &stubMoveService{torn: []orders.TornMoveError{
		{OrderID: "o1", State: orders.StatePending, LoggedState: orders.StateAccepted},
	}}
	h := newOrdersRouter(&stubOrderService{}, engine, &stubTransitionLog{})

	rec := doReq(t, h, http.MethodPost, "/admin/reconcile", "", asStaff("staff-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Fatalf("expected count 1, got %s", rec.Body.String())
	}
}
