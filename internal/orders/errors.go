package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrTornMove            = errors.New("torn move")
	ErrReservationConflict = errors.New("reservation conflict")
	ErrConflict            = errors.New("conflict")
)

// Shortfall names a line item the ledger could not cover.
type Shortfall struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// InsufficientStockError carries every short-falling item of a rejected
// decrement. errors.Is(err, ErrInsufficientStock) matches it.
type InsufficientStockError struct {
	Items []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("%s need %d have %d", it.ProductID, it.Required, it.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// TornMoveError reports an order whose stored state disagrees with its
// transition log. Not locally recoverable; an operator must reconcile it.
// errors.Is(err, ErrTornMove) matches it.
type TornMoveError struct {
	OrderID     string `json:"order_id"`
	State       State  `json:"state"`
	LoggedState State  `json:"logged_state"`
}

func (e *TornMoveError) Error() string {
	return fmt.Sprintf("torn move: order %s is %s but transition log says %s", e.OrderID, e.State, e.LoggedState)
}

func (e *TornMoveError) Is(target error) bool {
	return target == ErrTornMove
}
