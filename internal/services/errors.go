package services

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrNoComponent        = errors.New("bom item has no component")
	ErrAlreadyAllocated   = errors.New("bom item already allocated")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidBoardsCount = errors.New("boards count must be at least 1")
	ErrInvalidQuantity    = errors.New("quantity must be at least 1")
	ErrExceedsReservation = errors.New("quantity exceeds the remaining reservation")
)

// StockError reports a line that could not be reserved for lack of stock
type StockError struct {
	Component string
	Required  int
	Available int
}

func (e *StockError) Error() string {
	return ErrInsufficientStock.Error()
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}
