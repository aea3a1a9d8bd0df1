/*
errors.go - Centralized error types for the planner

PURPOSE:
  All sentinel and structured errors in one place. Domain packages and
  the HTTP layer wrap and classify these instead of matching on strings.

USAGE:
  if errors.Is(err, engine.ErrPlanNotFound) { ... }

  var lineErr *engine.LineError
  if errors.As(err, &lineErr) { ... }
*/
package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSessionNotFound is returned when a referenced planning session
	// does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrPlanNotFound is returned when a referenced transfer plan does
	// not exist.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrTransferNotFound is returned when a channel transfer key does
	// not match a record.
	ErrTransferNotFound = errors.New("channel transfer not found")

	// ErrTransferExists is returned when creating a channel transfer
	// whose key already exists.
	ErrTransferExists = errors.New("channel transfer already exists")

	// ErrInvalidDateRange is returned when a window ends before it starts.
	ErrInvalidDateRange = errors.New("invalid date range: end before start")

	// ErrIdenticalEndpoints is returned when a movement's source and
	// destination are the same cell.
	ErrIdenticalEndpoints = errors.New("from and to endpoints are identical")

	// ErrDuplicateLineID is returned when a save batch holds the same
	// line id twice.
	ErrDuplicateLineID = errors.New("duplicate line id")

	// ErrValidationFailed is returned when a save batch contains a line
	// that fails structural validation. The save applies nothing.
	ErrValidationFailed = errors.New("line validation failed")

	// ErrInsufficientStock is returned when a save batch would move more
	// out of a cell than the cell held at the window anchor.
	ErrInsufficientStock = errors.New("insufficient stock at anchor")

	// ErrNoActivePlan is returned when an editor operation needs a loaded
	// plan and none is loaded.
	ErrNoActivePlan = errors.New("no plan loaded")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// LineError reports the first validation failure that blocked a save.
// Index is the position of the offending line in the draft.
type LineError struct {
	Index   int
	Field   string
	Message string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Index, e.Field, e.Message)
}

func (e *LineError) Unwrap() error { return ErrValidationFailed }

// InsufficientStockError reports which cell a save batch would overdraw.
type InsufficientStockError struct {
	Key       CellKey
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock at anchor for SKU=%s %s %s: requested %s, available %s",
		e.Key.SKUCode, e.Key.Warehouse, e.Key.Channel, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrTransferNotFound)
}

// IsClientError reports whether the error is due to invalid client input
// rather than a server-side failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrIdenticalEndpoints) ||
		errors.Is(err, ErrDuplicateLineID) ||
		errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrInsufficientStock)
}
