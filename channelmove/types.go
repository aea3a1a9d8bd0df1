/*
Package channelmove implements the day-scoped channel transfer workflow.

PURPOSE:
  Channel moves rebalance stock between sales channels of a single SKU,
  warehouse and day. The same engine that powers multi-day transfer plans
  is used here with the channel scope (cells keyed sku x channel) and the
  additive combination mode: the day snapshot has no transfer history
  baked in, so the draft ledger applies directly on top of it.

DIFFERENCES FROM PLAN LINES:
  - records are keyed by (session, sku, warehouse, date, from, to)
  - quantities may be fractional
  - endpoints carry only a channel

SEE ALSO:
  - editor.go:  Editing session, same state machine as plan.Editor
  - suggest.go: Greedy per-day rebalancing suggestions
*/
package channelmove

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/psi-planner/engine"
)

// =============================================================================
// TRANSFER RECORD
// =============================================================================

// Transfer is one channel move record. Qty keeps the raw edit buffer.
type Transfer struct {
	SessionID     uuid.UUID
	SKUCode       string
	WarehouseName string
	TransferDate  time.Time
	FromChannel   string
	ToChannel     string
	Qty           string
	Note          string
}

// Movement converts the record to its engine representation.
func (t Transfer) Movement() engine.MovementLine {
	return engine.MovementLine{
		SKUCode: t.SKUCode,
		From:    engine.Endpoint{Channel: t.FromChannel},
		To:      engine.Endpoint{Channel: t.ToChannel},
		Qty:     t.Qty,
		Reason:  t.Note,
	}
}

// Movements converts a slice of records.
func Movements(ts []Transfer) []engine.MovementLine {
	out := make([]engine.MovementLine, len(ts))
	for i, t := range ts {
		out[i] = t.Movement()
	}
	return out
}

// =============================================================================
// DAY KEY AND BACKEND
// =============================================================================

// DayKey scopes one editing session: every record edited under it shares
// the session, SKU, warehouse and date.
type DayKey struct {
	SessionID     uuid.UUID
	SKUCode       string
	WarehouseName string
	Date          time.Time
}

// Backend is the editor's only I/O surface.
type Backend interface {
	// LoadDay returns the persisted transfers for the key plus the day's
	// per-channel stock snapshot. The snapshot has no transfer history
	// baked in.
	LoadDay(ctx context.Context, key DayKey) ([]Transfer, []engine.MatrixRow, error)

	// SaveDay replaces the persisted transfers for the key.
	// All-or-nothing.
	SaveDay(ctx context.Context, key DayKey, transfers []Transfer) error
}
