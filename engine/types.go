/*
Package engine provides the stock-movement reconciliation engine.

PURPOSE:
  This package contains the pure computation core of the planner: given a
  server-fetched baseline matrix of stock positions per cell, the set of
  movement lines already persisted on the server, and the set of lines the
  user is currently drafting, it computes the stock position the matrix
  would show if the draft were committed - without mutating the baseline
  and without double-counting lines that are both baked into the fetched
  matrix and about to be replaced by the draft.

KEY CONCEPTS IN THIS FILE (types.go):
  - CellKey:      Identity for aggregation (sku x warehouse x channel)
  - Scope:        Which cell-key variant is in play (network vs channel)
  - MovementLine: One directional transfer between two endpoints
  - MatrixRow:    One cell's stock position, baseline or simulated

DESIGN PRINCIPLES:
  1. Purity: No I/O, no shared mutable state. Callers own the data.
  2. Precision: Quantities are decimal.Decimal, never float64.
  3. Tolerance vs reporting: building a ledger tolerates malformed lines
     (they contribute zero); reporting them is validate.go's job. The two
     passes never get conflated.
  4. Exact identity: cell keys compare by exact string equality. The
     engine performs no trimming or case folding - callers trim first.

SEE ALSO:
  - ledger.go:    Signed per-cell quantity aggregation
  - overlay.go:   Baseline overlay simulation
  - validate.go:  Structural line validation and option derivation
  - recommend.go: Greedy transfer recommendations
*/
package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCOPE - Which cell-key variant is in play
// =============================================================================

// Scope selects the aggregation identity. Network scope keys cells by
// (sku, warehouse, channel) and requires warehouse+channel on both line
// endpoints. Channel scope keys cells by (sku, channel) for moves within a
// single warehouse and day; line endpoints carry only a channel.
type Scope int

const (
	ScopeNetwork Scope = iota
	ScopeChannel
)

// Key builds the cell key for an endpoint under this scope.
// Values are used exactly as given; no normalization happens here.
func (s Scope) Key(skuCode string, ep Endpoint) CellKey {
	if s == ScopeChannel {
		return CellKey{SKUCode: skuCode, Channel: ep.Channel}
	}
	return CellKey{SKUCode: skuCode, Warehouse: ep.Warehouse, Channel: ep.Channel}
}

// RowKey builds the cell key for a matrix row under this scope.
func (s Scope) RowKey(row MatrixRow) CellKey {
	if s == ScopeChannel {
		return CellKey{SKUCode: row.SKUCode, Channel: row.Channel}
	}
	return CellKey{SKUCode: row.SKUCode, Warehouse: row.WarehouseName, Channel: row.Channel}
}

// endpointComplete reports whether every field the scope requires is
// non-empty after trimming. Trimming is only used for the emptiness test;
// key building always uses the raw values.
func (s Scope) endpointComplete(ep Endpoint) bool {
	if strings.TrimSpace(ep.Channel) == "" {
		return false
	}
	if s == ScopeNetwork && strings.TrimSpace(ep.Warehouse) == "" {
		return false
	}
	return true
}

// =============================================================================
// CELL KEY - Aggregation identity
// =============================================================================

// CellKey identifies one stock position. Under channel scope the Warehouse
// component is empty. Identity is exact string equality on all components.
type CellKey struct {
	SKUCode   string
	Warehouse string
	Channel   string
}

// =============================================================================
// MOVEMENT LINE - One directional transfer
// =============================================================================

// Endpoint is one end of a movement. Under channel scope only Channel is
// set.
type Endpoint struct {
	Warehouse string
	Channel   string
}

// MovementLine is one directional transfer of stock. Qty is kept as the
// raw edit buffer: draft lines come straight from form inputs and may hold
// anything. A line with an unresolved endpoint or a qty that does not
// parse to a finite value greater than zero is inert - it contributes
// nothing to a ledger and fails validation, but stays in the caller's
// working set.
type MovementLine struct {
	SKUCode  string
	From     Endpoint
	To       Endpoint
	Qty      string
	IsManual bool
	Reason   string
}

// ParseQty parses a raw quantity. ok is false when the value does not
// parse or is not strictly positive.
func ParseQty(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	if !d.IsPositive() {
		return decimal.Zero, false
	}
	return d, true
}

// resolved reports whether the line can contribute to a ledger under the
// given scope: sku present, both endpoints complete, qty parseable and
// positive.
func (l MovementLine) resolved(s Scope) (qty decimal.Decimal, ok bool) {
	if strings.TrimSpace(l.SKUCode) == "" {
		return decimal.Zero, false
	}
	if !s.endpointComplete(l.From) || !s.endpointComplete(l.To) {
		return decimal.Zero, false
	}
	return ParseQty(l.Qty)
}

// =============================================================================
// MATRIX ROW - One cell's stock position
// =============================================================================

// MatrixRow is one cell's stock position. As a baseline row it arrives
// from the server with Move holding the net effect of persisted transfers
// at fetch time and StockFin = StockClosing + Move. As a simulated row
// (overlay.go) Move is recomputed and StockFin/GapAfter derived from it.
//
// Gap is always StockClosing - Stdstock: negative is a shortfall against
// target stock, positive a surplus.
type MatrixRow struct {
	SKUCode       string
	SKUName       string
	WarehouseName string
	Channel       string
	Category1     string
	Category2     string
	Category3     string

	StockAtAnchor decimal.Decimal
	InboundQty    decimal.Decimal
	OutboundQty   decimal.Decimal
	StockClosing  decimal.Decimal
	Stdstock      decimal.Decimal
	Gap           decimal.Decimal
	Move          decimal.Decimal
	StockFin      decimal.Decimal
	GapAfter      decimal.Decimal
}

// DayRow is one cell's position on a single day, used by the day-scoped
// channel-move suggestions. It is a thin slice of the PSI pivot: just
// enough to find deficit and surplus channels.
type DayRow struct {
	Date          time.Time
	SKUCode       string
	SKUName       string
	WarehouseName string
	Channel       string
	StockClosing  decimal.Decimal
	OutboundQty   decimal.Decimal
}
