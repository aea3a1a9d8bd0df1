/*
ledger.go - Signed per-cell quantity aggregation

PURPOSE:
  Converts a list of movement lines into a signed net quantity per cell.
  For every resolvable line the from cell is debited and the to cell is
  credited by the same amount, so a ledger built from an internally
  consistent set of lines always sums to zero.

INVARIANTS:
  1. CONSERVATION: every debit has a matching credit; Total() is zero.
  2. TOLERANCE: malformed lines contribute nothing and raise nothing
     here. Reporting them is validate.go's concern.
  3. PURITY: no side effects, deterministic for a given input.

SEE ALSO:
  - overlay.go:  Layers ledgers over a baseline matrix
  - validate.go: Reports the lines this file silently skips
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// LEDGER - Cell key to signed net quantity
// =============================================================================

// Ledger maps a cell to the signed net quantity contributed by a set of
// movement lines. Missing keys read as zero.
type Ledger map[CellKey]decimal.Decimal

// Get returns the net delta for a cell, zero when absent.
func (l Ledger) Get(key CellKey) decimal.Decimal {
	if d, ok := l[key]; ok {
		return d
	}
	return decimal.Zero
}

// Total sums all entries. For a ledger built from consistent lines this
// is always zero.
func (l Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, d := range l {
		total = total.Add(d)
	}
	return total
}

// =============================================================================
// BUILDER
// =============================================================================

// BuildLedger aggregates lines into a ledger under the given scope.
//
// A line is excluded when its sku or any endpoint field the scope requires
// trims to empty, or when its qty does not parse to a value greater than
// zero. Excluded lines contribute nothing; they are not errors here.
// Multiple lines touching the same cell accumulate additively. O(n) in the
// number of lines; an empty or fully-invalid input yields an empty ledger.
func BuildLedger(scope Scope, lines []MovementLine) Ledger {
	ledger := make(Ledger, len(lines)*2)
	for _, line := range lines {
		qty, ok := line.resolved(scope)
		if !ok {
			continue
		}
		from := scope.Key(line.SKUCode, line.From)
		to := scope.Key(line.SKUCode, line.To)
		ledger[from] = ledger.Get(from).Sub(qty)
		ledger[to] = ledger.Get(to).Add(qty)
	}
	return ledger
}
