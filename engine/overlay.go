/*
overlay.go - Baseline overlay simulation

PURPOSE:
  Computes what the stock matrix would look like if the draft lines were
  committed. The baseline rows are never mutated; a fresh simulated slice
  is produced on every call and is meant to be discarded and rebuilt
  whenever any input changes.

COMBINATION MODES:
  Delta:    move = baseMove - savedMove + draftMove. Used when the fetched
            baseline already has the currently-loaded plan's moves baked
            in. Subtracting the saved ledger first means editing a plan
            and re-simulating never double-counts the plan's own prior
            contribution.
  Additive: move = baseMove + draftMove. Used when the base snapshot has
            no transfer history baked in (a freshly aggregated summary);
            the saved ledger is ignored.

ORDERING:
  Result rows are sorted by (sku, warehouse, channel) with an und-locale
  collator, component by component, so display order is stable and
  reproducible across runs and hosts.

SEE ALSO:
  - ledger.go: The two ledgers this file layers over the baseline
*/
package engine

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// =============================================================================
// MODE - How saved and draft ledgers combine with the baseline
// =============================================================================

// Mode selects how the saved and draft ledgers combine with the fetched
// baseline. It is an explicit constructor input, never inferred from
// surrounding state.
type Mode int

const (
	// ModeDelta undoes the saved ledger before applying the draft.
	ModeDelta Mode = iota
	// ModeAdditive applies the draft on top of the baseline as-is.
	ModeAdditive
)

// =============================================================================
// SIMULATOR
// =============================================================================

// Simulator layers movement ledgers over a baseline matrix snapshot.
type Simulator struct {
	Scope Scope
	Mode  Mode
}

// skuDescriptor carries the descriptive fields looked up per SKU for
// cells that exist only because a line references them.
type skuDescriptor struct {
	name      string
	category1 string
	category2 string
	category3 string
}

// Simulate merges the baseline rows, the already-persisted lines and the
// in-progress draft lines into a simulated matrix. The result covers the
// union of cells appearing in any of the three inputs: a cell may exist
// purely because a draft line references a combination with no prior
// stock data, in which case its stock figures are zero, not null.
func (s Simulator) Simulate(baseRows []MatrixRow, baselineLines, draftLines []MovementLine) []MatrixRow {
	savedLedger := BuildLedger(s.Scope, baselineLines)
	draftLedger := BuildLedger(s.Scope, draftLines)

	byKey := make(map[CellKey]MatrixRow, len(baseRows))
	names := make(map[string]skuDescriptor)
	for _, row := range baseRows {
		byKey[s.Scope.RowKey(row)] = row
		if _, ok := names[row.SKUCode]; !ok && row.SKUName != "" {
			names[row.SKUCode] = skuDescriptor{
				name:      row.SKUName,
				category1: row.Category1,
				category2: row.Category2,
				category3: row.Category3,
			}
		}
	}

	keys := make(map[CellKey]struct{}, len(byKey)+len(savedLedger)+len(draftLedger))
	for key := range byKey {
		keys[key] = struct{}{}
	}
	for key := range savedLedger {
		keys[key] = struct{}{}
	}
	for key := range draftLedger {
		keys[key] = struct{}{}
	}

	result := make([]MatrixRow, 0, len(keys))
	for key := range keys {
		base, hasBase := byKey[key]

		row := MatrixRow{
			SKUCode:       key.SKUCode,
			WarehouseName: key.Warehouse,
			Channel:       key.Channel,
		}
		if hasBase {
			row = base
		} else if desc, ok := names[key.SKUCode]; ok {
			row.SKUName = desc.name
			row.Category1 = desc.category1
			row.Category2 = desc.category2
			row.Category3 = desc.category3
		}

		move := base.Move
		switch s.Mode {
		case ModeDelta:
			move = move.Sub(savedLedger.Get(key)).Add(draftLedger.Get(key))
		case ModeAdditive:
			move = move.Add(draftLedger.Get(key))
		}

		// Gap is a property of the base data alone; only the headroom
		// after the simulated moves depends on the ledgers.
		row.Gap = base.StockClosing.Sub(base.Stdstock)
		row.Move = move
		row.StockFin = base.StockClosing.Add(move)
		row.GapAfter = row.Gap.Add(move)

		result = append(result, row)
	}

	sortRows(result)
	return result
}

// =============================================================================
// ORDERING
// =============================================================================

// sortRows orders rows by (sku, warehouse, channel), component by
// component, using an und-locale collator. Collators keep internal
// buffers, so each sort gets its own.
func sortRows(rows []MatrixRow) {
	col := collate.New(language.Und)
	sort.SliceStable(rows, func(i, j int) bool {
		if c := col.CompareString(rows[i].SKUCode, rows[j].SKUCode); c != 0 {
			return c < 0
		}
		if c := col.CompareString(rows[i].WarehouseName, rows[j].WarehouseName); c != 0 {
			return c < 0
		}
		return col.CompareString(rows[i].Channel, rows[j].Channel) < 0
	})
}

// SortStrings orders a string slice with the same collation used for
// matrix rows, for derived lists such as option sets.
func SortStrings(ss []string) {
	col := collate.New(language.Und)
	sort.SliceStable(ss, func(i, j int) bool {
		return col.CompareString(ss[i], ss[j]) < 0
	})
}
