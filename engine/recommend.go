/*
recommend.go - Greedy transfer recommendations

PURPOSE:
  Seeds a draft transfer plan from the aggregated matrix: for every SKU,
  shortages at each warehouse's main channel are filled from surplus
  cells, intra-warehouse donors first, then other warehouses. Donors give
  at most their surplus over standard stock and never more stock than
  they actually held at the window anchor.

POLICY:
  The reallocation policy tunes the fill without changing its shape:
  - Rounding:          how fractional move quantities snap to whole units
  - TakeFromOtherMain: whether another warehouse's main channel may donate
  - AllowOverfill:     donors may give past their surplus, down to their
                       standard-stock floor
  - FairShare:         distribute a shortage across donors proportionally
                       instead of draining the largest donor first

SEE ALSO:
  - overlay.go: Simulates the plan these recommendations seed
*/
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// REALLOCATION POLICY
// =============================================================================

type RoundingMode string

const (
	RoundFloor RoundingMode = "floor"
	RoundHalf  RoundingMode = "round"
	RoundCeil  RoundingMode = "ceil"
)

type FairShareMode string

const (
	FairShareOff          FairShareMode = "off"
	FairShareRatioClosing FairShareMode = "equalize_ratio_closing"
	FairShareRatioStart   FairShareMode = "equalize_ratio_start"
)

// Policy holds the persisted reallocation policy.
type Policy struct {
	TakeFromOtherMain bool
	Rounding          RoundingMode
	AllowOverfill     bool
	FairShare         FairShareMode
	UpdatedAt         *time.Time
	UpdatedBy         string
}

// DefaultPolicy is the behavior before anyone has saved a policy row.
func DefaultPolicy() Policy {
	return Policy{
		TakeFromOtherMain: false,
		Rounding:          RoundFloor,
		AllowOverfill:     false,
		FairShare:         FairShareOff,
	}
}

// Valid reports whether the enum fields hold known values.
func (p Policy) Valid() bool {
	switch p.Rounding {
	case RoundFloor, RoundHalf, RoundCeil:
	default:
		return false
	}
	switch p.FairShare {
	case FairShareOff, FairShareRatioClosing, FairShareRatioStart:
	default:
		return false
	}
	return true
}

// roundQty snaps a positive quantity to whole units per the policy.
func (p Policy) roundQty(qty decimal.Decimal) decimal.Decimal {
	switch p.Rounding {
	case RoundCeil:
		return qty.RoundCeil(0)
	case RoundHalf:
		return qty.Round(0)
	default:
		return qty.RoundFloor(0)
	}
}

// =============================================================================
// RECOMMENDED MOVE
// =============================================================================

// RecommendedMove is one suggested transfer between two cells.
type RecommendedMove struct {
	SKUCode       string
	FromWarehouse string
	FromChannel   string
	ToWarehouse   string
	ToChannel     string
	Qty           decimal.Decimal
	Reason        string
}

// =============================================================================
// CELL STATE - Donor-side bookkeeping during the fill
// =============================================================================

type cellState struct {
	stockAtAnchor    decimal.Decimal
	stockClosing     decimal.Decimal
	stdstock         decimal.Decimal
	surplusRemaining decimal.Decimal
	allocatedOut     decimal.Decimal
}

// availableSurplus is what the cell can still give: its remaining surplus,
// capped by the stock it actually held at the anchor minus what previous
// fills already took.
func (c *cellState) availableSurplus() decimal.Decimal {
	stockRemaining := c.stockAtAnchor.Sub(c.allocatedOut)
	if !stockRemaining.IsPositive() || !c.surplusRemaining.IsPositive() {
		return decimal.Zero
	}
	if c.surplusRemaining.LessThan(stockRemaining) {
		return c.surplusRemaining
	}
	return stockRemaining
}

func (c *cellState) allocate(qty decimal.Decimal) {
	c.allocatedOut = c.allocatedOut.Add(qty)
	c.surplusRemaining = c.surplusRemaining.Sub(qty)
	if c.surplusRemaining.IsNegative() {
		c.surplusRemaining = decimal.Zero
	}
}

type donorRef struct {
	warehouse string
	channel   string
	state     *cellState
}

// =============================================================================
// RECOMMEND
// =============================================================================

// Recommend builds suggested transfer moves from the aggregated matrix.
// mainChannels maps each warehouse to its main sales channel; shortages
// are measured there and filled largest first. Output order is
// deterministic for a given input.
func Recommend(rows []MatrixRow, mainChannels map[string]string, policy Policy) []RecommendedMove {
	type whChannel struct{ warehouse, channel string }

	cellsBySKU := make(map[string]map[whChannel]*cellState)
	for _, row := range rows {
		cells, ok := cellsBySKU[row.SKUCode]
		if !ok {
			cells = make(map[whChannel]*cellState)
			cellsBySKU[row.SKUCode] = cells
		}
		state := &cellState{
			stockAtAnchor: maxZero(row.StockAtAnchor),
			stockClosing:  maxZero(row.StockClosing),
			stdstock:      maxZero(row.Stdstock),
		}
		if policy.AllowOverfill {
			// Overfilling lets a donor go past its surplus, but never
			// below its standard-stock floor.
			state.surplusRemaining = maxZero(state.stockAtAnchor.Sub(state.stdstock))
		} else {
			state.surplusRemaining = maxZero(row.Gap)
		}
		cells[whChannel{row.WarehouseName, row.Channel}] = state
	}

	skuCodes := make([]string, 0, len(cellsBySKU))
	for sku := range cellsBySKU {
		skuCodes = append(skuCodes, sku)
	}
	SortStrings(skuCodes)

	var moves []RecommendedMove

	for _, skuCode := range skuCodes {
		cells := cellsBySKU[skuCode]

		type shortage struct {
			warehouse   string
			mainChannel string
			amount      decimal.Decimal
		}
		var shortages []shortage
		for warehouse, mainChannel := range mainChannels {
			cell, ok := cells[whChannel{warehouse, mainChannel}]
			if !ok {
				continue
			}
			gap := cell.stockClosing.Sub(cell.stdstock)
			if gap.IsNegative() {
				shortages = append(shortages, shortage{warehouse, mainChannel, gap.Neg()})
			}
		}
		sort.SliceStable(shortages, func(i, j int) bool {
			if !shortages[i].amount.Equal(shortages[j].amount) {
				return shortages[i].amount.GreaterThan(shortages[j].amount)
			}
			return shortages[i].warehouse < shortages[j].warehouse
		})

		for _, short := range shortages {
			remaining := short.amount

			emit := func(reason string) func(d donorRef, qty decimal.Decimal) {
				return func(d donorRef, qty decimal.Decimal) {
					moves = append(moves, RecommendedMove{
						SKUCode:       skuCode,
						FromWarehouse: d.warehouse,
						FromChannel:   d.channel,
						ToWarehouse:   short.warehouse,
						ToChannel:     short.mainChannel,
						Qty:           qty,
						Reason:        reason,
					})
				}
			}

			// Intra-warehouse fulfilment first.
			var intra []donorRef
			for key, state := range cells {
				if key.warehouse == short.warehouse && key.channel != short.mainChannel &&
					state.availableSurplus().IsPositive() {
					intra = append(intra, donorRef{key.warehouse, key.channel, state})
				}
			}
			remaining = policy.fill(intra, remaining, emit("fill main channel (intra)"))
			if !remaining.IsPositive() {
				continue
			}

			var inter []donorRef
			for key, state := range cells {
				if key.warehouse == short.warehouse || !state.availableSurplus().IsPositive() {
					continue
				}
				if !policy.TakeFromOtherMain && mainChannels[key.warehouse] == key.channel {
					continue
				}
				inter = append(inter, donorRef{key.warehouse, key.channel, state})
			}
			policy.fill(inter, remaining, emit("fill main channel (inter)"))
		}
	}

	return moves
}

// fill drains donors to cover need, returning what is still uncovered.
// With fair share off, the largest donor goes first and gives everything
// it can. With fair share on, a proportional pass splits the need across
// donors by their weight stock, then a greedy pass mops up rounding
// leftovers.
func (p Policy) fill(donors []donorRef, need decimal.Decimal, emit func(donorRef, decimal.Decimal)) decimal.Decimal {
	if !need.IsPositive() || len(donors) == 0 {
		return need
	}

	sort.SliceStable(donors, func(i, j int) bool {
		ai, aj := donors[i].state.availableSurplus(), donors[j].state.availableSurplus()
		if !ai.Equal(aj) {
			return ai.GreaterThan(aj)
		}
		if donors[i].warehouse != donors[j].warehouse {
			return donors[i].warehouse < donors[j].warehouse
		}
		return donors[i].channel < donors[j].channel
	})

	if p.FairShare != FairShareOff {
		need = p.fillProportional(donors, need, emit)
		if !need.IsPositive() {
			return need
		}
	}

	for _, d := range donors {
		if !need.IsPositive() {
			break
		}
		available := d.state.availableSurplus()
		if !available.IsPositive() {
			continue
		}
		qty := decimal.Min(available, need)
		qty = p.roundQty(qty)
		if qty.GreaterThan(available) {
			qty = available.RoundFloor(0)
		}
		if !qty.IsPositive() {
			continue
		}
		emit(d, qty)
		d.state.allocate(qty)
		need = need.Sub(qty)
	}
	return need
}

// fillProportional splits need across donors by weight stock in one pass.
func (p Policy) fillProportional(donors []donorRef, need decimal.Decimal, emit func(donorRef, decimal.Decimal)) decimal.Decimal {
	weight := func(s *cellState) decimal.Decimal {
		if p.FairShare == FairShareRatioStart {
			return s.stockAtAnchor
		}
		return s.stockClosing
	}

	total := decimal.Zero
	for _, d := range donors {
		if d.state.availableSurplus().IsPositive() {
			total = total.Add(weight(d.state))
		}
	}
	if !total.IsPositive() {
		return need
	}

	target := need
	for _, d := range donors {
		available := d.state.availableSurplus()
		if !available.IsPositive() {
			continue
		}
		share := target.Mul(weight(d.state)).Div(total)
		qty := decimal.Min(share, available, need)
		qty = p.roundQty(qty)
		if qty.GreaterThan(available) {
			qty = available.RoundFloor(0)
		}
		if !qty.IsPositive() {
			continue
		}
		emit(d, qty)
		d.state.allocate(qty)
		need = need.Sub(qty)
		if !need.IsPositive() {
			break
		}
	}
	return need
}

func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
