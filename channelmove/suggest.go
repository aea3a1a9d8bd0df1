/*
suggest.go - Greedy per-day channel rebalancing suggestions

PURPOSE:
  Walks the daily pivot of a SKU/warehouse and suggests moves that bring
  negative-stock channels back above zero using channels with stock to
  spare. Donors keep a safety buffer (average outbound times a configured
  number of days), tiny moves below the minimum quantity are skipped, and
  suggested dates are shifted earlier by the lead time when the window
  allows it.
*/
package channelmove

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockflow/psi-planner/engine"
)

// =============================================================================
// CONFIG
// =============================================================================

// SuggestConfig holds the runtime tunables for suggestion generation.
// Zero value: no lead time, no buffer, no minimum, no priorities.
type SuggestConfig struct {
	// LeadTimeDays shifts each suggestion earlier so the stock arrives by
	// the deficit day. Clamped to the first day present in the data.
	LeadTimeDays int

	// SafetyBufferDays keeps each donor channel holding this many days of
	// its average outbound.
	SafetyBufferDays decimal.Decimal

	// MinMoveQty drops suggestions smaller than this.
	MinMoveQty decimal.Decimal

	// PriorityChannels orders deficit channels: listed channels are
	// filled first, in list order. Compared case-insensitively.
	PriorityChannels []string
}

// priorityIndex returns the fill priority of a channel: its position in
// the priority list, or the list length for unlisted channels.
func (c SuggestConfig) priorityIndex(channel string) int {
	lowered := strings.ToLower(channel)
	for i, p := range c.PriorityChannels {
		if strings.ToLower(strings.TrimSpace(p)) == lowered {
			return i
		}
	}
	return len(c.PriorityChannels)
}

// =============================================================================
// SUGGESTION
// =============================================================================

// Suggestion is one proposed channel move on a specific day.
type Suggestion struct {
	Date          time.Time
	SKUCode       string
	SKUName       string
	WarehouseName string
	FromChannel   string
	ToChannel     string
	Qty           decimal.Decimal
}

// =============================================================================
// SUGGEST
// =============================================================================

// Suggest scans the daily rows and proposes channel moves per
// SKU/warehouse/day. Output is sorted by (date, sku, warehouse, from,
// to) and deterministic for a given input.
func Suggest(rows []engine.DayRow, cfg SuggestConfig) []Suggestion {
	type group struct{ sku, warehouse string }
	grouped := make(map[group][]engine.DayRow)
	for _, row := range rows {
		g := group{row.SKUCode, row.WarehouseName}
		grouped[g] = append(grouped[g], row)
	}

	var suggestions []Suggestion

	for g, entries := range grouped {
		channelSet := make(map[string]struct{})
		dateSet := make(map[time.Time]struct{})
		byChannelDate := make(map[string]map[time.Time]engine.DayRow)
		skuName := ""
		for _, row := range entries {
			channelSet[row.Channel] = struct{}{}
			day := row.Date
			dateSet[day] = struct{}{}
			if byChannelDate[row.Channel] == nil {
				byChannelDate[row.Channel] = make(map[time.Time]engine.DayRow)
			}
			byChannelDate[row.Channel][day] = row
			if skuName == "" {
				skuName = row.SKUName
			}
		}
		if len(channelSet) < 2 {
			continue
		}

		channels := make([]string, 0, len(channelSet))
		for c := range channelSet {
			channels = append(channels, c)
		}
		engine.SortStrings(channels)

		dates := make([]time.Time, 0, len(dateSet))
		for d := range dateSet {
			dates = append(dates, d)
		}
		sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

		buffers := make(map[string]decimal.Decimal, len(channels))
		for _, channel := range channels {
			buffers[channel] = averageOutbound(entries, channel).Mul(cfg.SafetyBufferDays)
		}

		for _, day := range dates {
			stocks := make(map[string]decimal.Decimal, len(channels))
			for _, channel := range channels {
				if row, ok := byChannelDate[channel][day]; ok {
					stocks[channel] = row.StockClosing
				} else {
					stocks[channel] = decimal.Zero
				}
			}

			var deficits, surpluses []string
			for _, channel := range channels {
				switch {
				case stocks[channel].IsNegative():
					deficits = append(deficits, channel)
				case stocks[channel].IsPositive():
					surpluses = append(surpluses, channel)
				}
			}
			if len(deficits) == 0 || len(surpluses) == 0 {
				continue
			}

			sort.SliceStable(deficits, func(i, j int) bool {
				pi, pj := cfg.priorityIndex(deficits[i]), cfg.priorityIndex(deficits[j])
				if pi != pj {
					return pi < pj
				}
				return stocks[deficits[i]].LessThan(stocks[deficits[j]])
			})
			sort.SliceStable(surpluses, func(i, j int) bool {
				return stocks[surpluses[i]].GreaterThan(stocks[surpluses[j]])
			})

			type pair struct{ from, to string }
			planned := make(map[pair]decimal.Decimal)
			var plannedOrder []pair

			for _, deficit := range deficits {
				need := stocks[deficit].Neg()
				if !need.IsPositive() {
					continue
				}
				for _, surplus := range surpluses {
					if surplus == deficit {
						continue
					}
					available := stocks[surplus].Sub(buffers[surplus])
					if !available.IsPositive() {
						continue
					}
					qty := decimal.Min(available, need)
					if qty.LessThan(cfg.MinMoveQty) {
						continue
					}
					stocks[surplus] = stocks[surplus].Sub(qty)
					stocks[deficit] = stocks[deficit].Add(qty)
					need = need.Sub(qty)
					p := pair{surplus, deficit}
					if _, ok := planned[p]; !ok {
						plannedOrder = append(plannedOrder, p)
					}
					planned[p] = planned[p].Add(qty)
					if !need.IsPositive() {
						break
					}
				}
			}
			if len(planned) == 0 {
				continue
			}

			effective := day
			if cfg.LeadTimeDays > 0 {
				shifted := day.AddDate(0, 0, -cfg.LeadTimeDays)
				if !shifted.Before(dates[0]) {
					effective = shifted
				}
			}

			for _, p := range plannedOrder {
				suggestions = append(suggestions, Suggestion{
					Date:          effective,
					SKUCode:       g.sku,
					SKUName:       skuName,
					WarehouseName: g.warehouse,
					FromChannel:   p.from,
					ToChannel:     p.to,
					Qty:           planned[p],
				})
			}
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		a, b := suggestions[i], suggestions[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.SKUCode != b.SKUCode {
			return a.SKUCode < b.SKUCode
		}
		if a.WarehouseName != b.WarehouseName {
			return a.WarehouseName < b.WarehouseName
		}
		if a.FromChannel != b.FromChannel {
			return a.FromChannel < b.FromChannel
		}
		return a.ToChannel < b.ToChannel
	})
	return suggestions
}

// averageOutbound is the mean of a channel's positive outbound days.
func averageOutbound(rows []engine.DayRow, channel string) decimal.Decimal {
	total := decimal.Zero
	count := 0
	for _, row := range rows {
		if row.Channel == channel && row.OutboundQty.IsPositive() {
			total = total.Add(row.OutboundQty)
			count++
		}
	}
	if count == 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(count)))
}
