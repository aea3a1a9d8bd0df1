/*
validate.go - Structural line validation and option derivation

PURPOSE:
  Reports the problems that ledger.go silently tolerates. Validation and
  ledger building are two independent passes over the same data: the
  ledger never errors, the validator never skips. Keeping them separate
  avoids any ambiguity about whether a malformed line silently vanishes
  from computed totals - it vanishes from the ledger AND shows up here.

RULES (each independent; several may fire at once):
  - sku_code required
  - from and to endpoints each required (fields per scope)
  - from and to must not be identical
  - endpoint values must come from the supplied option sets, when given
  - qty must parse to a finite value greater than zero; plan lines
    additionally require whole units, channel moves accept fractions

SEE ALSO:
  - ledger.go: The tolerant counterpart of this file
*/
package engine

import "strings"

// =============================================================================
// FIELD ERRORS
// =============================================================================

// FieldErrors maps a field name to a human-readable message. An empty map
// means the line is valid.
type FieldErrors map[string]string

// Field names reported by Rules.Validate.
const (
	FieldSKUCode       = "sku_code"
	FieldFromWarehouse = "from_warehouse"
	FieldFromChannel   = "from_channel"
	FieldToWarehouse   = "to_warehouse"
	FieldToChannel     = "to_channel"
	FieldQty           = "qty"
)

// fieldOrder fixes which error counts as "first" when several fire.
var fieldOrder = []string{
	FieldSKUCode,
	FieldFromWarehouse,
	FieldFromChannel,
	FieldToWarehouse,
	FieldToChannel,
	FieldQty,
}

// First returns a deterministic first error from the map, for surfacing
// one message when a save is rejected. Empty strings when the map is
// empty.
func (fe FieldErrors) First() (field, message string) {
	for _, f := range fieldOrder {
		if msg, ok := fe[f]; ok {
			return f, msg
		}
	}
	for f, msg := range fe {
		return f, msg
	}
	return "", ""
}

// =============================================================================
// OPTION SET
// =============================================================================

// OptionSet holds the endpoint values a line editor may choose from.
// Derived, not configured: see DeriveOptions.
type OptionSet struct {
	Warehouses []string
	Channels   []string
}

// HasWarehouse reports membership by exact equality.
func (o *OptionSet) HasWarehouse(name string) bool {
	for _, w := range o.Warehouses {
		if w == name {
			return true
		}
	}
	return false
}

// HasChannel reports membership by exact equality.
func (o *OptionSet) HasChannel(name string) bool {
	for _, c := range o.Channels {
		if c == name {
			return true
		}
	}
	return false
}

// DeriveOptions computes the selectable endpoint values by scanning the
// base rows plus all currently-held lines. Including the lines means a
// value referenced only by a draft stays selectable in its own editor
// instead of disappearing from the dropdown that produced it. Pure
// function; call once per render, no hidden shared cache.
func DeriveOptions(baseRows []MatrixRow, lines []MovementLine) OptionSet {
	warehouses := make(map[string]struct{})
	channels := make(map[string]struct{})

	add := func(set map[string]struct{}, v string) {
		if strings.TrimSpace(v) != "" {
			set[v] = struct{}{}
		}
	}

	for _, row := range baseRows {
		add(warehouses, row.WarehouseName)
		add(channels, row.Channel)
	}
	for _, line := range lines {
		add(warehouses, line.From.Warehouse)
		add(warehouses, line.To.Warehouse)
		add(channels, line.From.Channel)
		add(channels, line.To.Channel)
	}

	opts := OptionSet{
		Warehouses: make([]string, 0, len(warehouses)),
		Channels:   make([]string, 0, len(channels)),
	}
	for w := range warehouses {
		opts.Warehouses = append(opts.Warehouses, w)
	}
	for c := range channels {
		opts.Channels = append(opts.Channels, c)
	}
	SortStrings(opts.Warehouses)
	SortStrings(opts.Channels)
	return opts
}

// =============================================================================
// RULES
// =============================================================================

// Rules configures line validation for one editor. Options may be nil,
// in which case membership checks are skipped.
type Rules struct {
	Scope      Scope
	IntegerQty bool
	Options    *OptionSet
}

// Validate checks a single line against every rule. All violated rules
// are reported together. Pure function of its inputs.
func (r Rules) Validate(line MovementLine) FieldErrors {
	errs := make(FieldErrors)

	if strings.TrimSpace(line.SKUCode) == "" {
		errs[FieldSKUCode] = "SKU code is required"
	}

	r.validateEndpoint(errs, line.From, FieldFromWarehouse, FieldFromChannel)
	r.validateEndpoint(errs, line.To, FieldToWarehouse, FieldToChannel)

	// Identical endpoints only matter when both are fully specified;
	// missing fields already have their own errors above.
	if r.Scope.endpointComplete(line.From) && r.Scope.endpointComplete(line.To) {
		identical := line.From.Channel == line.To.Channel
		if r.Scope == ScopeNetwork {
			identical = identical && line.From.Warehouse == line.To.Warehouse
		}
		if identical {
			errs[FieldToChannel] = "destination must differ from source"
		}
	}

	if qty, ok := ParseQty(line.Qty); !ok {
		errs[FieldQty] = "quantity must be a number greater than zero"
	} else if r.IntegerQty && !qty.IsInteger() {
		errs[FieldQty] = "quantity must be a whole number"
	}

	return errs
}

func (r Rules) validateEndpoint(errs FieldErrors, ep Endpoint, warehouseField, channelField string) {
	if r.Scope == ScopeNetwork {
		if strings.TrimSpace(ep.Warehouse) == "" {
			errs[warehouseField] = "warehouse is required"
		} else if r.Options != nil && !r.Options.HasWarehouse(ep.Warehouse) {
			errs[warehouseField] = "unknown warehouse"
		}
	}
	if strings.TrimSpace(ep.Channel) == "" {
		errs[channelField] = "channel is required"
	} else if r.Options != nil && !r.Options.HasChannel(ep.Channel) {
		errs[channelField] = "unknown channel"
	}
}
