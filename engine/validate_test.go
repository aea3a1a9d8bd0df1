package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/psi-planner/engine"
)

// =============================================================================
// RULES - NETWORK SCOPE
// =============================================================================

func networkRules(opts *engine.OptionSet) engine.Rules {
	return engine.Rules{Scope: engine.ScopeNetwork, IntegerQty: true, Options: opts}
}

func TestValidate_ValidLine_NoErrors(t *testing.T) {
	errs := networkRules(nil).Validate(line("SKU-1", "Tokyo", "EC", "Osaka", "Retail", "10"))
	assert.Empty(t, errs)
}

func TestValidate_AllRulesReportedTogether(t *testing.T) {
	// GIVEN: A line violating several independent rules at once
	// WHEN: Validating
	// THEN: Every violated rule is reported, not just the first

	errs := networkRules(nil).Validate(engine.MovementLine{
		SKUCode: "  ",
		From:    engine.Endpoint{Warehouse: "", Channel: "EC"},
		To:      engine.Endpoint{Warehouse: "Osaka", Channel: ""},
		Qty:     "abc",
	})

	assert.Contains(t, errs, engine.FieldSKUCode)
	assert.Contains(t, errs, engine.FieldFromWarehouse)
	assert.Contains(t, errs, engine.FieldToChannel)
	assert.Contains(t, errs, engine.FieldQty)
	assert.NotContains(t, errs, engine.FieldFromChannel)
	assert.NotContains(t, errs, engine.FieldToWarehouse)
}

func TestValidate_IdenticalEndpoints_NetworkScope(t *testing.T) {
	// Same warehouse AND same channel is identical; same channel in a
	// different warehouse is a legitimate move.
	errs := networkRules(nil).Validate(line("SKU-1", "Tokyo", "EC", "Tokyo", "EC", "5"))
	assert.Contains(t, errs, engine.FieldToChannel)

	errs = networkRules(nil).Validate(line("SKU-1", "Tokyo", "EC", "Osaka", "EC", "5"))
	assert.Empty(t, errs)
}

func TestValidate_IdenticalEndpoints_SkippedWhenIncomplete(t *testing.T) {
	// An incomplete endpoint already carries its own error; the identity
	// check stays out of the way.
	errs := networkRules(nil).Validate(line("SKU-1", "", "EC", "", "EC", "5"))
	assert.Contains(t, errs, engine.FieldFromWarehouse)
	assert.Contains(t, errs, engine.FieldToWarehouse)
	assert.NotEqual(t, "destination must differ from source", errs[engine.FieldToChannel])
}

func TestValidate_QtyRules(t *testing.T) {
	r := networkRules(nil)

	errs := r.Validate(line("SKU-1", "Tokyo", "EC", "Osaka", "EC", "0"))
	assert.Contains(t, errs, engine.FieldQty)

	errs = r.Validate(line("SKU-1", "Tokyo", "EC", "Osaka", "EC", "-3"))
	assert.Contains(t, errs, engine.FieldQty)

	// Whole-unit rule only applies when the qty parses at all.
	errs = r.Validate(line("SKU-1", "Tokyo", "EC", "Osaka", "EC", "2.5"))
	assert.Equal(t, "quantity must be a whole number", errs[engine.FieldQty])

	fractional := engine.Rules{Scope: engine.ScopeNetwork, IntegerQty: false}
	errs = fractional.Validate(line("SKU-1", "Tokyo", "EC", "Osaka", "EC", "2.5"))
	assert.Empty(t, errs)
}

func TestValidate_OptionMembership(t *testing.T) {
	opts := &engine.OptionSet{
		Warehouses: []string{"Tokyo", "Osaka"},
		Channels:   []string{"EC", "Retail"},
	}

	errs := networkRules(opts).Validate(line("SKU-1", "Sendai", "EC", "Osaka", "Wholesale", "5"))
	assert.Equal(t, "unknown warehouse", errs[engine.FieldFromWarehouse])
	assert.Equal(t, "unknown channel", errs[engine.FieldToChannel])

	errs = networkRules(opts).Validate(line("SKU-1", "Tokyo", "EC", "Osaka", "Retail", "5"))
	assert.Empty(t, errs)
}

// =============================================================================
// RULES - CHANNEL SCOPE
// =============================================================================

func TestValidate_ChannelScope_NoWarehouseRequirement(t *testing.T) {
	r := engine.Rules{Scope: engine.ScopeChannel, IntegerQty: false}

	errs := r.Validate(engine.MovementLine{
		SKUCode: "SKU-1",
		From:    engine.Endpoint{Channel: "EC"},
		To:      engine.Endpoint{Channel: "Retail"},
		Qty:     "1.5",
	})
	assert.Empty(t, errs)

	// Identical channels are identical endpoints under channel scope.
	errs = r.Validate(engine.MovementLine{
		SKUCode: "SKU-1",
		From:    engine.Endpoint{Channel: "EC"},
		To:      engine.Endpoint{Channel: "EC"},
		Qty:     "1",
	})
	assert.Contains(t, errs, engine.FieldToChannel)
}

// =============================================================================
// FIRST ERROR
// =============================================================================

func TestFieldErrors_First_DeterministicOrder(t *testing.T) {
	errs := engine.FieldErrors{
		engine.FieldQty:     "bad qty",
		engine.FieldSKUCode: "missing sku",
	}
	field, message := errs.First()
	assert.Equal(t, engine.FieldSKUCode, field)
	assert.Equal(t, "missing sku", message)
}

// =============================================================================
// OPTION DERIVATION
// =============================================================================

func TestDeriveOptions_IncludesDraftOnlyValues(t *testing.T) {
	// GIVEN: A base matrix and a draft line referencing a warehouse and
	//        channel the matrix has never seen
	// WHEN: Deriving options
	// THEN: Draft-only values stay selectable; blanks are dropped

	base := []engine.MatrixRow{
		{SKUCode: "SKU-1", WarehouseName: "Tokyo", Channel: "EC"},
		{SKUCode: "SKU-1", WarehouseName: "Osaka", Channel: "Retail"},
	}
	lines := []engine.MovementLine{
		line("SKU-1", "Sendai", "Outlet", "Tokyo", "EC", "1"),
		line("SKU-1", " ", "", "Tokyo", "EC", "1"),
	}

	opts := engine.DeriveOptions(base, lines)

	require.Equal(t, []string{"Osaka", "Sendai", "Tokyo"}, opts.Warehouses)
	require.Equal(t, []string{"EC", "Outlet", "Retail"}, opts.Channels)

	assert.True(t, opts.HasWarehouse("Sendai"))
	assert.False(t, opts.HasWarehouse("Nagoya"))
	assert.True(t, opts.HasChannel("Outlet"))
}
