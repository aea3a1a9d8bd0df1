package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/psi-planner/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func stockRow(sku, wh, ch string, anchor, closing, stdstock string) engine.MatrixRow {
	a, c, s := dec(anchor), dec(closing), dec(stdstock)
	return engine.MatrixRow{
		SKUCode:       sku,
		WarehouseName: wh,
		Channel:       ch,
		StockAtAnchor: a,
		StockClosing:  c,
		Stdstock:      s,
		Gap:           c.Sub(s),
	}
}

func totalMoved(moves []engine.RecommendedMove) decimal.Decimal {
	total := decimal.Zero
	for _, m := range moves {
		total = total.Add(m.Qty)
	}
	return total
}

// =============================================================================
// BASIC FILL
// =============================================================================

func TestRecommend_IntraWarehouseDonorFirst(t *testing.T) {
	// GIVEN: Tokyo's main channel EC is short 20; Tokyo/Retail and
	//        Osaka/Outlet both hold surplus
	// WHEN: Recommending
	// THEN: The intra-warehouse donor covers the shortage before any
	//       inter-warehouse move is considered

	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "30", "30", "50"),
		stockRow("SKU-1", "Tokyo", "Retail", "60", "60", "20"),
		stockRow("SKU-1", "Osaka", "Outlet", "100", "100", "10"),
	}
	mains := map[string]string{"Tokyo": "EC"}

	moves := engine.Recommend(rows, mains, engine.DefaultPolicy())

	require.Len(t, moves, 1)
	assert.Equal(t, "Tokyo", moves[0].FromWarehouse)
	assert.Equal(t, "Retail", moves[0].FromChannel)
	assert.Equal(t, "Tokyo", moves[0].ToWarehouse)
	assert.Equal(t, "EC", moves[0].ToChannel)
	assert.True(t, moves[0].Qty.Equal(dec("20")))
	assert.Equal(t, "fill main channel (intra)", moves[0].Reason)
}

func TestRecommend_InterWarehouseWhenIntraExhausted(t *testing.T) {
	// GIVEN: Tokyo/EC short 50, Tokyo/Retail can give only 10
	// WHEN: Recommending
	// THEN: Intra donor is drained first, the rest comes from Osaka

	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "10", "10", "60"),
		stockRow("SKU-1", "Tokyo", "Retail", "30", "30", "20"),
		stockRow("SKU-1", "Osaka", "Outlet", "200", "200", "10"),
	}
	mains := map[string]string{"Tokyo": "EC"}

	moves := engine.Recommend(rows, mains, engine.DefaultPolicy())

	require.Len(t, moves, 2)
	assert.Equal(t, "fill main channel (intra)", moves[0].Reason)
	assert.True(t, moves[0].Qty.Equal(dec("10")))
	assert.Equal(t, "fill main channel (inter)", moves[1].Reason)
	assert.Equal(t, "Osaka", moves[1].FromWarehouse)
	assert.True(t, moves[1].Qty.Equal(dec("40")))
	assert.True(t, totalMoved(moves).Equal(dec("50")))
}

func TestRecommend_NoShortage_NoMoves(t *testing.T) {
	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "50", "50", "40"),
		stockRow("SKU-1", "Tokyo", "Retail", "60", "60", "20"),
	}
	moves := engine.Recommend(rows, map[string]string{"Tokyo": "EC"}, engine.DefaultPolicy())
	assert.Empty(t, moves)
}

// =============================================================================
// DONOR LIMITS
// =============================================================================

func TestRecommend_DonorCappedByAnchorStock(t *testing.T) {
	// GIVEN: A donor whose surplus on paper (closing 80 vs std 10) exceeds
	//        the 5 units it actually held at the anchor
	// WHEN: Recommending
	// THEN: It gives at most the anchor stock; a plan must be executable
	//       the moment it is created

	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "0", "0", "100"),
		stockRow("SKU-1", "Tokyo", "Retail", "5", "80", "10"),
	}
	moves := engine.Recommend(rows, map[string]string{"Tokyo": "EC"}, engine.DefaultPolicy())

	require.Len(t, moves, 1)
	assert.True(t, moves[0].Qty.Equal(dec("5")))
}

func TestRecommend_DonorNotDrainedTwiceAcrossShortages(t *testing.T) {
	// GIVEN: One donor with 30 available and two warehouses each short 25
	//        at their main channels
	// WHEN: Recommending
	// THEN: Allocations across shortages never exceed what the donor holds

	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "0", "0", "25"),
		stockRow("SKU-1", "Osaka", "EC", "0", "0", "25"),
		stockRow("SKU-1", "Nagoya", "Outlet", "30", "30", "0"),
	}
	mains := map[string]string{"Tokyo": "EC", "Osaka": "EC"}

	moves := engine.Recommend(rows, mains, engine.DefaultPolicy())

	assert.True(t, totalMoved(moves).LessThanOrEqual(dec("30")))
	given := decimal.Zero
	for _, m := range moves {
		require.Equal(t, "Nagoya", m.FromWarehouse)
		given = given.Add(m.Qty)
	}
	assert.True(t, given.Equal(dec("30")))
}

func TestRecommend_OtherMainChannelProtectedByDefault(t *testing.T) {
	// GIVEN: The only surplus sits at Osaka's own main channel
	// WHEN: Recommending with the default policy, then with
	//       TakeFromOtherMain enabled
	// THEN: The default leaves it alone; the override taps it

	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "0", "0", "20"),
		stockRow("SKU-1", "Osaka", "Retail", "50", "50", "10"),
	}
	mains := map[string]string{"Tokyo": "EC", "Osaka": "Retail"}

	moves := engine.Recommend(rows, mains, engine.DefaultPolicy())
	assert.Empty(t, moves)

	policy := engine.DefaultPolicy()
	policy.TakeFromOtherMain = true
	moves = engine.Recommend(rows, mains, policy)
	require.Len(t, moves, 1)
	assert.Equal(t, "Osaka", moves[0].FromWarehouse)
	assert.True(t, moves[0].Qty.Equal(dec("20")))
}

// =============================================================================
// ROUNDING
// =============================================================================

func TestRecommend_RoundingModes(t *testing.T) {
	// Shortage of 10.5 against a large donor: floor gives 10, ceil 11.
	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "0", "0", "10.5"),
		stockRow("SKU-1", "Tokyo", "Retail", "100", "100", "0"),
	}
	mains := map[string]string{"Tokyo": "EC"}

	policy := engine.DefaultPolicy()
	moves := engine.Recommend(rows, mains, policy)
	require.Len(t, moves, 1)
	assert.True(t, moves[0].Qty.Equal(dec("10")), "floor")

	policy.Rounding = engine.RoundCeil
	moves = engine.Recommend(rows, mains, policy)
	require.Len(t, moves, 1)
	assert.True(t, moves[0].Qty.Equal(dec("11")), "ceil")
}

// =============================================================================
// FAIR SHARE
// =============================================================================

func TestRecommend_FairShare_SplitsAcrossDonors(t *testing.T) {
	// GIVEN: Two donors weighted 3:1 by closing stock and a shortage of 40
	// WHEN: Recommending with equalize_ratio_closing
	// THEN: Both donors contribute, roughly proportionally, instead of
	//       the largest donor covering everything alone

	rows := []engine.MatrixRow{
		stockRow("SKU-1", "Tokyo", "EC", "0", "0", "40"),
		stockRow("SKU-1", "Tokyo", "Retail", "300", "300", "0"),
		stockRow("SKU-1", "Tokyo", "Outlet", "100", "100", "0"),
	}
	mains := map[string]string{"Tokyo": "EC"}

	policy := engine.DefaultPolicy()
	policy.FairShare = engine.FairShareRatioClosing
	moves := engine.Recommend(rows, mains, policy)

	byDonor := make(map[string]decimal.Decimal)
	for _, m := range moves {
		byDonor[m.FromChannel] = byDonor[m.FromChannel].Add(m.Qty)
	}
	require.Contains(t, byDonor, "Retail")
	require.Contains(t, byDonor, "Outlet")
	assert.True(t, byDonor["Retail"].Equal(dec("30")))
	assert.True(t, byDonor["Outlet"].Equal(dec("10")))
	assert.True(t, totalMoved(moves).Equal(dec("40")))
}

// =============================================================================
// DETERMINISM
// =============================================================================

func TestRecommend_Deterministic(t *testing.T) {
	rows := []engine.MatrixRow{
		stockRow("SKU-2", "Tokyo", "EC", "0", "0", "10"),
		stockRow("SKU-1", "Tokyo", "EC", "0", "0", "10"),
		stockRow("SKU-1", "Tokyo", "Retail", "50", "50", "0"),
		stockRow("SKU-2", "Tokyo", "Retail", "50", "50", "0"),
	}
	mains := map[string]string{"Tokyo": "EC"}

	first := engine.Recommend(rows, mains, engine.DefaultPolicy())
	second := engine.Recommend(rows, mains, engine.DefaultPolicy())

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i], second[i])
	}
	// SKUs are processed in sorted order.
	require.Len(t, first, 2)
	assert.Equal(t, "SKU-1", first[0].SKUCode)
	assert.Equal(t, "SKU-2", first[1].SKUCode)
}
