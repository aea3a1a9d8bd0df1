package sqlite_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/psi-planner/channelmove"
	"github.com/stockflow/psi-planner/engine"
	"github.com/stockflow/psi-planner/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func transfer(sessionID uuid.UUID, day int, sku, wh, from, to, qty string) channelmove.Transfer {
	return channelmove.Transfer{
		SessionID:     sessionID,
		SKUCode:       sku,
		WarehouseName: wh,
		TransferDate:  d(day),
		FromChannel:   from,
		ToChannel:     to,
		Qty:           qty,
		Note:          "rebalance",
	}
}

// =============================================================================
// CRUD
// =============================================================================

func TestTransfers_CreateAndList(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)

	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 1, "SKU-1", "Tokyo", "Retail", "EC", "5")))
	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 2, "SKU-1", "Tokyo", "EC", "Outlet", "3.5")))

	got, err := store.ListTransfers(ctx, sqlite.TransferFilter{SessionID: sessionID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, d(1), got[0].TransferDate, "ordered by date")
	assert.Equal(t, "5", got[0].Qty)
	assert.Equal(t, "rebalance", got[0].Note)
}

func TestTransfers_CreateDuplicateKeyConflicts(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)

	rec := transfer(sessionID, 1, "SKU-1", "Tokyo", "Retail", "EC", "5")
	require.NoError(t, store.CreateTransfer(ctx, rec))

	rec.Qty = "9"
	err := store.CreateTransfer(ctx, rec)
	assert.ErrorIs(t, err, engine.ErrTransferExists, "same natural key is a conflict, not an upsert")
}

func TestTransfers_CreateRejectsIdenticalChannels(t *testing.T) {
	store := newStore(t)
	sessionID := newSession(t, store)
	err := store.CreateTransfer(context.Background(), transfer(sessionID, 1, "SKU-1", "Tokyo", "EC", "EC", "5"))
	assert.ErrorIs(t, err, engine.ErrIdenticalEndpoints)
}

func TestTransfers_CreateUnknownSession(t *testing.T) {
	store := newStore(t)
	err := store.CreateTransfer(context.Background(), transfer(uuid.New(), 1, "SKU-1", "Tokyo", "Retail", "EC", "5"))
	assert.ErrorIs(t, err, engine.ErrSessionNotFound)
}

func TestTransfers_UpdateByNaturalKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)

	rec := transfer(sessionID, 1, "SKU-1", "Tokyo", "Retail", "EC", "5")
	require.NoError(t, store.CreateTransfer(ctx, rec))

	rec.Qty = "7.25"
	rec.Note = "adjusted"
	require.NoError(t, store.UpdateTransfer(ctx, rec))

	got, err := store.ListTransfers(ctx, sqlite.TransferFilter{SessionID: sessionID})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "7.25", got[0].Qty)
	assert.Equal(t, "adjusted", got[0].Note)
}

func TestTransfers_UpdateMissing(t *testing.T) {
	store := newStore(t)
	sessionID := newSession(t, store)
	err := store.UpdateTransfer(context.Background(), transfer(sessionID, 1, "SKU-1", "Tokyo", "Retail", "EC", "5"))
	assert.ErrorIs(t, err, engine.ErrTransferNotFound)
}

func TestTransfers_DeleteByNaturalKey(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)

	rec := transfer(sessionID, 1, "SKU-1", "Tokyo", "Retail", "EC", "5")
	require.NoError(t, store.CreateTransfer(ctx, rec))
	require.NoError(t, store.DeleteTransfer(ctx, rec))

	err := store.DeleteTransfer(ctx, rec)
	assert.ErrorIs(t, err, engine.ErrTransferNotFound)

	got, err := store.ListTransfers(ctx, sqlite.TransferFilter{SessionID: sessionID})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTransfers_ListFilters(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)

	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 1, "SKU-1", "Tokyo", "Retail", "EC", "5")))
	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 2, "SKU-1", "Osaka", "Retail", "EC", "6")))
	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 5, "SKU-2", "Tokyo", "Retail", "EC", "7")))

	bySKU, err := store.ListTransfers(ctx, sqlite.TransferFilter{SessionID: sessionID, SKUCode: "SKU-2"})
	require.NoError(t, err)
	require.Len(t, bySKU, 1)
	assert.Equal(t, "SKU-2", bySKU[0].SKUCode)

	byWarehouse, err := store.ListTransfers(ctx, sqlite.TransferFilter{SessionID: sessionID, WarehouseName: "Osaka"})
	require.NoError(t, err)
	require.Len(t, byWarehouse, 1)

	byWindow, err := store.ListTransfers(ctx, sqlite.TransferFilter{SessionID: sessionID, Start: d(1), End: d(2)})
	require.NoError(t, err)
	assert.Len(t, byWindow, 2)

	_, err = store.ListTransfers(ctx, sqlite.TransferFilter{SessionID: sessionID, Start: d(3), End: d(1)})
	assert.ErrorIs(t, err, engine.ErrInvalidDateRange)
}

// =============================================================================
// DAY BACKEND
// =============================================================================

func TestLoadDay_SnapshotAndRecords(t *testing.T) {
	// GIVEN: PSI rows for two channels on one day plus a persisted transfer
	// WHEN: Loading the day
	// THEN: The snapshot carries per-channel stock with no history baked in

	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)

	require.NoError(t, store.InsertPSIRows(ctx, sessionID, []sqlite.PSIRow{
		psiRow(1, "SKU-1", "Tokyo", "EC", "30", "0", "4", "26", "20"),
		psiRow(1, "SKU-1", "Tokyo", "Retail", "10", "0", "2", "8", "15"),
		psiRow(2, "SKU-1", "Tokyo", "EC", "26", "0", "0", "26", "20"), // other day, excluded
	}))
	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 1, "SKU-1", "Tokyo", "EC", "Retail", "6")))

	key := channelmove.DayKey{SessionID: sessionID, SKUCode: "SKU-1", WarehouseName: "Tokyo", Date: d(1)}
	transfers, snapshot, err := store.LoadDay(ctx, key)
	require.NoError(t, err)

	require.Len(t, transfers, 1)
	assert.Equal(t, "6", transfers[0].Qty)

	require.Len(t, snapshot, 2)
	ec := findMatrixRow(t, snapshot, "Tokyo", "EC")
	assert.True(t, ec.StockClosing.Equal(dec("26")))
	assert.True(t, ec.Gap.Equal(dec("6")))
	assert.True(t, ec.StockFin.Equal(dec("26")), "persisted transfer not baked into the snapshot")

	retail := findMatrixRow(t, snapshot, "Tokyo", "Retail")
	assert.True(t, retail.Gap.Equal(dec("-7")))
}

func TestSaveDay_ReplacesDayRecords(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)
	key := channelmove.DayKey{SessionID: sessionID, SKUCode: "SKU-1", WarehouseName: "Tokyo", Date: d(1)}

	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 1, "SKU-1", "Tokyo", "EC", "Retail", "6")))
	require.NoError(t, store.CreateTransfer(ctx, transfer(sessionID, 2, "SKU-1", "Tokyo", "EC", "Retail", "9")))

	require.NoError(t, store.SaveDay(ctx, key, []channelmove.Transfer{
		transfer(sessionID, 1, "SKU-1", "Tokyo", "Retail", "Outlet", "2"),
	}))

	transfers, _, err := store.LoadDay(ctx, key)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "Outlet", transfers[0].ToChannel)

	// The other day's record is outside the key and survives the replace.
	otherDay := key
	otherDay.Date = d(2)
	transfers, _, err = store.LoadDay(ctx, otherDay)
	require.NoError(t, err)
	assert.Len(t, transfers, 1)
}

func TestDayEditor_FullCycleAgainstSqlite(t *testing.T) {
	// The day workflow end to end: load, add a move, save, reload.
	store := newStore(t)
	ctx := context.Background()
	sessionID := newSession(t, store)

	require.NoError(t, store.InsertPSIRows(ctx, sessionID, []sqlite.PSIRow{
		psiRow(1, "SKU-1", "Tokyo", "EC", "30", "0", "0", "30", "20"),
		psiRow(1, "SKU-1", "Tokyo", "Retail", "0", "0", "0", "-5", "10"),
	}))

	editor := channelmove.NewEditor(store)
	key := channelmove.DayKey{SessionID: sessionID, SKUCode: "SKU-1", WarehouseName: "Tokyo", Date: d(1)}
	require.NoError(t, editor.Load(ctx, key))

	require.NoError(t, editor.Add(channelmove.Transfer{FromChannel: "EC", ToChannel: "Retail", Qty: "5"}))
	require.True(t, editor.Dirty())
	require.NoError(t, editor.Save(ctx))
	assert.False(t, editor.Dirty())

	transfers, _, err := store.LoadDay(ctx, key)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, "SKU-1", transfers[0].SKUCode, "day key fields stamped on save")

	sim := editor.Simulate()
	assert.True(t, findMatrixRow(t, sim, "Tokyo", "Retail").StockFin.Equal(dec("0")))
	assert.True(t, findMatrixRow(t, sim, "Tokyo", "EC").StockFin.Equal(dec("25")))
}
