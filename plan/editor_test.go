package plan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockflow/psi-planner/engine"
	"github.com/stockflow/psi-planner/plan"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func seedBackend(t *testing.T) (*plan.Memory, uuid.UUID) {
	t.Helper()
	backend := plan.NewMemory()
	sessionID := uuid.New()
	backend.SeedSession(sessionID)
	backend.SetMainChannels(map[string]string{"Tokyo": "EC"})
	backend.SeedRows([]engine.MatrixRow{
		{
			SKUCode: "SKU-1", WarehouseName: "Tokyo", Channel: "EC",
			StockAtAnchor: dec("10"), StockClosing: dec("10"), Stdstock: dec("40"),
			Gap: dec("-30"),
		},
		{
			SKUCode: "SKU-1", WarehouseName: "Tokyo", Channel: "Retail",
			StockAtAnchor: dec("100"), StockClosing: dec("100"), Stdstock: dec("20"),
			Gap: dec("80"),
		},
		{
			SKUCode: "SKU-1", WarehouseName: "Osaka", Channel: "EC",
			StockAtAnchor: dec("50"), StockClosing: dec("50"), Stdstock: dec("30"),
			Gap: dec("20"),
		},
	})
	return backend, sessionID
}

func window() (time.Time, time.Time) {
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 6)
}

func findRow(t *testing.T, rows []engine.MatrixRow, wh, ch string) engine.MatrixRow {
	t.Helper()
	for _, r := range rows {
		if r.WarehouseName == wh && r.Channel == ch {
			return r
		}
	}
	t.Fatalf("row not found: %s %s", wh, ch)
	return engine.MatrixRow{}
}

// failingBackend errors on SaveLines to exercise the save-failure path.
type failingBackend struct {
	*plan.Memory
	saveErr error
}

func (f *failingBackend) SaveLines(ctx context.Context, planID uuid.UUID, lines []plan.Line) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.Memory.SaveLines(ctx, planID, lines)
}

// =============================================================================
// STATE MACHINE
// =============================================================================

func TestEditor_StartsEmpty(t *testing.T) {
	backend, _ := seedBackend(t)
	editor := plan.NewEditor(backend)

	assert.Equal(t, plan.StateEmpty, editor.State())
	assert.Nil(t, editor.Plan())
	assert.Empty(t, editor.Lines())
}

func TestEditor_Recommend_TransitionsToLoaded(t *testing.T) {
	// GIVEN: An empty editor over a seeded backend with one shortage
	// WHEN: Creating a recommendation
	// THEN: The generated plan is loaded clean, baseline == draft

	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()

	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	assert.Equal(t, plan.StateLoaded, editor.State())
	assert.False(t, editor.Dirty())
	require.NotNil(t, editor.Plan())
	assert.Equal(t, plan.StatusDraft, editor.Plan().Status)

	lines := editor.Lines()
	require.NotEmpty(t, lines, "the seeded shortage should produce a recommendation")
	assert.Equal(t, "SKU-1", lines[0].SKUCode)
	assert.Equal(t, "EC", lines[0].ToChannel)
	assert.False(t, lines[0].IsManual)
}

func TestEditor_Recommend_InvalidWindowRejected(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()

	err := editor.CreateRecommendation(context.Background(), sessionID, end, start)
	assert.ErrorIs(t, err, engine.ErrInvalidDateRange)
	assert.Equal(t, plan.StateEmpty, editor.State())
}

func TestEditor_EditsMarkDirty(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	require.NoError(t, editor.AddLine(plan.Line{
		SKUCode:       "SKU-1",
		FromWarehouse: "Osaka",
		FromChannel:   "EC",
		ToWarehouse:   "Tokyo",
		ToChannel:     "EC",
		Qty:           "5",
	}))
	assert.True(t, editor.Dirty())

	added := editor.Lines()[len(editor.Lines())-1]
	assert.True(t, added.IsManual, "hand-added lines are flagged manual")
	assert.NotEqual(t, uuid.Nil, added.LineID)
}

func TestEditor_SetLine_PreservesLineID(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))
	require.NotEmpty(t, editor.Lines())

	original := editor.Lines()[0]
	edited := original
	edited.LineID = uuid.New() // attempt to smuggle a new id
	edited.Qty = "7"

	require.NoError(t, editor.SetLine(0, edited))
	assert.Equal(t, original.LineID, editor.Lines()[0].LineID)
	assert.Equal(t, "7", editor.Lines()[0].Qty)
	assert.True(t, editor.Dirty())
}

func TestEditor_IndexOutOfRange(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	assert.ErrorIs(t, editor.SetLine(99, plan.Line{}), plan.ErrLineIndex)
	assert.ErrorIs(t, editor.RemoveLine(-1), plan.ErrLineIndex)
}

func TestEditor_EditWithoutPlan(t *testing.T) {
	backend, _ := seedBackend(t)
	editor := plan.NewEditor(backend)

	assert.ErrorIs(t, editor.AddLine(plan.Line{}), engine.ErrNoActivePlan)
	assert.ErrorIs(t, editor.Save(context.Background()), engine.ErrNoActivePlan)
}

func TestEditor_Switch_DiscardsUnsavedDraft(t *testing.T) {
	// GIVEN: A dirty editor
	// WHEN: Switching away
	// THEN: The draft is gone, no confirmation, state is empty

	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))
	require.NoError(t, editor.AddLine(plan.Line{
		SKUCode: "SKU-1", FromWarehouse: "Osaka", FromChannel: "EC",
		ToWarehouse: "Tokyo", ToChannel: "EC", Qty: "5",
	}))

	editor.Switch()

	assert.Equal(t, plan.StateEmpty, editor.State())
	assert.Nil(t, editor.Plan())
	assert.Empty(t, editor.Lines())
}

// =============================================================================
// SAVE
// =============================================================================

func TestEditor_Save_ValidDraft_ReturnsToLoaded(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))
	planID := editor.Plan().PlanID

	require.NoError(t, editor.AddLine(plan.Line{
		SKUCode: "SKU-1", FromWarehouse: "Osaka", FromChannel: "EC",
		ToWarehouse: "Tokyo", ToChannel: "EC", Qty: "5",
	}))
	count := len(editor.Lines())

	require.NoError(t, editor.Save(context.Background()))
	assert.Equal(t, plan.StateLoaded, editor.State())

	// The backend now holds the full replaced set.
	_, persisted, err := backend.LoadPlan(context.Background(), planID)
	require.NoError(t, err)
	assert.Len(t, persisted, count)
}

func TestEditor_Save_InvalidLineBlocksWholeBatch(t *testing.T) {
	// GIVEN: A draft holding one valid and one half-finished line
	// WHEN: Saving
	// THEN: Nothing persists, the editor stays dirty, and the error
	//       pinpoints the offending line and field

	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))
	planID := editor.Plan().PlanID
	_, before, err := backend.LoadPlan(context.Background(), planID)
	require.NoError(t, err)

	require.NoError(t, editor.AddLine(plan.Line{
		SKUCode: "SKU-1", FromWarehouse: "Osaka", FromChannel: "EC",
		ToWarehouse: "Tokyo", ToChannel: "EC", Qty: "abc",
	}))
	badIndex := len(editor.Lines()) - 1

	err = editor.Save(context.Background())
	require.Error(t, err)

	var lineErr *engine.LineError
	require.ErrorAs(t, err, &lineErr)
	assert.Equal(t, badIndex, lineErr.Index)
	assert.Equal(t, engine.FieldQty, lineErr.Field)
	assert.ErrorIs(t, err, engine.ErrValidationFailed)

	assert.True(t, editor.Dirty(), "draft preserved for the user to fix")
	_, after, err := backend.LoadPlan(context.Background(), planID)
	require.NoError(t, err)
	assert.Equal(t, len(before), len(after), "nothing persisted")
}

func TestEditor_Save_BackendFailureKeepsDraft(t *testing.T) {
	backend, sessionID := seedBackend(t)
	wrapped := &failingBackend{Memory: backend, saveErr: errors.New("connection reset")}
	editor := plan.NewEditor(wrapped)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	require.NoError(t, editor.AddLine(plan.Line{
		SKUCode: "SKU-1", FromWarehouse: "Osaka", FromChannel: "EC",
		ToWarehouse: "Tokyo", ToChannel: "EC", Qty: "5",
	}))
	count := len(editor.Lines())

	err := editor.Save(context.Background())
	require.Error(t, err)
	assert.True(t, editor.Dirty())
	assert.Len(t, editor.Lines(), count)
}

// refetchFailingBackend lets SaveLines through but fails the matrix
// refetch that follows, a configurable number of times.
type refetchFailingBackend struct {
	*plan.Memory
	failures int
	fetches  int
}

func (f *refetchFailingBackend) MatrixRows(ctx context.Context, sessionID uuid.UUID, start, end time.Time, planID *uuid.UUID) ([]engine.MatrixRow, error) {
	f.fetches++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return f.Memory.MatrixRows(ctx, sessionID, start, end, planID)
}

func TestEditor_Save_RefetchFailureStaysDirty(t *testing.T) {
	// GIVEN: A backend that persists the save but fails the matrix refetch
	// WHEN: Saving an edited draft
	// THEN: The editor stays Dirty over the pre-save rows instead of
	//       presenting a loaded state with stale baked moves, and a
	//       retried save completes the transition

	backend, sessionID := seedBackend(t)
	wrapped := &refetchFailingBackend{Memory: backend}
	editor := plan.NewEditor(wrapped)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	first := editor.Lines()[0]
	origQty := dec(first.Qty)
	first.Qty = origQty.Add(dec("1")).String()
	require.NoError(t, editor.SetLine(0, first))

	wrapped.failures = 1
	err := editor.Save(context.Background())
	require.Error(t, err)
	assert.True(t, editor.Dirty(), "failed refetch must not report a clean state")

	// Simulation still shows the draft's numbers: the baseline ledger was
	// not swapped, so the delta overlay stays consistent with the draft.
	rows := editor.Simulate()
	target := findRow(t, rows, first.ToWarehouse, first.ToChannel)
	assert.True(t, target.Move.Equal(origQty.Add(dec("1"))))

	require.NoError(t, editor.Save(context.Background()))
	assert.False(t, editor.Dirty())
	clean := findRow(t, editor.Simulate(), first.ToWarehouse, first.ToChannel)
	assert.True(t, clean.Move.Equal(origQty.Add(dec("1"))))
}

// =============================================================================
// SIMULATION
// =============================================================================

func TestEditor_Simulate_DeltaAgainstBakedMatrix(t *testing.T) {
	// GIVEN: A loaded plan whose lines are baked into the fetched matrix
	// WHEN: Editing a line's qty and simulating
	// THEN: The cell reflects the edited qty once, never the sum of the
	//       saved and draft contributions

	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))
	require.NotEmpty(t, editor.Lines())

	// The recommendation fills Tokyo/EC's 30-unit shortage from
	// Tokyo/Retail; bump the first line's qty by 1.
	first := editor.Lines()[0]
	origQty := dec(first.Qty)
	first.Qty = origQty.Add(dec("1")).String()
	require.NoError(t, editor.SetLine(0, first))

	rows := editor.Simulate()
	target := findRow(t, rows, first.ToWarehouse, first.ToChannel)
	assert.True(t, target.Move.Equal(origQty.Add(dec("1"))),
		"move reflects the draft qty exactly, got %s", target.Move)
}

func TestEditor_Simulate_CleanDraftMatchesFetchedMatrix(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	rows := editor.Simulate()
	for _, base := range editor.BaseRows() {
		got := findRow(t, rows, base.WarehouseName, base.Channel)
		assert.True(t, got.Move.Equal(base.Move),
			"%s/%s: clean draft must not change the matrix", base.WarehouseName, base.Channel)
	}
}

// =============================================================================
// OPTIONS AND VALIDATION VIEWS
// =============================================================================

func TestEditor_Options_IncludeDraftOnlyValues(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	require.NoError(t, editor.AddLine(plan.Line{
		SKUCode: "SKU-1", FromWarehouse: "Sendai", FromChannel: "Outlet",
		ToWarehouse: "Tokyo", ToChannel: "EC", Qty: "1",
	}))

	opts := editor.Options()
	assert.True(t, opts.HasWarehouse("Sendai"))
	assert.True(t, opts.HasChannel("Outlet"))
}

func TestEditor_Validate_SingleLineView(t *testing.T) {
	backend, sessionID := seedBackend(t)
	editor := plan.NewEditor(backend)
	start, end := window()
	require.NoError(t, editor.CreateRecommendation(context.Background(), sessionID, start, end))

	require.NoError(t, editor.AddLine(plan.Line{
		SKUCode: "SKU-1", FromWarehouse: "Osaka", FromChannel: "EC",
		ToWarehouse: "Tokyo", ToChannel: "EC", Qty: "2.5",
	}))
	i := len(editor.Lines()) - 1

	errs := editor.Validate(i)
	assert.Contains(t, errs, engine.FieldQty, "plan lines take whole units only")
	assert.Nil(t, editor.Validate(99))
}
