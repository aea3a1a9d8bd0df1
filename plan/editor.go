/*
editor.go - Transfer-plan editing session

PURPOSE:
  Owns the draft lines, the baseline lines, and the dirty flag for one
  editing session, and keeps them consistent with the ledger semantics:
  the baseline mirrors what the server has persisted (and therefore what
  is baked into the fetched matrix), the draft is what the user sees.
  Simulation reads both; nothing here mutates the fetched rows.

OWNERSHIP:
  The editor exclusively owns its draft and baseline slices. Accessors
  return copies so callers cannot alias internal state.
*/
package plan

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/psi-planner/engine"
)

// ErrLineIndex is returned when an edit references a draft line that does
// not exist.
var ErrLineIndex = errors.New("line index out of range")

// =============================================================================
// STATE
// =============================================================================

// State is the editing session's position in the workflow.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateDirty
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateDirty:
		return "dirty"
	default:
		return "empty"
	}
}

// =============================================================================
// EDITOR
// =============================================================================

// Editor is one plan editing session. Not safe for concurrent use; the
// workflow is single-threaded by design, driven by UI events.
type Editor struct {
	backend Backend

	state    State
	plan     *Plan
	baseline []Line
	draft    []Line
	baseRows []engine.MatrixRow
}

// NewEditor creates an empty editing session on top of a backend.
func NewEditor(backend Backend) *Editor {
	return &Editor{backend: backend}
}

func (e *Editor) State() State { return e.state }
func (e *Editor) Dirty() bool  { return e.state == StateDirty }

// Plan returns the loaded plan header, nil when empty.
func (e *Editor) Plan() *Plan {
	if e.plan == nil {
		return nil
	}
	p := *e.plan
	return &p
}

// Lines returns a copy of the current draft.
func (e *Editor) Lines() []Line {
	return append([]Line(nil), e.draft...)
}

// BaseRows returns a copy of the fetched baseline matrix.
func (e *Editor) BaseRows() []engine.MatrixRow {
	return append([]engine.MatrixRow(nil), e.baseRows...)
}

// =============================================================================
// LOAD TRANSITIONS - Empty -> Loaded
// =============================================================================

// CreateRecommendation asks the backend for a recommended plan over the
// window and loads it. On error the session is left untouched.
func (e *Editor) CreateRecommendation(ctx context.Context, sessionID uuid.UUID, start, end time.Time) error {
	if end.Before(start) {
		return engine.ErrInvalidDateRange
	}
	p, lines, err := e.backend.Recommend(ctx, sessionID, start, end)
	if err != nil {
		return err
	}
	return e.adopt(ctx, p, lines)
}

// Load fetches an existing plan and its lines. Any unsaved draft from a
// previously loaded plan is discarded without confirmation.
func (e *Editor) Load(ctx context.Context, planID uuid.UUID) error {
	p, lines, err := e.backend.LoadPlan(ctx, planID)
	if err != nil {
		return err
	}
	return e.adopt(ctx, p, lines)
}

func (e *Editor) adopt(ctx context.Context, p Plan, lines []Line) error {
	rows, err := e.backend.MatrixRows(ctx, p.SessionID, p.StartDate, p.EndDate, &p.PlanID)
	if err != nil {
		return err
	}
	e.plan = &p
	e.baseline = append([]Line(nil), lines...)
	e.draft = append([]Line(nil), lines...)
	e.baseRows = rows
	e.state = StateLoaded
	return nil
}

// Switch abandons the session: unsaved draft state is discarded with no
// confirmation prompt. Confirmation, if wanted, is a caller-side policy.
func (e *Editor) Switch() {
	e.plan = nil
	e.baseline = nil
	e.draft = nil
	e.baseRows = nil
	e.state = StateEmpty
}

// =============================================================================
// EDIT TRANSITIONS - Loaded -> Dirty
// =============================================================================

// AddLine appends a draft line. The line id is assigned here so a later
// save batch can detect duplicates.
func (e *Editor) AddLine(l Line) error {
	if e.plan == nil {
		return engine.ErrNoActivePlan
	}
	if l.LineID == uuid.Nil {
		l.LineID = uuid.New()
	}
	l.PlanID = e.plan.PlanID
	l.IsManual = true
	e.draft = append(e.draft, l)
	e.state = StateDirty
	return nil
}

// SetLine replaces the draft line at index i with an edited copy. The
// edit may leave the line structurally invalid; it simply stops
// contributing to the simulated ledger until fixed.
func (e *Editor) SetLine(i int, l Line) error {
	if e.plan == nil {
		return engine.ErrNoActivePlan
	}
	if i < 0 || i >= len(e.draft) {
		return ErrLineIndex
	}
	l.LineID = e.draft[i].LineID
	l.PlanID = e.plan.PlanID
	e.draft[i] = l
	e.state = StateDirty
	return nil
}

// RemoveLine deletes the draft line at index i.
func (e *Editor) RemoveLine(i int) error {
	if e.plan == nil {
		return engine.ErrNoActivePlan
	}
	if i < 0 || i >= len(e.draft) {
		return ErrLineIndex
	}
	e.draft = append(e.draft[:i], e.draft[i+1:]...)
	e.state = StateDirty
	return nil
}

// =============================================================================
// SAVE TRANSITION - Dirty -> Loaded
// =============================================================================

// Save validates every draft line and, if all pass, replaces the plan's
// persisted lines. The first failing line blocks the whole batch; no
// partial save happens and the draft is preserved for the user to fix.
// A backend failure likewise leaves the in-memory state untouched.
func (e *Editor) Save(ctx context.Context) error {
	if e.plan == nil {
		return engine.ErrNoActivePlan
	}

	rules := e.Rules()
	for i, line := range e.draft {
		if errs := rules.Validate(line.Movement()); len(errs) > 0 {
			field, message := errs.First()
			return &engine.LineError{Index: i, Field: field, Message: message}
		}
	}

	if err := e.backend.SaveLines(ctx, e.plan.PlanID, e.Lines()); err != nil {
		return err
	}

	// The server-side matrix now has the saved lines baked in; refetch so
	// delta-mode simulation keeps subtracting the right ledger. The
	// baseline swap waits for the refetch: if it fails the editor stays
	// Dirty over the pre-save rows, and a retried Save re-replaces the
	// same lines and fetches again.
	rows, err := e.backend.MatrixRows(ctx, e.plan.SessionID, e.plan.StartDate, e.plan.EndDate, &e.plan.PlanID)
	if err != nil {
		return err
	}
	e.baseline = append([]Line(nil), e.draft...)
	e.baseRows = rows
	e.state = StateLoaded
	return nil
}

// =============================================================================
// SIMULATION AND VALIDATION VIEWS
// =============================================================================

// Simulate overlays the baseline and draft ledgers on the fetched matrix
// in delta mode. Recomputed on every call; never cached, never persisted.
func (e *Editor) Simulate() []engine.MatrixRow {
	sim := engine.Simulator{Scope: engine.ScopeNetwork, Mode: engine.ModeDelta}
	return sim.Simulate(e.baseRows, Movements(e.baseline), Movements(e.draft))
}

// Options derives the selectable endpoint values from the fetched matrix
// plus the current draft, so a value only a draft references stays
// selectable in its own editor.
func (e *Editor) Options() engine.OptionSet {
	return engine.DeriveOptions(e.baseRows, Movements(e.draft))
}

// Rules returns the validation rules for this editor: network scope,
// whole-unit quantities, endpoint values restricted to derived options.
func (e *Editor) Rules() engine.Rules {
	opts := e.Options()
	return engine.Rules{Scope: engine.ScopeNetwork, IntegerQty: true, Options: &opts}
}

// Validate reports field errors for the draft line at index i, for
// surfacing while that line is being actively edited.
func (e *Editor) Validate(i int) engine.FieldErrors {
	if i < 0 || i >= len(e.draft) {
		return nil
	}
	return e.Rules().Validate(e.draft[i].Movement())
}
