/*
editor.go - Channel-move editing session

Same state machine as plan.Editor (Empty/Loaded/Dirty, save-all-or-
nothing, discard on switch) applied to one SKU/warehouse/day. Kept as a
separate type rather than generics over plan.Editor: the two editors
differ in scope, combination mode and quantity rules, and those are
exactly the things that should be visible at a glance.
*/
package channelmove

import (
	"context"
	"errors"

	"github.com/stockflow/psi-planner/engine"
)

// ErrIndex is returned when an edit references a draft record that does
// not exist.
var ErrIndex = errors.New("transfer index out of range")

// ErrNoDayLoaded is returned when an editor operation needs a loaded day.
var ErrNoDayLoaded = errors.New("no day loaded")

// State mirrors plan.State for the day editor.
type State int

const (
	StateEmpty State = iota
	StateLoaded
	StateDirty
)

// Editor is one day editing session. Not safe for concurrent use.
type Editor struct {
	backend Backend

	state    State
	key      *DayKey
	baseline []Transfer
	draft    []Transfer
	baseRows []engine.MatrixRow
}

// NewEditor creates an empty day editing session.
func NewEditor(backend Backend) *Editor {
	return &Editor{backend: backend}
}

func (e *Editor) State() State { return e.state }
func (e *Editor) Dirty() bool  { return e.state == StateDirty }

// Key returns the loaded day key, nil when empty.
func (e *Editor) Key() *DayKey {
	if e.key == nil {
		return nil
	}
	k := *e.key
	return &k
}

// Transfers returns a copy of the current draft.
func (e *Editor) Transfers() []Transfer {
	return append([]Transfer(nil), e.draft...)
}

// Load fetches the day's records and snapshot. Any unsaved draft from a
// previously loaded day is discarded without confirmation.
func (e *Editor) Load(ctx context.Context, key DayKey) error {
	transfers, rows, err := e.backend.LoadDay(ctx, key)
	if err != nil {
		return err
	}
	e.key = &key
	e.baseline = append([]Transfer(nil), transfers...)
	e.draft = append([]Transfer(nil), transfers...)
	e.baseRows = rows
	e.state = StateLoaded
	return nil
}

// Switch abandons the session, discarding unsaved drafts.
func (e *Editor) Switch() {
	e.key = nil
	e.baseline = nil
	e.draft = nil
	e.baseRows = nil
	e.state = StateEmpty
}

// Add appends a draft record scoped to the loaded day.
func (e *Editor) Add(t Transfer) error {
	if e.key == nil {
		return ErrNoDayLoaded
	}
	t.SessionID = e.key.SessionID
	t.SKUCode = e.key.SKUCode
	t.WarehouseName = e.key.WarehouseName
	t.TransferDate = e.key.Date
	e.draft = append(e.draft, t)
	e.state = StateDirty
	return nil
}

// Set replaces the draft record at index i. The edit may leave the record
// invalid; it stops contributing to the ledger until fixed.
func (e *Editor) Set(i int, t Transfer) error {
	if e.key == nil {
		return ErrNoDayLoaded
	}
	if i < 0 || i >= len(e.draft) {
		return ErrIndex
	}
	t.SessionID = e.key.SessionID
	t.SKUCode = e.key.SKUCode
	t.WarehouseName = e.key.WarehouseName
	t.TransferDate = e.key.Date
	e.draft[i] = t
	e.state = StateDirty
	return nil
}

// Remove deletes the draft record at index i.
func (e *Editor) Remove(i int) error {
	if e.key == nil {
		return ErrNoDayLoaded
	}
	if i < 0 || i >= len(e.draft) {
		return ErrIndex
	}
	e.draft = append(e.draft[:i], e.draft[i+1:]...)
	e.state = StateDirty
	return nil
}

// Save validates every draft record and, if all pass, replaces the day's
// persisted records. First failure blocks the batch; backend failure
// leaves in-memory state untouched so the user can retry.
func (e *Editor) Save(ctx context.Context) error {
	if e.key == nil {
		return ErrNoDayLoaded
	}

	rules := e.Rules()
	for i, t := range e.draft {
		if errs := rules.Validate(t.Movement()); len(errs) > 0 {
			field, message := errs.First()
			return &engine.LineError{Index: i, Field: field, Message: message}
		}
	}

	if err := e.backend.SaveDay(ctx, *e.key, e.Transfers()); err != nil {
		return err
	}

	e.baseline = append([]Transfer(nil), e.draft...)
	e.state = StateLoaded
	return nil
}

// Simulate overlays the draft ledger on the day snapshot in additive
// mode: the snapshot has no transfer history baked in, so the saved
// ledger plays no part.
func (e *Editor) Simulate() []engine.MatrixRow {
	sim := engine.Simulator{Scope: engine.ScopeChannel, Mode: engine.ModeAdditive}
	return sim.Simulate(e.baseRows, nil, Movements(e.draft))
}

// Options derives selectable channels from the snapshot plus the draft.
func (e *Editor) Options() engine.OptionSet {
	return engine.DeriveOptions(e.baseRows, Movements(e.draft))
}

// Rules returns the validation rules for this editor: channel scope,
// fractional quantities accepted.
func (e *Editor) Rules() engine.Rules {
	opts := e.Options()
	return engine.Rules{Scope: engine.ScopeChannel, IntegerQty: false, Options: &opts}
}
