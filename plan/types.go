/*
Package plan implements the multi-day transfer-plan editing workflow.

PURPOSE:
  A transfer plan is a set of movement lines across warehouses and
  channels for a session's date window. This package owns the editing
  session around it: create a recommended plan or load an existing one,
  edit lines locally, simulate the effect against the fetched matrix, and
  save all-or-nothing.

STATE MACHINE (per editing session):
  Empty  --(recommend | load)-->  Loaded   draft == baseline, clean
  Loaded --(edit/add/remove)-->   Dirty    draft diverges, baseline kept
  Dirty  --(save, all valid)-->   Loaded   server replaces lines,
                                           baseline := draft
  Dirty  --(save, any invalid)--> Dirty    first error surfaced, nothing
                                           persisted
  any    --(switch)-->            Empty    unsaved draft discarded, no
                                           confirmation

  Only save performs I/O. Every other transition is a local state update;
  the caller re-simulates on its next render.

SEE ALSO:
  - editor.go:  The state machine itself
  - memory.go:  In-memory Backend for tests and demos
  - store/sqlite: Persistent Backend implementation
*/
package plan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/psi-planner/engine"
)

// =============================================================================
// PLAN AND LINE
// =============================================================================

// Status values for a transfer plan.
const (
	StatusDraft     = "draft"
	StatusConfirmed = "confirmed"
)

// Plan is the header of one transfer plan.
type Plan struct {
	PlanID    uuid.UUID
	SessionID uuid.UUID
	StartDate time.Time
	EndDate   time.Time
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Line is one persisted or drafted movement of a plan. Qty keeps the raw
// edit buffer; see engine.MovementLine.
type Line struct {
	LineID        uuid.UUID
	PlanID        uuid.UUID
	SKUCode       string
	FromWarehouse string
	FromChannel   string
	ToWarehouse   string
	ToChannel     string
	Qty           string
	IsManual      bool
	Reason        string
}

// Movement converts the line to its engine representation.
func (l Line) Movement() engine.MovementLine {
	return engine.MovementLine{
		SKUCode:  l.SKUCode,
		From:     engine.Endpoint{Warehouse: l.FromWarehouse, Channel: l.FromChannel},
		To:       engine.Endpoint{Warehouse: l.ToWarehouse, Channel: l.ToChannel},
		Qty:      l.Qty,
		IsManual: l.IsManual,
		Reason:   l.Reason,
	}
}

// Movements converts a slice of lines.
func Movements(lines []Line) []engine.MovementLine {
	out := make([]engine.MovementLine, len(lines))
	for i, l := range lines {
		out[i] = l.Movement()
	}
	return out
}

// =============================================================================
// BACKEND - The workflow's only I/O surface
// =============================================================================

// Backend is what the editor needs from the outside world. The sqlite
// store implements it for real; memory.go implements it for tests.
type Backend interface {
	// Recommend creates a new draft plan for the window and returns it
	// with its generated lines.
	Recommend(ctx context.Context, sessionID uuid.UUID, start, end time.Time) (Plan, []Line, error)

	// LoadPlan returns an existing plan and its persisted lines.
	LoadPlan(ctx context.Context, planID uuid.UUID) (Plan, []Line, error)

	// SaveLines replaces all lines of the plan. All-or-nothing; a
	// rejected batch leaves the persisted lines untouched.
	SaveLines(ctx context.Context, planID uuid.UUID, lines []Line) error

	// MatrixRows fetches the aggregated baseline for the window. When
	// planID is non-nil the plan's persisted moves are baked into the
	// rows' Move column, which is what delta-mode simulation expects.
	MatrixRows(ctx context.Context, sessionID uuid.UUID, start, end time.Time, planID *uuid.UUID) ([]engine.MatrixRow, error)
}
