/*
plans.go - Transfer plans and the plan.Backend implementation

PURPOSE:
  Persistence for transfer plan headers and their lines, plus the server
  side of the plan editing workflow: recommendation, load, and the
  all-or-nothing line replacement with its batch checks.

SAVE CHECKS (nothing persisted when any fails):
  - every line's endpoints must differ (warehouse+channel pair)
  - no duplicate line ids within the batch
  - per donor cell, total outgoing qty must not exceed stock at anchor

  Parseable-qty and option-membership checks belong to the editor; the
  store only enforces what must hold regardless of client.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockflow/psi-planner/engine"
	"github.com/stockflow/psi-planner/plan"
)

// =============================================================================
// PLAN CRUD
// =============================================================================

// GetPlan returns a plan header or engine.ErrPlanNotFound.
func (s *Store) GetPlan(ctx context.Context, planID uuid.UUID) (plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getPlan(ctx, planID)
}

func (s *Store) getPlan(ctx context.Context, planID uuid.UUID) (plan.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT plan_id, session_id, start_date, end_date, status, created_at, updated_at
		FROM transfer_plans WHERE plan_id = ?`, planID.String())
	return scanPlan(row)
}

// ListPlans returns a session's plans, newest first.
func (s *Store) ListPlans(ctx context.Context, sessionID uuid.UUID) ([]plan.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT plan_id, session_id, start_date, end_date, status, created_at, updated_at
		FROM transfer_plans WHERE session_id = ?
		ORDER BY created_at DESC, plan_id`, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []plan.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (plan.Plan, error) {
	var p plan.Plan
	var rawPlanID, rawSessionID, rawStart, rawEnd, rawCreated, rawUpdated string
	err := row.Scan(&rawPlanID, &rawSessionID, &rawStart, &rawEnd, &p.Status, &rawCreated, &rawUpdated)
	if err != nil {
		if err == sql.ErrNoRows {
			return plan.Plan{}, engine.ErrPlanNotFound
		}
		return plan.Plan{}, err
	}
	p.PlanID, _ = uuid.Parse(rawPlanID)
	p.SessionID, _ = uuid.Parse(rawSessionID)
	p.StartDate, _ = time.Parse(dateLayout, rawStart)
	p.EndDate, _ = time.Parse(dateLayout, rawEnd)
	p.CreatedAt, _ = time.Parse(time.RFC3339, rawCreated)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, rawUpdated)
	return p, nil
}

func (s *Store) planLines(ctx context.Context, planID uuid.UUID) ([]plan.Line, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT line_id, plan_id, sku_code, from_warehouse, from_channel,
		       to_warehouse, to_channel, qty, is_manual, COALESCE(reason, '')
		FROM transfer_plan_lines WHERE plan_id = ?
		ORDER BY sku_code, from_warehouse, from_channel, to_warehouse, to_channel, line_id`,
		planID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []plan.Line
	for rows.Next() {
		var l plan.Line
		var rawLineID, rawPlanID string
		var isManual int
		err := rows.Scan(&rawLineID, &rawPlanID, &l.SKUCode,
			&l.FromWarehouse, &l.FromChannel, &l.ToWarehouse, &l.ToChannel,
			&l.Qty, &isManual, &l.Reason)
		if err != nil {
			return nil, err
		}
		l.LineID, _ = uuid.Parse(rawLineID)
		l.PlanID, _ = uuid.Parse(rawPlanID)
		l.IsManual = isManual != 0
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// planMovements loads a plan's lines in engine form, for baking into
// matrix rows. Caller already holds no lock; the read lock is taken here.
func (s *Store) planMovements(ctx context.Context, planID uuid.UUID) ([]engine.MovementLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getPlan(ctx, planID); err != nil {
		return nil, err
	}
	lines, err := s.planLines(ctx, planID)
	if err != nil {
		return nil, err
	}
	return plan.Movements(lines), nil
}

// =============================================================================
// PLAN.BACKEND
// =============================================================================

// Recommend generates a draft plan for the window from the aggregated
// matrix, the warehouse main channels, and the stored policy, then
// persists header and lines in one transaction.
func (s *Store) Recommend(ctx context.Context, sessionID uuid.UUID, start, end time.Time) (plan.Plan, []plan.Line, error) {
	if end.Before(start) {
		return plan.Plan{}, nil, engine.ErrInvalidDateRange
	}
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return plan.Plan{}, nil, err
	}

	base, err := s.FetchMatrixRows(ctx, MatrixQuery{SessionID: sessionID, Start: start, End: end})
	if err != nil {
		return plan.Plan{}, nil, err
	}
	mainChannels, err := s.MainChannelMap(ctx)
	if err != nil {
		return plan.Plan{}, nil, err
	}
	policy, err := s.GetPolicy(ctx)
	if err != nil {
		return plan.Plan{}, nil, err
	}

	moves := engine.Recommend(base, mainChannels, policy)

	now := time.Now().UTC()
	p := plan.Plan{
		PlanID:    uuid.New(),
		SessionID: sessionID,
		StartDate: start,
		EndDate:   end,
		Status:    plan.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	lines := make([]plan.Line, 0, len(moves))
	for _, mv := range moves {
		lines = append(lines, plan.Line{
			LineID:        uuid.New(),
			PlanID:        p.PlanID,
			SKUCode:       mv.SKUCode,
			FromWarehouse: mv.FromWarehouse,
			FromChannel:   mv.FromChannel,
			ToWarehouse:   mv.ToWarehouse,
			ToChannel:     mv.ToChannel,
			Qty:           mv.Qty.String(),
			IsManual:      false,
			Reason:        mv.Reason,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return plan.Plan{}, nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfer_plans (plan_id, session_id, start_date, end_date, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.PlanID.String(), p.SessionID.String(),
		p.StartDate.Format(dateLayout), p.EndDate.Format(dateLayout),
		p.Status, now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return plan.Plan{}, nil, fmt.Errorf("failed to insert plan: %w", err)
	}
	if err := insertLines(ctx, tx, lines); err != nil {
		return plan.Plan{}, nil, err
	}
	if err := tx.Commit(); err != nil {
		return plan.Plan{}, nil, err
	}
	return p, lines, nil
}

// LoadPlan returns a plan header and its persisted lines.
func (s *Store) LoadPlan(ctx context.Context, planID uuid.UUID) (plan.Plan, []plan.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, err := s.getPlan(ctx, planID)
	if err != nil {
		return plan.Plan{}, nil, err
	}
	lines, err := s.planLines(ctx, planID)
	if err != nil {
		return plan.Plan{}, nil, err
	}
	return p, lines, nil
}

// SaveLines replaces all lines of the plan in one transaction, after the
// batch checks. A rejected batch leaves the persisted lines untouched.
// Last write wins across concurrent editors.
func (s *Store) SaveLines(ctx context.Context, planID uuid.UUID, lines []plan.Line) error {
	p, err := s.GetPlan(ctx, planID)
	if err != nil {
		return err
	}

	seen := make(map[uuid.UUID]struct{}, len(lines))
	for i, l := range lines {
		if l.FromWarehouse == l.ToWarehouse && l.FromChannel == l.ToChannel {
			return engine.ErrIdenticalEndpoints
		}
		// A persisted line that does not parse would vanish from the baked
		// Move without a trace, so malformed quantities never reach disk.
		qty, ok := engine.ParseQty(l.Qty)
		if !ok {
			return &engine.LineError{Index: i, Field: engine.FieldQty,
				Message: "quantity must be a number greater than zero"}
		}
		if !qty.IsInteger() {
			return &engine.LineError{Index: i, Field: engine.FieldQty,
				Message: "quantity must be a whole number"}
		}
		if l.LineID != uuid.Nil {
			if _, dup := seen[l.LineID]; dup {
				return engine.ErrDuplicateLineID
			}
			seen[l.LineID] = struct{}{}
		}
	}

	if err := s.checkStockSufficiency(ctx, p, lines); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transfer_plan_lines WHERE plan_id = ?`, planID.String()); err != nil {
		return err
	}

	stored := make([]plan.Line, len(lines))
	for i, l := range lines {
		if l.LineID == uuid.Nil {
			l.LineID = uuid.New()
		}
		l.PlanID = planID
		stored[i] = l
	}
	if err := insertLines(ctx, tx, stored); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE transfer_plans SET updated_at = ? WHERE plan_id = ?`,
		time.Now().UTC().Format(time.RFC3339), planID.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// MatrixRows implements plan.Backend by delegating to FetchMatrixRows.
func (s *Store) MatrixRows(ctx context.Context, sessionID uuid.UUID, start, end time.Time, planID *uuid.UUID) ([]engine.MatrixRow, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.FetchMatrixRows(ctx, MatrixQuery{
		SessionID: sessionID,
		Start:     start,
		End:       end,
		PlanID:    planID,
	})
}

// checkStockSufficiency verifies each donor cell's total outgoing qty
// against its stock at anchor. Quantities are known to parse by the
// time this runs; the save batch rejects malformed ones first.
func (s *Store) checkStockSufficiency(ctx context.Context, p plan.Plan, lines []plan.Line) error {
	base, err := s.aggregateWindow(ctx, MatrixQuery{
		SessionID: p.SessionID,
		Start:     p.StartDate,
		End:       p.EndDate,
	})
	if err != nil {
		return err
	}

	anchor := make(map[engine.CellKey]decimal.Decimal, len(base))
	for _, row := range base {
		anchor[engine.ScopeNetwork.RowKey(row)] = row.StockAtAnchor
	}

	outgoing := make(map[engine.CellKey]decimal.Decimal)
	for _, l := range lines {
		qty, ok := engine.ParseQty(l.Qty)
		if !ok {
			continue
		}
		key := engine.CellKey{SKUCode: l.SKUCode, Warehouse: l.FromWarehouse, Channel: l.FromChannel}
		outgoing[key] = outgoing[key].Add(qty)
	}

	for key, requested := range outgoing {
		available := anchor[key]
		if requested.GreaterThan(available) {
			return &engine.InsufficientStockError{
				Key:       key,
				Requested: requested,
				Available: available,
			}
		}
	}
	return nil
}

func insertLines(ctx context.Context, tx *sql.Tx, lines []plan.Line) error {
	if len(lines) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transfer_plan_lines (
			line_id, plan_id, sku_code, from_warehouse, from_channel,
			to_warehouse, to_channel, qty, is_manual, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, l := range lines {
		_, err := stmt.ExecContext(ctx,
			l.LineID.String(), l.PlanID.String(), l.SKUCode,
			l.FromWarehouse, l.FromChannel, l.ToWarehouse, l.ToChannel,
			l.Qty, boolInt(l.IsManual), l.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert plan line: %w", err)
		}
	}
	return nil
}
