/*
memory.go - In-memory Backend for tests and demos

PURPOSE:
  Implements the plan.Backend contract against maps, mirroring the server
  behavior the editor relies on: recommended plans are generated from the
  seeded matrix, saved lines replace a plan's lines atomically, and
  fetched rows bake the persisted plan's moves into Move. The window
  parameters are accepted but not used to filter; the seeded rows stand
  for one pre-aggregated window.
*/
package plan

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/psi-planner/engine"
)

// Memory is an in-memory Backend. Safe for concurrent use.
type Memory struct {
	mu           sync.RWMutex
	sessions     map[uuid.UUID]struct{}
	rows         []engine.MatrixRow
	mainChannels map[string]string
	policy       engine.Policy
	plans        map[uuid.UUID]Plan
	lines        map[uuid.UUID][]Line
}

// NewMemory creates an empty in-memory backend with the default policy.
func NewMemory() *Memory {
	return &Memory{
		sessions:     make(map[uuid.UUID]struct{}),
		mainChannels: make(map[string]string),
		policy:       engine.DefaultPolicy(),
		plans:        make(map[uuid.UUID]Plan),
		lines:        make(map[uuid.UUID][]Line),
	}
}

// SeedSession registers a session id.
func (m *Memory) SeedSession(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = struct{}{}
}

// SeedRows installs the aggregated matrix snapshot (no plan moves baked).
func (m *Memory) SeedRows(rows []engine.MatrixRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append([]engine.MatrixRow(nil), rows...)
}

// SetMainChannels installs the warehouse-to-main-channel map.
func (m *Memory) SetMainChannels(mc map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mainChannels = make(map[string]string, len(mc))
	for k, v := range mc {
		m.mainChannels[k] = v
	}
}

// SetPolicy installs the reallocation policy used by Recommend.
func (m *Memory) SetPolicy(p engine.Policy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = p
}

// Recommend generates a draft plan from the seeded matrix.
func (m *Memory) Recommend(_ context.Context, sessionID uuid.UUID, start, end time.Time) (Plan, []Line, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return Plan{}, nil, engine.ErrSessionNotFound
	}
	if end.Before(start) {
		return Plan{}, nil, engine.ErrInvalidDateRange
	}

	now := time.Now().UTC()
	p := Plan{
		PlanID:    uuid.New(),
		SessionID: sessionID,
		StartDate: start,
		EndDate:   end,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	base := normalizeRows(m.rows, nil)
	moves := engine.Recommend(base, m.mainChannels, m.policy)

	lines := make([]Line, 0, len(moves))
	for _, mv := range moves {
		lines = append(lines, Line{
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

	m.plans[p.PlanID] = p
	m.lines[p.PlanID] = append([]Line(nil), lines...)
	return p, lines, nil
}

// LoadPlan returns a stored plan and its lines.
func (m *Memory) LoadPlan(_ context.Context, planID uuid.UUID) (Plan, []Line, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[planID]
	if !ok {
		return Plan{}, nil, engine.ErrPlanNotFound
	}
	return p, append([]Line(nil), m.lines[planID]...), nil
}

// SaveLines replaces the plan's lines. Duplicate line ids and identical
// endpoints are rejected with nothing applied, like the real server.
func (m *Memory) SaveLines(_ context.Context, planID uuid.UUID, lines []Line) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.plans[planID]
	if !ok {
		return engine.ErrPlanNotFound
	}

	seen := make(map[uuid.UUID]struct{}, len(lines))
	for _, l := range lines {
		if l.FromWarehouse == l.ToWarehouse && l.FromChannel == l.ToChannel {
			return engine.ErrIdenticalEndpoints
		}
		if l.LineID != uuid.Nil {
			if _, dup := seen[l.LineID]; dup {
				return engine.ErrDuplicateLineID
			}
			seen[l.LineID] = struct{}{}
		}
	}

	stored := make([]Line, len(lines))
	for i, l := range lines {
		if l.LineID == uuid.Nil {
			l.LineID = uuid.New()
		}
		l.PlanID = planID
		stored[i] = l
	}
	m.lines[planID] = stored
	p.UpdatedAt = time.Now().UTC()
	m.plans[planID] = p
	return nil
}

// MatrixRows returns the seeded snapshot, with the plan's persisted lines
// baked into Move when planID is given.
func (m *Memory) MatrixRows(_ context.Context, sessionID uuid.UUID, _, _ time.Time, planID *uuid.UUID) ([]engine.MatrixRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sessions[sessionID]; !ok {
		return nil, engine.ErrSessionNotFound
	}

	var lines []Line
	if planID != nil {
		if _, ok := m.plans[*planID]; !ok {
			return nil, engine.ErrPlanNotFound
		}
		lines = m.lines[*planID]
	}
	return normalizeRows(m.rows, lines), nil
}

// normalizeRows bakes lines into the snapshot via an additive overlay:
// Move becomes the lines' ledger, StockFin/Gap/GapAfter are derived, and
// cells referenced only by lines appear with zero stock figures.
func normalizeRows(rows []engine.MatrixRow, lines []Line) []engine.MatrixRow {
	sim := engine.Simulator{Scope: engine.ScopeNetwork, Mode: engine.ModeAdditive}
	return sim.Simulate(rows, nil, Movements(lines))
}
