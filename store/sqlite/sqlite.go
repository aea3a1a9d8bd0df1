/*
Package sqlite provides the SQLite-backed persistence for the planner.

PURPOSE:
  Implements storage for planning sessions, the PSI base table, warehouse
  masters, transfer plans and their lines, channel transfers, and the
  reallocation policy. The same store implements plan.Backend and
  channelmove.Backend, so the editors run against it directly.

KEY TABLES:
  sessions:            Planning sessions scoping all data
  psi_base:            Daily PSI metrics per (sku, warehouse, channel)
  warehouse_master:    Warehouse names and their main sales channel
  transfer_plans:      Plan headers per session and date window
  transfer_plan_lines: Plan lines, replaced wholesale on save
  channel_transfers:   Day-scoped channel moves, natural composite key
  reallocation_policy: Single-row policy tuning recommendations

DECIMALS:
  Quantities are stored as TEXT and parsed with shopspring/decimal; the
  store never does arithmetic in SQL. Aggregation happens in Go where
  decimal precision is guaranteed.

CONCURRENCY:
  sync.RWMutex around the connection, WAL mode for readers. Saves are
  last-write-wins: there is no version token on plans, and a concurrent
  save by another user overwrites silently. Accepted behavior, matching
  the system this store backs.

USAGE:
  store, err := sqlite.New(":memory:")
  ...
  editor := plan.NewEditor(store)

SEE ALSO:
  - plans.go:     Transfer plans and the plan.Backend implementation
  - transfers.go: Channel transfers and the channelmove.Backend implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/stockflow/psi-planner/engine"
)

const dateLayout = "2006-01-02"

// Store implements all persistence for the planner.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory DSN gives every pooled connection its
	// own empty database, and a single writer suits sqlite anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS warehouse_master (
		warehouse_name TEXT PRIMARY KEY,
		main_channel TEXT NOT NULL DEFAULT ''
	);

	-- Daily PSI metrics supplied by the upstream pipeline. The planner
	-- reads these; it never derives stdstock or safety figures itself.
	CREATE TABLE IF NOT EXISTS psi_base (
		session_id TEXT NOT NULL,
		date TEXT NOT NULL,
		sku_code TEXT NOT NULL,
		sku_name TEXT,
		warehouse_name TEXT NOT NULL,
		channel TEXT NOT NULL,
		category_1 TEXT,
		category_2 TEXT,
		category_3 TEXT,
		stock_at_anchor TEXT NOT NULL DEFAULT '0',
		inbound_qty TEXT NOT NULL DEFAULT '0',
		outbound_qty TEXT NOT NULL DEFAULT '0',
		stock_closing TEXT NOT NULL DEFAULT '0',
		stdstock TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (session_id, date, sku_code, warehouse_name, channel)
	);

	CREATE INDEX IF NOT EXISTS idx_psi_base_session_date
		ON psi_base(session_id, date);

	CREATE TABLE IF NOT EXISTS transfer_plans (
		plan_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transfer_plans_session
		ON transfer_plans(session_id);

	CREATE TABLE IF NOT EXISTS transfer_plan_lines (
		line_id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL REFERENCES transfer_plans(plan_id) ON DELETE CASCADE,
		sku_code TEXT NOT NULL,
		from_warehouse TEXT NOT NULL,
		from_channel TEXT NOT NULL,
		to_warehouse TEXT NOT NULL,
		to_channel TEXT NOT NULL,
		qty TEXT NOT NULL,
		is_manual INTEGER NOT NULL DEFAULT 0,
		reason TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_plan_lines_plan
		ON transfer_plan_lines(plan_id);

	CREATE TABLE IF NOT EXISTS channel_transfers (
		session_id TEXT NOT NULL REFERENCES sessions(id),
		sku_code TEXT NOT NULL,
		warehouse_name TEXT NOT NULL,
		transfer_date TEXT NOT NULL,
		from_channel TEXT NOT NULL,
		to_channel TEXT NOT NULL,
		qty TEXT NOT NULL,
		note TEXT,
		PRIMARY KEY (session_id, sku_code, warehouse_name, transfer_date, from_channel, to_channel)
	);

	CREATE INDEX IF NOT EXISTS idx_channel_transfers_session_date
		ON channel_transfers(session_id, transfer_date);

	-- Single-row policy; id is pinned to 1.
	CREATE TABLE IF NOT EXISTS reallocation_policy (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		take_from_other_main INTEGER NOT NULL DEFAULT 0,
		rounding_mode TEXT NOT NULL DEFAULT 'floor',
		allow_overfill INTEGER NOT NULL DEFAULT 0,
		fair_share_mode TEXT NOT NULL DEFAULT 'off',
		updated_at TEXT,
		updated_by TEXT
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// SESSIONS
// =============================================================================

// Session is one planning session; all PSI data, plans and transfers
// hang off a session.
type Session struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// CreateSession inserts a session, assigning an id when absent.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, created_at) VALUES (?, ?, ?)`,
		sess.ID.String(), sess.Name, sess.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// GetSession returns a session or engine.ErrSessionNotFound.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSession(ctx, id)
}

func (s *Store) getSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM sessions WHERE id = ?`, id.String())

	var sess Session
	var rawID, rawCreated string
	if err := row.Scan(&rawID, &sess.Name, &rawCreated); err != nil {
		if err == sql.ErrNoRows {
			return Session{}, engine.ErrSessionNotFound
		}
		return Session{}, err
	}
	sess.ID, _ = uuid.Parse(rawID)
	sess.CreatedAt, _ = time.Parse(time.RFC3339, rawCreated)
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var rawID, rawCreated string
		if err := rows.Scan(&rawID, &sess.Name, &rawCreated); err != nil {
			return nil, err
		}
		sess.ID, _ = uuid.Parse(rawID)
		sess.CreatedAt, _ = time.Parse(time.RFC3339, rawCreated)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// =============================================================================
// WAREHOUSE MASTER
// =============================================================================

// Warehouse is one warehouse master record.
type Warehouse struct {
	Name        string
	MainChannel string
}

// UpsertWarehouse inserts or updates a warehouse master record.
func (s *Store) UpsertWarehouse(ctx context.Context, w Warehouse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO warehouse_master (warehouse_name, main_channel) VALUES (?, ?)
		 ON CONFLICT(warehouse_name) DO UPDATE SET main_channel = excluded.main_channel`,
		w.Name, w.MainChannel)
	return err
}

// ListWarehouses returns all warehouse master records.
func (s *Store) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT warehouse_name, main_channel FROM warehouse_master ORDER BY warehouse_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.Name, &w.MainChannel); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// MainChannelMap returns warehouse -> main channel, skipping warehouses
// with no main channel configured.
func (s *Store) MainChannelMap(ctx context.Context) (map[string]string, error) {
	warehouses, err := s.ListWarehouses(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(warehouses))
	for _, w := range warehouses {
		if w.MainChannel != "" {
			m[w.Name] = w.MainChannel
		}
	}
	return m, nil
}

// =============================================================================
// PSI BASE
// =============================================================================

// PSIRow is one daily PSI record as supplied by the upstream pipeline.
type PSIRow struct {
	Date          time.Time
	SKUCode       string
	SKUName       string
	WarehouseName string
	Channel       string
	Category1     string
	Category2     string
	Category3     string
	StockAtAnchor decimal.Decimal
	InboundQty    decimal.Decimal
	OutboundQty   decimal.Decimal
	StockClosing  decimal.Decimal
	Stdstock      decimal.Decimal
}

// InsertPSIRows bulk-inserts daily PSI records for a session.
func (s *Store) InsertPSIRows(ctx context.Context, sessionID uuid.UUID, rows []PSIRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO psi_base (
			session_id, date, sku_code, sku_name, warehouse_name, channel,
			category_1, category_2, category_3,
			stock_at_anchor, inbound_qty, outbound_qty, stock_closing, stdstock
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx,
			sessionID.String(), r.Date.Format(dateLayout), r.SKUCode, r.SKUName,
			r.WarehouseName, r.Channel, r.Category1, r.Category2, r.Category3,
			r.StockAtAnchor.String(), r.InboundQty.String(), r.OutboundQty.String(),
			r.StockClosing.String(), r.Stdstock.String())
		if err != nil {
			return fmt.Errorf("failed to insert psi row: %w", err)
		}
	}
	return tx.Commit()
}

// MatrixQuery scopes a matrix fetch.
type MatrixQuery struct {
	SessionID  uuid.UUID
	Start      time.Time
	End        time.Time
	PlanID     *uuid.UUID
	SKUCodes   []string
	Warehouses []string
	Channels   []string
}

// FetchMatrixRows aggregates the PSI window into one row per cell:
// anchor stock and stdstock from the start date, closing stock from the
// end date, inbound/outbound summed over the window. When a plan is
// given, its persisted lines are baked into Move and cells referenced
// only by lines appear with zero stock figures - exactly the baseline
// shape delta-mode simulation expects.
func (s *Store) FetchMatrixRows(ctx context.Context, q MatrixQuery) ([]engine.MatrixRow, error) {
	if q.End.Before(q.Start) {
		return nil, engine.ErrInvalidDateRange
	}

	base, err := s.aggregateWindow(ctx, q)
	if err != nil {
		return nil, err
	}

	var lines []engine.MovementLine
	if q.PlanID != nil {
		planLines, err := s.planMovements(ctx, *q.PlanID)
		if err != nil {
			return nil, err
		}
		lines = planLines
	}

	// Baking the plan into the snapshot is an additive overlay: Move
	// becomes the lines' ledger, derived columns follow, and the key
	// union brings in plan-only cells.
	sim := engine.Simulator{Scope: engine.ScopeNetwork, Mode: engine.ModeAdditive}
	return sim.Simulate(base, nil, lines), nil
}

func (s *Store) aggregateWindow(ctx context.Context, q MatrixQuery) ([]engine.MatrixRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT date, sku_code, COALESCE(sku_name, ''), warehouse_name, channel,
		       COALESCE(category_1, ''), COALESCE(category_2, ''), COALESCE(category_3, ''),
		       stock_at_anchor, inbound_qty, outbound_qty, stock_closing, stdstock
		FROM psi_base
		WHERE session_id = ? AND date >= ? AND date <= ?`
	args := []any{q.SessionID.String(), q.Start.Format(dateLayout), q.End.Format(dateLayout)}
	query, args = appendInFilter(query, args, "sku_code", q.SKUCodes)
	query, args = appendInFilter(query, args, "warehouse_name", q.Warehouses)
	query, args = appendInFilter(query, args, "channel", q.Channels)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type cellID struct{ sku, warehouse, channel string }
	cells := make(map[cellID]*engine.MatrixRow)

	startStr := q.Start.Format(dateLayout)
	endStr := q.End.Format(dateLayout)

	for rows.Next() {
		var date, sku, name, warehouse, channel, c1, c2, c3 string
		var anchor, inbound, outbound, closing, stdstock string
		if err := rows.Scan(&date, &sku, &name, &warehouse, &channel, &c1, &c2, &c3,
			&anchor, &inbound, &outbound, &closing, &stdstock); err != nil {
			return nil, err
		}

		key := cellID{sku, warehouse, channel}
		row, ok := cells[key]
		if !ok {
			row = &engine.MatrixRow{
				SKUCode:       sku,
				WarehouseName: warehouse,
				Channel:       channel,
			}
			cells[key] = row
		}
		if row.SKUName == "" {
			row.SKUName = name
		}
		if row.Category1 == "" && row.Category2 == "" && row.Category3 == "" {
			row.Category1, row.Category2, row.Category3 = c1, c2, c3
		}
		row.InboundQty = row.InboundQty.Add(parseDecimal(inbound))
		row.OutboundQty = row.OutboundQty.Add(parseDecimal(outbound))
		if date == startStr {
			row.StockAtAnchor = parseDecimal(anchor)
			row.Stdstock = parseDecimal(stdstock)
		}
		if date == endStr {
			row.StockClosing = parseDecimal(closing)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]engine.MatrixRow, 0, len(cells))
	for _, row := range cells {
		out = append(out, *row)
	}
	return out, nil
}

// FetchDayRows returns the daily pivot used by channel-move suggestions.
func (s *Store) FetchDayRows(ctx context.Context, sessionID uuid.UUID, start, end time.Time) ([]engine.DayRow, error) {
	if end.Before(start) {
		return nil, engine.ErrInvalidDateRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, sku_code, COALESCE(sku_name, ''), warehouse_name, channel,
		       stock_closing, outbound_qty
		FROM psi_base
		WHERE session_id = ? AND date >= ? AND date <= ?
		ORDER BY date, sku_code, warehouse_name, channel`,
		sessionID.String(), start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.DayRow
	for rows.Next() {
		var date, sku, name, warehouse, channel, closing, outbound string
		if err := rows.Scan(&date, &sku, &name, &warehouse, &channel, &closing, &outbound); err != nil {
			return nil, err
		}
		day, err := time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("bad date in psi_base: %w", err)
		}
		out = append(out, engine.DayRow{
			Date:          day,
			SKUCode:       sku,
			SKUName:       name,
			WarehouseName: warehouse,
			Channel:       channel,
			StockClosing:  parseDecimal(closing),
			OutboundQty:   parseDecimal(outbound),
		})
	}
	return out, rows.Err()
}

// =============================================================================
// REALLOCATION POLICY
// =============================================================================

// GetPolicy returns the stored policy, or the defaults when none saved.
func (s *Store) GetPolicy(ctx context.Context) (engine.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT take_from_other_main, rounding_mode, allow_overfill, fair_share_mode,
		       COALESCE(updated_at, ''), COALESCE(updated_by, '')
		FROM reallocation_policy WHERE id = 1`)

	var p engine.Policy
	var takeFromOtherMain, allowOverfill int
	var rounding, fairShare, rawUpdatedAt string
	err := row.Scan(&takeFromOtherMain, &rounding, &allowOverfill, &fairShare,
		&rawUpdatedAt, &p.UpdatedBy)
	if err == sql.ErrNoRows {
		return engine.DefaultPolicy(), nil
	}
	if err != nil {
		return engine.Policy{}, err
	}

	p.TakeFromOtherMain = takeFromOtherMain != 0
	p.Rounding = engine.RoundingMode(rounding)
	p.AllowOverfill = allowOverfill != 0
	p.FairShare = engine.FairShareMode(fairShare)
	if rawUpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, rawUpdatedAt); err == nil {
			p.UpdatedAt = &t
		}
	}
	return p, nil
}

// SavePolicy upserts the single policy row and returns the stored value.
func (s *Store) SavePolicy(ctx context.Context, p engine.Policy) (engine.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p.UpdatedAt = &now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reallocation_policy
			(id, take_from_other_main, rounding_mode, allow_overfill, fair_share_mode, updated_at, updated_by)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			take_from_other_main = excluded.take_from_other_main,
			rounding_mode = excluded.rounding_mode,
			allow_overfill = excluded.allow_overfill,
			fair_share_mode = excluded.fair_share_mode,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		boolInt(p.TakeFromOtherMain), string(p.Rounding), boolInt(p.AllowOverfill),
		string(p.FairShare), now.Format(time.RFC3339), p.UpdatedBy)
	if err != nil {
		return engine.Policy{}, err
	}
	return p, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(raw string) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// appendInFilter extends a query with "AND col IN (...)" when values are
// present.
func appendInFilter(query string, args []any, column string, values []string) (string, []any) {
	if len(values) == 0 {
		return query, args
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args = append(args, v)
	}
	return query + fmt.Sprintf(" AND %s IN (%s)", column, strings.Join(placeholders, ", ")), args
}
