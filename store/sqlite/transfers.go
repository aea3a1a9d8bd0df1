/*
transfers.go - Channel transfers and the channelmove.Backend implementation

PURPOSE:
  Persistence for day-scoped channel transfers. Records carry a natural
  composite key (session, sku, warehouse, date, from, to); creating a
  record that already exists is a conflict, not an upsert. The store also
  implements channelmove.Backend so the day editor runs against it.
*/
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stockflow/psi-planner/channelmove"
	"github.com/stockflow/psi-planner/engine"
)

// =============================================================================
// CHANNEL TRANSFER CRUD
// =============================================================================

// TransferFilter scopes ListTransfers. SessionID is required; everything
// else narrows.
type TransferFilter struct {
	SessionID     uuid.UUID
	SKUCode       string
	WarehouseName string
	Start         time.Time
	End           time.Time
}

// ListTransfers returns a session's channel transfers, optionally
// narrowed by SKU, warehouse and date range.
func (s *Store) ListTransfers(ctx context.Context, f TransferFilter) ([]channelmove.Transfer, error) {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return nil, engine.ErrInvalidDateRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT session_id, sku_code, warehouse_name, transfer_date,
		       from_channel, to_channel, qty, COALESCE(note, '')
		FROM channel_transfers
		WHERE session_id = ?`
	args := []any{f.SessionID.String()}
	if f.SKUCode != "" {
		query += " AND sku_code = ?"
		args = append(args, f.SKUCode)
	}
	if f.WarehouseName != "" {
		query += " AND warehouse_name = ?"
		args = append(args, f.WarehouseName)
	}
	if !f.Start.IsZero() {
		query += " AND transfer_date >= ?"
		args = append(args, f.Start.Format(dateLayout))
	}
	if !f.End.IsZero() {
		query += " AND transfer_date <= ?"
		args = append(args, f.End.Format(dateLayout))
	}
	query += " ORDER BY transfer_date, sku_code, warehouse_name, from_channel, to_channel"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransfers(rows)
}

// CreateTransfer inserts a channel transfer. An existing record with the
// same natural key is a conflict.
func (s *Store) CreateTransfer(ctx context.Context, t channelmove.Transfer) error {
	if t.FromChannel == t.ToChannel {
		return engine.ErrIdenticalEndpoints
	}
	if _, err := s.GetSession(ctx, t.SessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_transfers
			(session_id, sku_code, warehouse_name, transfer_date, from_channel, to_channel, qty, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID.String(), t.SKUCode, t.WarehouseName,
		t.TransferDate.Format(dateLayout), t.FromChannel, t.ToChannel, t.Qty, t.Note)
	if err != nil {
		if isUniqueViolation(err) {
			return engine.ErrTransferExists
		}
		return err
	}
	return nil
}

// UpdateTransfer updates qty and note of an existing transfer, located by
// its natural key.
func (s *Store) UpdateTransfer(ctx context.Context, t channelmove.Transfer) error {
	if t.FromChannel == t.ToChannel {
		return engine.ErrIdenticalEndpoints
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE channel_transfers SET qty = ?, note = ?
		WHERE session_id = ? AND sku_code = ? AND warehouse_name = ?
		  AND transfer_date = ? AND from_channel = ? AND to_channel = ?`,
		t.Qty, t.Note,
		t.SessionID.String(), t.SKUCode, t.WarehouseName,
		t.TransferDate.Format(dateLayout), t.FromChannel, t.ToChannel)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrTransferNotFound
	}
	return nil
}

// DeleteTransfer removes a transfer by its natural key.
func (s *Store) DeleteTransfer(ctx context.Context, t channelmove.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM channel_transfers
		WHERE session_id = ? AND sku_code = ? AND warehouse_name = ?
		  AND transfer_date = ? AND from_channel = ? AND to_channel = ?`,
		t.SessionID.String(), t.SKUCode, t.WarehouseName,
		t.TransferDate.Format(dateLayout), t.FromChannel, t.ToChannel)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return engine.ErrTransferNotFound
	}
	return nil
}

// =============================================================================
// CHANNELMOVE.BACKEND
// =============================================================================

// LoadDay returns the persisted transfers for the key plus the day's
// per-channel snapshot from psi_base. No history is baked into the
// snapshot; the editor's additive simulation applies the draft directly.
func (s *Store) LoadDay(ctx context.Context, key channelmove.DayKey) ([]channelmove.Transfer, []engine.MatrixRow, error) {
	if _, err := s.GetSession(ctx, key.SessionID); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	dateStr := key.Date.Format(dateLayout)

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, sku_code, warehouse_name, transfer_date,
		       from_channel, to_channel, qty, COALESCE(note, '')
		FROM channel_transfers
		WHERE session_id = ? AND sku_code = ? AND warehouse_name = ? AND transfer_date = ?
		ORDER BY from_channel, to_channel`,
		key.SessionID.String(), key.SKUCode, key.WarehouseName, dateStr)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	transfers, err := scanTransfers(rows)
	if err != nil {
		return nil, nil, err
	}

	snapRows, err := s.db.QueryContext(ctx, `
		SELECT sku_code, COALESCE(sku_name, ''), warehouse_name, channel,
		       stock_at_anchor, inbound_qty, outbound_qty, stock_closing, stdstock
		FROM psi_base
		WHERE session_id = ? AND sku_code = ? AND warehouse_name = ? AND date = ?
		ORDER BY channel`,
		key.SessionID.String(), key.SKUCode, key.WarehouseName, dateStr)
	if err != nil {
		return nil, nil, err
	}
	defer snapRows.Close()

	var snapshot []engine.MatrixRow
	for snapRows.Next() {
		var row engine.MatrixRow
		var anchor, inbound, outbound, closing, stdstock string
		err := snapRows.Scan(&row.SKUCode, &row.SKUName, &row.WarehouseName, &row.Channel,
			&anchor, &inbound, &outbound, &closing, &stdstock)
		if err != nil {
			return nil, nil, err
		}
		row.StockAtAnchor = parseDecimal(anchor)
		row.InboundQty = parseDecimal(inbound)
		row.OutboundQty = parseDecimal(outbound)
		row.StockClosing = parseDecimal(closing)
		row.Stdstock = parseDecimal(stdstock)
		row.Gap = row.StockClosing.Sub(row.Stdstock)
		row.StockFin = row.StockClosing
		row.GapAfter = row.Gap
		snapshot = append(snapshot, row)
	}
	if err := snapRows.Err(); err != nil {
		return nil, nil, err
	}
	return transfers, snapshot, nil
}

// SaveDay replaces the key's transfers in one transaction.
func (s *Store) SaveDay(ctx context.Context, key channelmove.DayKey, transfers []channelmove.Transfer) error {
	if _, err := s.GetSession(ctx, key.SessionID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	dateStr := key.Date.Format(dateLayout)
	_, err = tx.ExecContext(ctx, `
		DELETE FROM channel_transfers
		WHERE session_id = ? AND sku_code = ? AND warehouse_name = ? AND transfer_date = ?`,
		key.SessionID.String(), key.SKUCode, key.WarehouseName, dateStr)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO channel_transfers
			(session_id, sku_code, warehouse_name, transfer_date, from_channel, to_channel, qty, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range transfers {
		_, err := stmt.ExecContext(ctx,
			key.SessionID.String(), key.SKUCode, key.WarehouseName, dateStr,
			t.FromChannel, t.ToChannel, t.Qty, t.Note)
		if err != nil {
			if isUniqueViolation(err) {
				return engine.ErrTransferExists
			}
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

func scanTransfers(rows *sql.Rows) ([]channelmove.Transfer, error) {
	var out []channelmove.Transfer
	for rows.Next() {
		var t channelmove.Transfer
		var rawSessionID, rawDate string
		err := rows.Scan(&rawSessionID, &t.SKUCode, &t.WarehouseName, &rawDate,
			&t.FromChannel, &t.ToChannel, &t.Qty, &t.Note)
		if err != nil {
			return nil, err
		}
		t.SessionID, _ = uuid.Parse(rawSessionID)
		t.TransferDate, _ = time.Parse(dateLayout, rawDate)
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
