/*
handlers.go - HTTP API handlers for the stock planner

PURPOSE:
  Exposes the planner via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Sessions:
    GET    /api/sessions               List all sessions
    POST   /api/sessions               Create session
    GET    /api/sessions/{id}          Get session details
    POST   /api/sessions/{id}/psi      Bulk-upload daily PSI rows
    GET    /api/sessions/{id}/matrix   Aggregated matrix for a window
    GET    /api/sessions/{id}/suggestions  Channel-move suggestions

  Warehouses:
    GET    /api/warehouses             List warehouse masters
    PUT    /api/warehouses             Upsert warehouse master

  Plans:
    GET    /api/sessions/{id}/plans    List a session's plans
    POST   /api/sessions/{id}/plans/recommend  Generate a draft plan
    GET    /api/plans/{id}             Get plan with lines
    PUT    /api/plans/{id}/lines       Replace plan lines

  Channel transfers:
    GET    /api/sessions/{id}/transfers  List (filterable)
    POST   /api/transfers              Create
    PUT    /api/transfers              Update qty/note by key
    DELETE /api/transfers              Delete by key

  Policy:
    GET    /api/policy                 Get reallocation policy
    PUT    /api/policy                 Save reallocation policy

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (transfer key already exists)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stockflow/psi-planner/channelmove"
	"github.com/stockflow/psi-planner/engine"
	"github.com/stockflow/psi-planner/plan"
	"github.com/stockflow/psi-planner/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{Store: store}
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// ListSessions returns all sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.Store.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions", err)
		return
	}

	dtos := make([]SessionDTO, len(sessions))
	for i, s := range sessions {
		dtos[i] = toSessionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateSession creates a new planning session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	sess, err := h.Store.CreateSession(r.Context(), sqlite.Session{Name: req.Name})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(sess))
}

// GetSession returns a single session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	sess, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(sess))
}

// =============================================================================
// WAREHOUSE HANDLERS
// =============================================================================

// ListWarehouses returns all warehouse master records.
func (h *Handler) ListWarehouses(w http.ResponseWriter, r *http.Request) {
	warehouses, err := h.Store.ListWarehouses(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list warehouses", err)
		return
	}

	dtos := make([]WarehouseDTO, len(warehouses))
	for i, wh := range warehouses {
		dtos[i] = WarehouseDTO{Name: wh.Name, MainChannel: wh.MainChannel}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertWarehouse creates or updates a warehouse master record.
func (h *Handler) UpsertWarehouse(w http.ResponseWriter, r *http.Request) {
	var req WarehouseDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	err := h.Store.UpsertWarehouse(r.Context(), sqlite.Warehouse{
		Name:        req.Name,
		MainChannel: req.MainChannel,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save warehouse", err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// =============================================================================
// PSI MATRIX HANDLERS
// =============================================================================

// UploadPSIRows bulk-inserts daily PSI rows for a session.
func (h *Handler) UploadPSIRows(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	var reqs []PSIRowRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rows := make([]sqlite.PSIRow, 0, len(reqs))
	for _, req := range reqs {
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		if req.SKUCode == "" || req.WarehouseName == "" || req.Channel == "" {
			writeError(w, http.StatusBadRequest, "sku_code, warehouse_name and channel are required", nil)
			return
		}
		row := sqlite.PSIRow{
			Date:          date,
			SKUCode:       req.SKUCode,
			SKUName:       req.SKUName,
			WarehouseName: req.WarehouseName,
			Channel:       req.Channel,
			Category1:     req.Category1,
			Category2:     req.Category2,
			Category3:     req.Category3,
		}
		fields := []struct {
			raw  string
			dest *decimal.Decimal
		}{
			{req.StockAtAnchor, &row.StockAtAnchor},
			{req.InboundQty, &row.InboundQty},
			{req.OutboundQty, &row.OutboundQty},
			{req.StockClosing, &row.StockClosing},
			{req.Stdstock, &row.Stdstock},
		}
		for _, f := range fields {
			if f.raw == "" {
				continue
			}
			d, err := decimal.NewFromString(f.raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid decimal quantity", err)
				return
			}
			*f.dest = d
		}
		rows = append(rows, row)
	}

	if err := h.Store.InsertPSIRows(r.Context(), sessionID, rows); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to insert PSI rows", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"inserted": len(rows)})
}

// GetMatrix returns the aggregated matrix for a window. Query params:
// start, end (required, YYYY-MM-DD), plan_id (optional, bakes the plan's
// lines into Move), sku, warehouse, channel (optional, repeatable).
func (h *Handler) GetMatrix(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	start, end, ok := parseWindow(w, r)
	if !ok {
		return
	}

	q := sqlite.MatrixQuery{
		SessionID:  sessionID,
		Start:      start,
		End:        end,
		SKUCodes:   r.URL.Query()["sku"],
		Warehouses: r.URL.Query()["warehouse"],
		Channels:   r.URL.Query()["channel"],
	}
	if raw := r.URL.Query().Get("plan_id"); raw != "" {
		planID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid plan_id", err)
			return
		}
		q.PlanID = &planID
	}

	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}
	rows, err := h.Store.FetchMatrixRows(r.Context(), q)
	if err != nil {
		writeDomainError(w, "Failed to fetch matrix", err)
		return
	}
	writeJSON(w, http.StatusOK, toMatrixRowDTOs(rows))
}

// =============================================================================
// TRANSFER PLAN HANDLERS
// =============================================================================

// ListPlans returns a session's transfer plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	plans, err := h.Store.ListPlans(r.Context(), sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list plans", err)
		return
	}
	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = toPlanDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecommendPlan generates and persists a recommended draft plan.
func (h *Handler) RecommendPlan(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	p, lines, err := h.Store.Recommend(r.Context(), sessionID, start, end)
	if err != nil {
		writeDomainError(w, "Failed to generate recommendation", err)
		return
	}
	writeJSON(w, http.StatusCreated, PlanResponse{
		Plan:  toPlanDTO(p),
		Lines: toPlanLineDTOs(lines),
	})
}

// GetPlan returns a plan with its lines.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	planID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	p, lines, err := h.Store.LoadPlan(r.Context(), planID)
	if err != nil {
		writeDomainError(w, "Failed to get plan", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanResponse{
		Plan:  toPlanDTO(p),
		Lines: toPlanLineDTOs(lines),
	})
}

// ReplacePlanLines replaces all lines of a plan. All-or-nothing: the
// batch checks reject the whole save and persisted lines stay untouched.
func (h *Handler) ReplacePlanLines(w http.ResponseWriter, r *http.Request) {
	planID, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var req ReplaceLinesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]plan.Line, 0, len(req.Lines))
	for _, dto := range req.Lines {
		l := plan.Line{
			PlanID:        planID,
			SKUCode:       dto.SKUCode,
			FromWarehouse: dto.FromWarehouse,
			FromChannel:   dto.FromChannel,
			ToWarehouse:   dto.ToWarehouse,
			ToChannel:     dto.ToChannel,
			Qty:           dto.Qty,
			IsManual:      dto.IsManual,
			Reason:        dto.Reason,
		}
		if dto.LineID != "" {
			lineID, err := uuid.Parse(dto.LineID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid line_id", err)
				return
			}
			l.LineID = lineID
		}
		lines = append(lines, l)
	}

	if err := h.Store.SaveLines(r.Context(), planID, lines); err != nil {
		writeDomainError(w, "Failed to save plan lines", err)
		return
	}

	_, saved, err := h.Store.LoadPlan(r.Context(), planID)
	if err != nil {
		writeDomainError(w, "Failed to reload plan", err)
		return
	}
	writeJSON(w, http.StatusOK, ReplaceLinesRequest{Lines: toPlanLineDTOs(saved)})
}

// =============================================================================
// CHANNEL TRANSFER HANDLERS
// =============================================================================

// ListTransfers returns a session's channel transfers. Query params:
// sku, warehouse, start, end (all optional).
func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	f := sqlite.TransferFilter{
		SessionID:     sessionID,
		SKUCode:       r.URL.Query().Get("sku"),
		WarehouseName: r.URL.Query().Get("warehouse"),
	}
	if raw := r.URL.Query().Get("start"); raw != "" {
		start, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start format (use YYYY-MM-DD)", err)
			return
		}
		f.Start = start
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		end, err := time.Parse(dateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end format (use YYYY-MM-DD)", err)
			return
		}
		f.End = end
	}

	transfers, err := h.Store.ListTransfers(r.Context(), f)
	if err != nil {
		writeDomainError(w, "Failed to list transfers", err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelTransferDTOs(transfers))
}

// CreateTransfer creates a channel transfer.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	t, ok := decodeTransfer(w, r)
	if !ok {
		return
	}
	if err := h.Store.CreateTransfer(r.Context(), t); err != nil {
		writeDomainError(w, "Failed to create transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toChannelTransferDTO(t))
}

// UpdateTransfer updates qty and note of a transfer located by its key.
func (h *Handler) UpdateTransfer(w http.ResponseWriter, r *http.Request) {
	t, ok := decodeTransfer(w, r)
	if !ok {
		return
	}
	if err := h.Store.UpdateTransfer(r.Context(), t); err != nil {
		writeDomainError(w, "Failed to update transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelTransferDTO(t))
}

// DeleteTransfer removes a transfer located by its key.
func (h *Handler) DeleteTransfer(w http.ResponseWriter, r *http.Request) {
	t, ok := decodeTransfer(w, r)
	if !ok {
		return
	}
	if err := h.Store.DeleteTransfer(r.Context(), t); err != nil {
		writeDomainError(w, "Failed to delete transfer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeTransfer(w http.ResponseWriter, r *http.Request) (channelmove.Transfer, bool) {
	var dto ChannelTransferDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return channelmove.Transfer{}, false
	}

	sessionID, err := uuid.Parse(dto.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session_id", err)
		return channelmove.Transfer{}, false
	}
	date, err := time.Parse(dateLayout, dto.TransferDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid transfer_date format (use YYYY-MM-DD)", err)
		return channelmove.Transfer{}, false
	}
	if dto.SKUCode == "" || dto.WarehouseName == "" || dto.FromChannel == "" || dto.ToChannel == "" {
		writeError(w, http.StatusBadRequest, "sku_code, warehouse_name, from_channel and to_channel are required", nil)
		return channelmove.Transfer{}, false
	}
	if _, ok := engine.ParseQty(dto.Qty); !ok {
		writeError(w, http.StatusBadRequest, "qty must be a positive number", nil)
		return channelmove.Transfer{}, false
	}

	return channelmove.Transfer{
		SessionID:     sessionID,
		SKUCode:       dto.SKUCode,
		WarehouseName: dto.WarehouseName,
		TransferDate:  date,
		FromChannel:   dto.FromChannel,
		ToChannel:     dto.ToChannel,
		Qty:           dto.Qty,
		Note:          dto.Note,
	}, true
}

// =============================================================================
// SUGGESTION HANDLERS
// =============================================================================

// GetSuggestions returns channel-move suggestions for a window. Query
// params: start, end (required), lead_time_days, safety_buffer_days,
// min_move_qty, priority (repeatable).
func (h *Handler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	start, end, ok := parseWindow(w, r)
	if !ok {
		return
	}
	if _, err := h.Store.GetSession(r.Context(), sessionID); err != nil {
		writeDomainError(w, "Failed to get session", err)
		return
	}

	cfg := channelmove.SuggestConfig{
		PriorityChannels: r.URL.Query()["priority"],
	}
	if raw := r.URL.Query().Get("lead_time_days"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || !d.IsInteger() || d.IsNegative() {
			writeError(w, http.StatusBadRequest, "lead_time_days must be a non-negative integer", err)
			return
		}
		cfg.LeadTimeDays = int(d.IntPart())
	}
	if raw := r.URL.Query().Get("safety_buffer_days"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			writeError(w, http.StatusBadRequest, "safety_buffer_days must be a non-negative number", err)
			return
		}
		cfg.SafetyBufferDays = d
	}
	if raw := r.URL.Query().Get("min_move_qty"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil || d.IsNegative() {
			writeError(w, http.StatusBadRequest, "min_move_qty must be a non-negative number", err)
			return
		}
		cfg.MinMoveQty = d
	}

	rows, err := h.Store.FetchDayRows(r.Context(), sessionID, start, end)
	if err != nil {
		writeDomainError(w, "Failed to fetch day rows", err)
		return
	}
	writeJSON(w, http.StatusOK, toSuggestionDTOs(channelmove.Suggest(rows, cfg)))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// GetPolicy returns the reallocation policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetPolicy(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

// SavePolicy validates and saves the reallocation policy.
func (h *Handler) SavePolicy(w http.ResponseWriter, r *http.Request) {
	var dto PolicyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p := engine.Policy{
		TakeFromOtherMain: dto.TakeFromOtherMain,
		Rounding:          engine.RoundingMode(dto.Rounding),
		AllowOverfill:     dto.AllowOverfill,
		FairShare:         engine.FairShareMode(dto.FairShare),
		UpdatedBy:         dto.UpdatedBy,
	}
	if p.Rounding == "" {
		p.Rounding = engine.RoundFloor
	}
	if p.FairShare == "" {
		p.FairShare = engine.FairShareOff
	}
	if !p.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid rounding or fair_share value", nil)
		return
	}

	saved, err := h.Store.SavePolicy(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(saved))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, engine.ErrTransferExists):
		writeError(w, http.StatusConflict, message, err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return uuid.Nil, false
	}
	return id, true
}

// parseWindow reads the required start and end query params.
func parseWindow(w http.ResponseWriter, r *http.Request) (start, end time.Time, ok bool) {
	start, err := time.Parse(dateLayout, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing start (use YYYY-MM-DD)", err)
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(dateLayout, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing end (use YYYY-MM-DD)", err)
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
