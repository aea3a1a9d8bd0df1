/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Decimal quantities cross the wire as strings. Clients echo back what
  they were given; the server parses with shopspring/decimal and never
  touches float64 for stock figures.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/stockflow/psi-planner/channelmove"
	"github.com/stockflow/psi-planner/engine"
	"github.com/stockflow/psi-planner/plan"
	"github.com/stockflow/psi-planner/store/sqlite"
)

const dateLayout = "2006-01-02"

// =============================================================================
// SESSIONS
// =============================================================================

// SessionDTO represents a planning session in API responses.
type SessionDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateSessionRequest is the request to create a session.
type CreateSessionRequest struct {
	Name string `json:"name"`
}

func toSessionDTO(s sqlite.Session) SessionDTO {
	return SessionDTO{
		ID:        s.ID.String(),
		Name:      s.Name,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// WAREHOUSES
// =============================================================================

// WarehouseDTO represents a warehouse master record.
type WarehouseDTO struct {
	Name        string `json:"name"`
	MainChannel string `json:"main_channel"`
}

// =============================================================================
// PSI MATRIX
// =============================================================================

// PSIRowRequest is one daily PSI record in a bulk upload.
type PSIRowRequest struct {
	Date          string `json:"date"`
	SKUCode       string `json:"sku_code"`
	SKUName       string `json:"sku_name,omitempty"`
	WarehouseName string `json:"warehouse_name"`
	Channel       string `json:"channel"`
	Category1     string `json:"category_1,omitempty"`
	Category2     string `json:"category_2,omitempty"`
	Category3     string `json:"category_3,omitempty"`
	StockAtAnchor string `json:"stock_at_anchor"`
	InboundQty    string `json:"inbound_qty"`
	OutboundQty   string `json:"outbound_qty"`
	StockClosing  string `json:"stock_closing"`
	Stdstock      string `json:"stdstock"`
}

// MatrixRowDTO is one aggregated matrix cell in API responses.
type MatrixRowDTO struct {
	SKUCode       string `json:"sku_code"`
	SKUName       string `json:"sku_name,omitempty"`
	WarehouseName string `json:"warehouse_name"`
	Channel       string `json:"channel"`
	Category1     string `json:"category_1,omitempty"`
	Category2     string `json:"category_2,omitempty"`
	Category3     string `json:"category_3,omitempty"`
	StockAtAnchor string `json:"stock_at_anchor"`
	InboundQty    string `json:"inbound_qty"`
	OutboundQty   string `json:"outbound_qty"`
	StockClosing  string `json:"stock_closing"`
	Stdstock      string `json:"stdstock"`
	Gap           string `json:"gap"`
	Move          string `json:"move"`
	StockFin      string `json:"stock_fin"`
	GapAfter      string `json:"gap_after"`
}

func toMatrixRowDTO(row engine.MatrixRow) MatrixRowDTO {
	return MatrixRowDTO{
		SKUCode:       row.SKUCode,
		SKUName:       row.SKUName,
		WarehouseName: row.WarehouseName,
		Channel:       row.Channel,
		Category1:     row.Category1,
		Category2:     row.Category2,
		Category3:     row.Category3,
		StockAtAnchor: row.StockAtAnchor.String(),
		InboundQty:    row.InboundQty.String(),
		OutboundQty:   row.OutboundQty.String(),
		StockClosing:  row.StockClosing.String(),
		Stdstock:      row.Stdstock.String(),
		Gap:           row.Gap.String(),
		Move:          row.Move.String(),
		StockFin:      row.StockFin.String(),
		GapAfter:      row.GapAfter.String(),
	}
}

func toMatrixRowDTOs(rows []engine.MatrixRow) []MatrixRowDTO {
	dtos := make([]MatrixRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toMatrixRowDTO(row)
	}
	return dtos
}

// =============================================================================
// TRANSFER PLANS
// =============================================================================

// PlanDTO represents a transfer plan header.
type PlanDTO struct {
	PlanID    string `json:"plan_id"`
	SessionID string `json:"session_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// PlanLineDTO represents one plan line. Qty is the raw string the client
// edited; the server validates it on save.
type PlanLineDTO struct {
	LineID        string `json:"line_id,omitempty"`
	SKUCode       string `json:"sku_code"`
	FromWarehouse string `json:"from_warehouse"`
	FromChannel   string `json:"from_channel"`
	ToWarehouse   string `json:"to_warehouse"`
	ToChannel     string `json:"to_channel"`
	Qty           string `json:"qty"`
	IsManual      bool   `json:"is_manual"`
	Reason        string `json:"reason,omitempty"`
}

// PlanResponse bundles a plan with its lines.
type PlanResponse struct {
	Plan  PlanDTO       `json:"plan"`
	Lines []PlanLineDTO `json:"lines"`
}

// RecommendRequest is the request to generate a recommended plan.
type RecommendRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ReplaceLinesRequest replaces all lines of a plan.
type ReplaceLinesRequest struct {
	Lines []PlanLineDTO `json:"lines"`
}

func toPlanDTO(p plan.Plan) PlanDTO {
	return PlanDTO{
		PlanID:    p.PlanID.String(),
		SessionID: p.SessionID.String(),
		StartDate: p.StartDate.Format(dateLayout),
		EndDate:   p.EndDate.Format(dateLayout),
		Status:    p.Status,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func toPlanLineDTO(l plan.Line) PlanLineDTO {
	return PlanLineDTO{
		LineID:        l.LineID.String(),
		SKUCode:       l.SKUCode,
		FromWarehouse: l.FromWarehouse,
		FromChannel:   l.FromChannel,
		ToWarehouse:   l.ToWarehouse,
		ToChannel:     l.ToChannel,
		Qty:           l.Qty,
		IsManual:      l.IsManual,
		Reason:        l.Reason,
	}
}

func toPlanLineDTOs(lines []plan.Line) []PlanLineDTO {
	dtos := make([]PlanLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toPlanLineDTO(l)
	}
	return dtos
}

// =============================================================================
// CHANNEL TRANSFERS
// =============================================================================

// ChannelTransferDTO represents one day-scoped channel transfer. The
// first six fields form the record's key.
type ChannelTransferDTO struct {
	SessionID     string `json:"session_id"`
	SKUCode       string `json:"sku_code"`
	WarehouseName string `json:"warehouse_name"`
	TransferDate  string `json:"transfer_date"`
	FromChannel   string `json:"from_channel"`
	ToChannel     string `json:"to_channel"`
	Qty           string `json:"qty"`
	Note          string `json:"note,omitempty"`
}

func toChannelTransferDTO(t channelmove.Transfer) ChannelTransferDTO {
	return ChannelTransferDTO{
		SessionID:     t.SessionID.String(),
		SKUCode:       t.SKUCode,
		WarehouseName: t.WarehouseName,
		TransferDate:  t.TransferDate.Format(dateLayout),
		FromChannel:   t.FromChannel,
		ToChannel:     t.ToChannel,
		Qty:           t.Qty,
		Note:          t.Note,
	}
}

func toChannelTransferDTOs(ts []channelmove.Transfer) []ChannelTransferDTO {
	dtos := make([]ChannelTransferDTO, len(ts))
	for i, t := range ts {
		dtos[i] = toChannelTransferDTO(t)
	}
	return dtos
}

// SuggestionDTO is one suggested channel move.
type SuggestionDTO struct {
	Date          string `json:"date"`
	SKUCode       string `json:"sku_code"`
	SKUName       string `json:"sku_name,omitempty"`
	WarehouseName string `json:"warehouse_name"`
	FromChannel   string `json:"from_channel"`
	ToChannel     string `json:"to_channel"`
	Qty           string `json:"qty"`
}

func toSuggestionDTOs(suggestions []channelmove.Suggestion) []SuggestionDTO {
	dtos := make([]SuggestionDTO, len(suggestions))
	for i, s := range suggestions {
		dtos[i] = SuggestionDTO{
			Date:          s.Date.Format(dateLayout),
			SKUCode:       s.SKUCode,
			SKUName:       s.SKUName,
			WarehouseName: s.WarehouseName,
			FromChannel:   s.FromChannel,
			ToChannel:     s.ToChannel,
			Qty:           s.Qty.String(),
		}
	}
	return dtos
}

// =============================================================================
// REALLOCATION POLICY
// =============================================================================

// PolicyDTO represents the reallocation policy.
type PolicyDTO struct {
	TakeFromOtherMain bool   `json:"take_from_other_main"`
	Rounding          string `json:"rounding"`
	AllowOverfill     bool   `json:"allow_overfill"`
	FairShare         string `json:"fair_share"`
	UpdatedAt         string `json:"updated_at,omitempty"`
	UpdatedBy         string `json:"updated_by,omitempty"`
}

func toPolicyDTO(p engine.Policy) PolicyDTO {
	dto := PolicyDTO{
		TakeFromOtherMain: p.TakeFromOtherMain,
		Rounding:          string(p.Rounding),
		AllowOverfill:     p.AllowOverfill,
		FairShare:         string(p.FairShare),
		UpdatedBy:         p.UpdatedBy,
	}
	if p.UpdatedAt != nil {
		dto.UpdatedAt = p.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}
