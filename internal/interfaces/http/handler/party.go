package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ledgerapp "github.com/ledgerbook/backend/internal/application/ledger"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/interfaces/http/dto"
)

// PartyHandler serves parties and the per-party ledger views
type PartyHandler struct {
	BaseHandler
	bills    *ledgerapp.BillService
	payments *ledgerapp.PaymentService
	reports  *ledgerapp.ReportService
}

// NewPartyHandler creates a new PartyHandler
func NewPartyHandler(bills *ledgerapp.BillService, payments *ledgerapp.PaymentService, reports *ledgerapp.ReportService) *PartyHandler {
	return &PartyHandler{bills: bills, payments: payments, reports: reports}
}

// Create handles POST /parties
func (h *PartyHandler) Create(c *gin.Context) {
	var req dto.CreatePartyRequest
	if !h.BindJSON(c, &req) {
		return
	}

	party, err := h.bills.CreateParty(c.Request.Context(), ledgerapp.CreatePartyCommand{
		Name:           req.Name,
		Kind:           ledger.PartyKind(req.Kind),
		OpeningBalance: req.OpeningBalance,
		Phone:          req.Phone,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewPartyResponse(party))
}

// List handles GET /parties
func (h *PartyHandler) List(c *gin.Context) {
	parties, err := h.bills.ListParties(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.PartyResponse, len(parties))
	for i, p := range parties {
		out[i] = dto.NewPartyResponse(p)
	}
	h.Success(c, out)
}

// Get handles GET /parties/:id
func (h *PartyHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	party, err := h.bills.GetParty(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPartyResponse(party))
}

// Advance handles GET /parties/:id/advance?bill_type=
func (h *PartyHandler) Advance(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	var q dto.BillTypeQuery
	if !h.BindQuery(c, &q) {
		return
	}
	billType, _ := ledger.ParseBillType(q.BillType)

	if _, err := h.bills.GetParty(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	available, err := h.payments.GetAvailableAdvance(c.Request.Context(), id, billType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.AdvanceResponse{PartyID: id, BillType: string(billType), Available: available})
}

// Position handles GET /parties/:id/position
func (h *PartyHandler) Position(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	pos, err := h.reports.PartyPosition(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, pos)
}

// Outstanding handles GET /parties/:id/outstanding?bill_type=. Without a
// bill type every type is listed.
func (h *PartyHandler) Outstanding(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	var billType ledger.BillType
	if raw := c.Query("bill_type"); raw != "" {
		bt, err := ledger.ParseBillType(raw)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		billType = bt
	}
	balances, err := h.bills.ListOutstanding(c.Request.Context(), id, billType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balances)
}

// Payments handles GET /parties/:id/payments?page=&page_size=, newest first
func (h *PartyHandler) Payments(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	req := dto.DefaultListRequest()
	if !h.BindQuery(c, &req) {
		return
	}

	page, err := h.payments.ListPayments(c.Request.Context(), id, shared.Filter{
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewPaymentResponses(page.Items), page.Total, page.Page, page.PageSize)
}

func parsePartyID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, shared.NewValidationError("invalid party ID %q", s)
	}
	return id, nil
}
