package handler

import (
	"github.com/gin-gonic/gin"
	ledgerapp "github.com/ledgerbook/backend/internal/application/ledger"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// BillHandler serves bills and their outstanding amounts
type BillHandler struct {
	BaseHandler
	bills *ledgerapp.BillService
}

// NewBillHandler creates a new BillHandler
func NewBillHandler(bills *ledgerapp.BillService) *BillHandler {
	return &BillHandler{bills: bills}
}

// Record handles POST /bills. When advance cannot be applied to the new
// bill, the bill is still returned as created with advance_error set.
func (h *BillHandler) Record(c *gin.Context) {
	var req dto.RecordBillRequest
	if !h.BindJSON(c, &req) {
		return
	}
	cmd, err := recordBillCommand(req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.bills.RecordBill(c.Request.Context(), cmd)
	if result == nil || result.Bill == nil {
		h.HandleError(c, err)
		return
	}

	resp := dto.RecordBillResponse{Bill: dto.NewBillResponse(result.Bill)}
	if result.Adjustment != nil {
		adj := dto.NewPaymentResponse(result.Adjustment)
		resp.Adjustment = &adj
	}
	if err != nil {
		logger.L(c.Request.Context()).Warn("Bill saved without applying advance",
			zap.String("bill_id", result.Bill.ID.String()),
			zap.Error(err),
		)
		resp.AdvanceError = err.Error()
	}
	h.Created(c, resp)
}

func recordBillCommand(req dto.RecordBillRequest) (ledgerapp.RecordBillCommand, error) {
	partyID, err := parsePartyID(req.PartyID)
	if err != nil {
		return ledgerapp.RecordBillCommand{}, err
	}
	billType, err := ledger.ParseBillType(req.BillType)
	if err != nil {
		return ledgerapp.RecordBillCommand{}, err
	}
	date, err := dto.ParseDate(req.Date)
	if err != nil {
		return ledgerapp.RecordBillCommand{}, shared.NewValidationError("invalid bill date %q", req.Date)
	}
	cmd := ledgerapp.RecordBillCommand{
		PartyID:  partyID,
		BillType: billType,
		Number:   req.Number,
		Date:     date,
		Amount:   req.Amount,
		Notes:    req.Notes,
	}
	if req.DueDate != "" {
		due, err := dto.ParseDate(req.DueDate)
		if err != nil {
			return ledgerapp.RecordBillCommand{}, shared.NewValidationError("invalid due date %q", req.DueDate)
		}
		cmd.DueDate = &due
	}
	return cmd, nil
}

// Get handles GET /bills/:id
func (h *BillHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	bill, err := h.bills.GetBill(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewBillResponse(bill))
}

// Outstanding handles GET /bills/:id/outstanding
func (h *BillHandler) Outstanding(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	balance, err := h.bills.BillOutstanding(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}
