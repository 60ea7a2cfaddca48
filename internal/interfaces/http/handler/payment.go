package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ledgerapp "github.com/ledgerbook/backend/internal/application/ledger"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/interfaces/http/dto"
)

// PaymentHandler serves payments, advance application and refunds
type PaymentHandler struct {
	BaseHandler
	payments *ledgerapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *ledgerapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Process handles POST /payments
func (h *PaymentHandler) Process(c *gin.Context) {
	cmd, ok := h.bindPayment(c)
	if !ok {
		return
	}
	payment, err := h.payments.ProcessPayment(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.NewPaymentResponse(payment))
}

// Preview handles POST /payments/preview. Nothing is saved.
func (h *PaymentHandler) Preview(c *gin.Context) {
	cmd, ok := h.bindPayment(c)
	if !ok {
		return
	}
	payment, err := h.payments.PreviewPayment(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPaymentResponse(payment))
}

func (h *PaymentHandler) bindPayment(c *gin.Context) (ledgerapp.ProcessPaymentCommand, bool) {
	var req dto.ProcessPaymentRequest
	if !h.BindJSON(c, &req) {
		return ledgerapp.ProcessPaymentCommand{}, false
	}
	cmd, err := processPaymentCommand(req)
	if err != nil {
		h.HandleError(c, err)
		return ledgerapp.ProcessPaymentCommand{}, false
	}
	return cmd, true
}

func processPaymentCommand(req dto.ProcessPaymentRequest) (ledgerapp.ProcessPaymentCommand, error) {
	partyID, err := parsePartyID(req.PartyID)
	if err != nil {
		return ledgerapp.ProcessPaymentCommand{}, err
	}
	billType, err := ledger.ParseBillType(req.BillType)
	if err != nil {
		return ledgerapp.ProcessPaymentCommand{}, err
	}
	date, err := dto.ParseDate(req.Date)
	if err != nil {
		return ledgerapp.ProcessPaymentCommand{}, shared.NewValidationError("invalid payment date %q", req.Date)
	}
	cmd := ledgerapp.ProcessPaymentCommand{
		PartyID:       partyID,
		PaymentType:   ledger.PaymentType(req.PaymentType),
		BillType:      billType,
		Amount:        req.Amount,
		Date:          date,
		Mode:          ledger.PaymentMethod(req.Mode),
		Reference:     req.Reference,
		Notes:         req.Notes,
		ReceiptNumber: req.ReceiptNumber,
	}
	if req.TargetBillID != "" {
		target, err := uuid.Parse(req.TargetBillID)
		if err != nil {
			return ledgerapp.ProcessPaymentCommand{}, shared.NewValidationError("invalid target bill ID %q", req.TargetBillID)
		}
		cmd.TargetBillID = &target
	}
	return cmd, nil
}

// Get handles GET /payments/:id
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	payment, err := h.payments.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPaymentResponse(payment))
}

// Delete handles DELETE /payments/:id
func (h *PaymentHandler) Delete(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	if err := h.payments.DeletePayment(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// Refund handles POST /payments/:id/refund. The body is optional.
func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := h.ParseID(c)
	if !ok {
		return
	}
	var req dto.RefundAdvanceRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}
	at, err := dto.ParseDate(req.Date)
	if err != nil {
		h.HandleError(c, shared.NewValidationError("invalid refund date %q", req.Date))
		return
	}

	payment, err := h.payments.RefundAdvance(c.Request.Context(), id, at)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.NewPaymentResponse(payment))
}

// ApplyAdvance handles POST /advances/apply. With no advance or nothing
// outstanding the response data is null.
func (h *PaymentHandler) ApplyAdvance(c *gin.Context) {
	var req dto.ApplyAdvanceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	partyID, err := parsePartyID(req.PartyID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	billType, err := ledger.ParseBillType(req.BillType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	date, err := dto.ParseDate(req.Date)
	if err != nil {
		h.HandleError(c, shared.NewValidationError("invalid date %q", req.Date))
		return
	}

	adjustment, err := h.payments.ApplyAdvance(c.Request.Context(), ledgerapp.ApplyAdvanceCommand{
		PartyID:  partyID,
		BillType: billType,
		Date:     date,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if adjustment == nil {
		h.Success(c, nil)
		return
	}
	h.Created(c, dto.NewPaymentResponse(adjustment))
}

// NextReceiptNumber handles GET /receipt-numbers/next?bill_type=&date=
func (h *PaymentHandler) NextReceiptNumber(c *gin.Context) {
	var q dto.ReceiptNumberQuery
	if !h.BindQuery(c, &q) {
		return
	}
	billType, err := ledger.ParseBillType(q.BillType)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	date, err := dto.ParseDate(q.Date)
	if err != nil {
		h.HandleError(c, shared.NewValidationError("invalid date %q", q.Date))
		return
	}

	receipt, err := h.payments.NextReceiptNumber(c.Request.Context(), billType, date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ReceiptNumberResponse{ReceiptNumber: receipt})
}
