package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	ledgerapp "github.com/ledgerbook/backend/internal/application/ledger"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/interfaces/http/dto"
)

// ReportHandler serves the reconciliation reports
type ReportHandler struct {
	BaseHandler
	reports *ledgerapp.ReportService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reports *ledgerapp.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// PartySummary handles GET /reports/party-summary?bill_type=&as_of=
func (h *ReportHandler) PartySummary(c *gin.Context) {
	billType, asOf, ok := h.bindReport(c)
	if !ok {
		return
	}
	rows, err := h.reports.SummarizeByParty(c.Request.Context(), billType, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

// Aging handles GET /reports/aging?bill_type=&as_of=
func (h *ReportHandler) Aging(c *gin.Context) {
	billType, asOf, ok := h.bindReport(c)
	if !ok {
		return
	}
	rows, err := h.reports.Aging(c.Request.Context(), billType, asOf)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rows)
}

func (h *ReportHandler) bindReport(c *gin.Context) (ledger.BillType, time.Time, bool) {
	var q dto.ReportQuery
	if !h.BindQuery(c, &q) {
		return "", time.Time{}, false
	}
	billType, err := ledger.ParseBillType(q.BillType)
	if err != nil {
		h.HandleError(c, err)
		return "", time.Time{}, false
	}
	asOf, err := dto.ParseDate(q.AsOf)
	if err != nil {
		h.HandleError(c, shared.NewValidationError("invalid as_of date %q", q.AsOf))
		return "", time.Time{}, false
	}
	return billType, asOf, true
}
