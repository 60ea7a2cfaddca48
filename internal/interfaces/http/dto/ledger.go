package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of every calendar date in the API
const DateLayout = time.DateOnly

// CreatePartyRequest is the body of POST /parties
type CreatePartyRequest struct {
	Name           string          `json:"name" binding:"required,max=200" example:"Sharma Traders"`
	Kind           string          `json:"kind" binding:"omitempty,oneof=customer supplier both" example:"customer"`
	OpeningBalance decimal.Decimal `json:"opening_balance" example:"0"`
	Phone          string          `json:"phone" binding:"omitempty,max=20"`
}

// RecordBillRequest is the body of POST /bills
type RecordBillRequest struct {
	PartyID  string          `json:"party_id" binding:"required,uuid"`
	BillType string          `json:"bill_type" binding:"required,billtype" example:"invoice"`
	Number   string          `json:"number" binding:"required,max=50" example:"INV-0042"`
	Date     string          `json:"date" binding:"required,datetime=2006-01-02" example:"2024-04-15"`
	DueDate  string          `json:"due_date" binding:"omitempty,datetime=2006-01-02"`
	Amount   decimal.Decimal `json:"amount" example:"1500.00"`
	Notes    string          `json:"notes" binding:"omitempty,max=500"`
}

// ProcessPaymentRequest is the body of POST /payments and POST /payments/preview.
// An empty receipt_number is filled from the bill type's numbering.
type ProcessPaymentRequest struct {
	PartyID       string          `json:"party_id" binding:"required,uuid"`
	PaymentType   string          `json:"payment_type" binding:"required,oneof=bill khata" example:"khata"`
	BillType      string          `json:"bill_type" binding:"required,billtype" example:"invoice"`
	TargetBillID  string          `json:"target_bill_id" binding:"omitempty,uuid"`
	Amount        decimal.Decimal `json:"amount" example:"1000.00"`
	Date          string          `json:"date" binding:"required,datetime=2006-01-02" example:"2024-04-20"`
	Mode          string          `json:"mode" binding:"omitempty,oneof=cash bank upi cheque card other" example:"upi"`
	Reference     string          `json:"reference" binding:"omitempty,max=100"`
	Notes         string          `json:"notes" binding:"omitempty,max=500"`
	ReceiptNumber string          `json:"receipt_number" binding:"omitempty,max=30" example:"PRI2425/0001"`
}

// ApplyAdvanceRequest is the body of POST /advances/apply
type ApplyAdvanceRequest struct {
	PartyID  string `json:"party_id" binding:"required,uuid"`
	BillType string `json:"bill_type" binding:"required,billtype"`
	Date     string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// RefundAdvanceRequest is the optional body of POST /payments/:id/refund
type RefundAdvanceRequest struct {
	Date string `json:"date" binding:"omitempty,datetime=2006-01-02"`
}

// BillTypeQuery selects one bill type
type BillTypeQuery struct {
	BillType string `form:"bill_type" binding:"required,billtype"`
}

// ReportQuery selects a bill type and an optional as-of date
type ReportQuery struct {
	BillType string `form:"bill_type" binding:"required,billtype"`
	AsOf     string `form:"as_of" binding:"omitempty,datetime=2006-01-02"`
}

// ReceiptNumberQuery asks for the next receipt number of a bill type
type ReceiptNumberQuery struct {
	BillType string `form:"bill_type" binding:"required,billtype"`
	Date     string `form:"date" binding:"omitempty,datetime=2006-01-02"`
}

// ParseDate parses an API date; an empty string yields the zero time
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(DateLayout, s)
}

// PartyResponse is a party as returned by the API
type PartyResponse struct {
	ID             uuid.UUID       `json:"id"`
	DisplayName    string          `json:"display_name"`
	Kind           string          `json:"kind"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Phone          string          `json:"phone,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewPartyResponse maps a party
func NewPartyResponse(p *ledger.Party) PartyResponse {
	return PartyResponse{
		ID:             p.ID,
		DisplayName:    p.DisplayName,
		Kind:           string(p.Kind),
		OpeningBalance: p.OpeningBalance,
		Phone:          p.Phone,
		CreatedAt:      p.CreatedAt,
	}
}

// BillResponse is a bill as returned by the API
type BillResponse struct {
	ID          uuid.UUID       `json:"id"`
	PartyID     uuid.UUID       `json:"party_id"`
	BillType    string          `json:"bill_type"`
	Number      string          `json:"number"`
	Date        string          `json:"date"`
	DueDate     string          `json:"due_date,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewBillResponse maps a bill
func NewBillResponse(b *ledger.Bill) BillResponse {
	resp := BillResponse{
		ID:          b.ID,
		PartyID:     b.PartyID,
		BillType:    string(b.BillType),
		Number:      b.Number,
		Date:        b.Date.Format(DateLayout),
		TotalAmount: b.TotalAmount,
		Notes:       b.Notes,
		CreatedAt:   b.CreatedAt,
	}
	if b.DueDate != nil {
		resp.DueDate = b.DueDate.Format(DateLayout)
	}
	return resp
}

// AllocationResponse is one bill allocation of a payment
type AllocationResponse struct {
	BillType                    string          `json:"bill_type"`
	BillID                      uuid.UUID       `json:"bill_id"`
	BillNumber                  string          `json:"bill_number"`
	AllocatedAmount             decimal.Decimal `json:"allocated_amount"`
	BillOutstandingAtAllocation decimal.Decimal `json:"bill_outstanding_at_allocation"`
	IsFullPayment               bool            `json:"is_full_payment"`
	FromAdvance                 bool            `json:"from_advance"`
}

// AdvanceUseResponse is advance drawn from an earlier payment
type AdvanceUseResponse struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	AmountUsed decimal.Decimal `json:"amount_used"`
}

// PaymentResponse is a payment with its full allocation
type PaymentResponse struct {
	ID                 uuid.UUID            `json:"id"`
	PartyID            uuid.UUID            `json:"party_id"`
	PaymentType        string               `json:"payment_type"`
	BillType           string               `json:"bill_type"`
	TargetBillID       *uuid.UUID           `json:"target_bill_id,omitempty"`
	TotalAmount        decimal.Decimal      `json:"total_amount"`
	Date               string               `json:"date"`
	Mode               string               `json:"mode"`
	Reference          string               `json:"reference,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	ReceiptNumber      string               `json:"receipt_number"`
	Allocations        []AllocationResponse `json:"allocations"`
	AdvanceAllocations []AdvanceUseResponse `json:"advance_allocations"`
	AdvanceUsed        decimal.Decimal      `json:"advance_used"`
	RemainingAmount    decimal.Decimal      `json:"remaining_amount"`
	FIFOAllocationUsed decimal.Decimal      `json:"fifo_allocation_used"`
	AdvanceConsumed    decimal.Decimal      `json:"advance_consumed"`
	AdvanceAvailable   decimal.Decimal      `json:"advance_available"`
	AdvanceFullyUsed   bool                 `json:"advance_fully_used"`
	AdvanceRefunded    bool                 `json:"advance_refunded"`
	RefundedAt         *time.Time           `json:"refunded_at,omitempty"`
	Version            int                  `json:"version"`
	CreatedAt          time.Time            `json:"created_at"`
}

// NewPaymentResponse maps a payment
func NewPaymentResponse(p *ledger.Payment) PaymentResponse {
	allocs := make([]AllocationResponse, len(p.Allocations))
	for i, a := range p.Allocations {
		allocs[i] = AllocationResponse{
			BillType:                    string(a.BillType),
			BillID:                      a.BillID,
			BillNumber:                  a.BillNumber,
			AllocatedAmount:             a.AllocatedAmount,
			BillOutstandingAtAllocation: a.BillOutstandingAtAllocation,
			IsFullPayment:               a.IsFullPayment,
			FromAdvance:                 a.FromAdvance,
		}
	}
	uses := make([]AdvanceUseResponse, len(p.AdvanceAllocations))
	for i, u := range p.AdvanceAllocations {
		uses[i] = AdvanceUseResponse{PaymentID: u.PaymentID, AmountUsed: u.AmountUsed}
	}
	return PaymentResponse{
		ID:                 p.ID,
		PartyID:            p.PartyID,
		PaymentType:        string(p.PaymentType),
		BillType:           string(p.BillType),
		TargetBillID:       p.TargetBillID,
		TotalAmount:        p.TotalAmount,
		Date:               p.Date.Format(DateLayout),
		Mode:               string(p.Mode),
		Reference:          p.Reference,
		Notes:              p.Notes,
		ReceiptNumber:      p.ReceiptNumber,
		Allocations:        allocs,
		AdvanceAllocations: uses,
		AdvanceUsed:        p.AdvanceUsed,
		RemainingAmount:    p.RemainingAmount,
		FIFOAllocationUsed: p.FIFOAllocationUsed,
		AdvanceConsumed:    p.AdvanceConsumed,
		AdvanceAvailable:   p.AvailableAdvance(),
		AdvanceFullyUsed:   p.AdvanceFullyUsed,
		AdvanceRefunded:    p.AdvanceRefunded,
		RefundedAt:         p.RefundedAt,
		Version:            p.Version,
		CreatedAt:          p.CreatedAt,
	}
}

// NewPaymentResponses maps a page of payments
func NewPaymentResponses(payments []*ledger.Payment) []PaymentResponse {
	out := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		out[i] = NewPaymentResponse(p)
	}
	return out
}

// RecordBillResponse is the saved bill and the adjustment voucher, if
// advance was applied to it on entry.
type RecordBillResponse struct {
	Bill       BillResponse     `json:"bill"`
	Adjustment *PaymentResponse `json:"adjustment,omitempty"`
	// AdvanceError is set when the bill was saved but applying advance failed
	AdvanceError string `json:"advance_error,omitempty"`
}

// AdvanceResponse is a party's available advance for one bill type
type AdvanceResponse struct {
	PartyID   uuid.UUID       `json:"party_id"`
	BillType  string          `json:"bill_type"`
	Available decimal.Decimal `json:"available"`
}

// ReceiptNumberResponse carries a suggested receipt number
type ReceiptNumberResponse struct {
	ReceiptNumber string `json:"receipt_number"`
}

// HealthResponse is the liveness body
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
}
