package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// AmountTolerance absorbs rounding noise in equality checks between sums
var AmountTolerance = decimal.New(1, -6)

// PaymentType says how a payment chooses the bills it pays
type PaymentType string

const (
	PaymentTypeBill       PaymentType = "bill"       // Against one target bill, excess spills FIFO
	PaymentTypeKhata      PaymentType = "khata"      // Party-wise, FIFO across all outstanding bills
	PaymentTypeAdjustment PaymentType = "adjustment" // Zero-amount voucher applying existing advance
)

// IsValid checks if the payment type is valid
func (t PaymentType) IsValid() bool {
	switch t {
	case PaymentTypeBill, PaymentTypeKhata, PaymentTypeAdjustment:
		return true
	}
	return false
}

// String returns the string representation
func (t PaymentType) String() string {
	return string(t)
}

// PaymentMethod represents how the money moved
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "cash"
	PaymentMethodBank   PaymentMethod = "bank"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCheque PaymentMethod = "cheque"
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodOther  PaymentMethod = "other"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBank, PaymentMethodUPI,
		PaymentMethodCheque, PaymentMethodCard, PaymentMethodOther:
		return true
	}
	return false
}

// Allocation is the part of a payment applied to one bill
type Allocation struct {
	BillType                    BillType        `json:"bill_type"`
	BillID                      uuid.UUID       `json:"bill_id"`
	BillNumber                  string          `json:"bill_number"`
	AllocatedAmount             decimal.Decimal `json:"allocated_amount"`
	BillOutstandingAtAllocation decimal.Decimal `json:"bill_outstanding_at_allocation"`
	IsFullPayment               bool            `json:"is_full_payment"`
	FromAdvance                 bool            `json:"from_advance"` // Funded by advance drawn from earlier payments
}

// AdvanceUse records advance drawn from an earlier payment
type AdvanceUse struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	AmountUsed decimal.Decimal `json:"amount_used"`
}

// AdvancePatch carries the mutable advance fields of a payment.
// Version is the payment version after the change.
type AdvancePatch struct {
	AdvanceConsumed  decimal.Decimal
	AdvanceFullyUsed bool
	AdvanceRefunded  bool
	RefundedAt       *time.Time
	Version          int
}

// Payment is one payment event together with its full allocation.
//
// AdvanceUsed is what this payment drew from other payments' advance and
// always equals the sum of AdvanceAllocations. AdvanceConsumed is what later
// payments drew from this payment's RemainingAmount.
type Payment struct {
	shared.BaseAggregateRoot
	PartyID            uuid.UUID       `json:"party_id"`
	PaymentType        PaymentType     `json:"payment_type"`
	BillType           BillType        `json:"bill_type"`
	TargetBillID       *uuid.UUID      `json:"target_bill_id,omitempty"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Date               time.Time       `json:"date"`
	Mode               PaymentMethod   `json:"mode"`
	Reference          string          `json:"reference,omitempty"`
	Notes              string          `json:"notes,omitempty"`
	ReceiptNumber      string          `json:"receipt_number"`
	Allocations        []Allocation    `json:"allocations"`
	AdvanceAllocations []AdvanceUse    `json:"advance_allocations"`
	AdvanceUsed        decimal.Decimal `json:"advance_used"`
	RemainingAmount    decimal.Decimal `json:"remaining_amount"`
	FIFOAllocationUsed decimal.Decimal `json:"fifo_allocation_used"`
	AdvanceConsumed    decimal.Decimal `json:"advance_consumed"`
	AdvanceFullyUsed   bool            `json:"advance_fully_used"`
	AdvanceRefunded    bool            `json:"advance_refunded"`
	RefundedAt         *time.Time      `json:"refunded_at,omitempty"`
}

// PaymentHeader holds the caller-supplied attributes of a payment
type PaymentHeader struct {
	PartyID       uuid.UUID
	PaymentType   PaymentType
	BillType      BillType
	TargetBillID  *uuid.UUID
	TotalAmount   decimal.Decimal
	Date          time.Time
	Mode          PaymentMethod
	Reference     string
	Notes         string
	ReceiptNumber string
}

// NewPayment creates a payment with no allocations yet; the whole amount
// starts out as remaining.
func NewPayment(h PaymentHeader) (*Payment, error) {
	h.ReceiptNumber = strings.TrimSpace(h.ReceiptNumber)
	if h.PartyID == uuid.Nil {
		return nil, shared.NewValidationError("party ID is required")
	}
	if !h.PaymentType.IsValid() {
		return nil, shared.NewValidationError("unknown payment type %q", h.PaymentType)
	}
	if !h.BillType.IsValid() {
		return nil, shared.NewValidationError("unknown bill type %q", h.BillType)
	}
	if h.PaymentType == PaymentTypeAdjustment {
		if !h.TotalAmount.IsZero() {
			return nil, shared.NewValidationError("adjustment payments carry no new amount")
		}
	} else if !h.TotalAmount.IsPositive() {
		return nil, shared.NewValidationError("payment amount must be positive")
	}
	if _, err := valueobject.NewMoney(h.TotalAmount); err != nil {
		return nil, shared.NewValidationError("payment %v", err)
	}
	if h.PaymentType == PaymentTypeBill && (h.TargetBillID == nil || *h.TargetBillID == uuid.Nil) {
		return nil, shared.NewValidationError("target bill is required for bill payments")
	}
	if h.PaymentType != PaymentTypeBill && h.TargetBillID != nil {
		return nil, shared.NewValidationError("target bill is only allowed for bill payments")
	}
	if h.Date.IsZero() {
		return nil, shared.NewValidationError("payment date is required")
	}
	if h.ReceiptNumber == "" {
		return nil, shared.NewValidationError("receipt number is required")
	}
	if h.Mode == "" {
		h.Mode = PaymentMethodCash
	}
	if !h.Mode.IsValid() {
		return nil, shared.NewValidationError("unknown payment mode %q", h.Mode)
	}

	return &Payment{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		PartyID:            h.PartyID,
		PaymentType:        h.PaymentType,
		BillType:           h.BillType,
		TargetBillID:       h.TargetBillID,
		TotalAmount:        h.TotalAmount,
		Date:               h.Date,
		Mode:               h.Mode,
		Reference:          h.Reference,
		Notes:              h.Notes,
		ReceiptNumber:      h.ReceiptNumber,
		Allocations:        make([]Allocation, 0),
		AdvanceAllocations: make([]AdvanceUse, 0),
		AdvanceUsed:        decimal.Zero,
		RemainingAmount:    h.TotalAmount,
		FIFOAllocationUsed: decimal.Zero,
		AdvanceConsumed:    decimal.Zero,
	}, nil
}

// OwnAllocated sums allocations funded by this payment's own amount
func (p *Payment) OwnAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		if !a.FromAdvance {
			total = total.Add(a.AllocatedAmount)
		}
	}
	return total
}

// AdvanceAllocated sums allocations funded by drawn advance
func (p *Payment) AdvanceAllocated() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		if a.FromAdvance {
			total = total.Add(a.AllocatedAmount)
		}
	}
	return total
}

// AllocatedTo sums every allocation of this payment to the given bill
func (p *Payment) AllocatedTo(billType BillType, billID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		if a.BillID == billID && a.BillType == billType {
			total = total.Add(a.AllocatedAmount)
		}
	}
	return total
}

// AvailableAdvance returns the unconsumed remainder this payment can still
// lend to later payments. Refunded and fully used payments offer nothing.
func (p *Payment) AvailableAdvance() decimal.Decimal {
	if !p.RemainingAmount.IsPositive() || p.AdvanceRefunded || p.AdvanceFullyUsed {
		return decimal.Zero
	}
	avail := p.RemainingAmount.Sub(p.AdvanceConsumed)
	if avail.IsNegative() {
		return decimal.Zero
	}
	return avail
}

// IsAdvanceSource reports whether the payment can fund other payments
func (p *Payment) IsAdvanceSource() bool {
	return p.AvailableAdvance().IsPositive()
}

// Validate checks the allocation invariants of a finished payment
func (p *Payment) Validate() error {
	if p.RemainingAmount.IsNegative() {
		return shared.NewConsistencyError("payment %s has negative remaining amount %s", p.ReceiptNumber, p.RemainingAmount)
	}
	for _, a := range p.Allocations {
		if !a.AllocatedAmount.IsPositive() {
			return shared.NewConsistencyError("payment %s has a non-positive allocation to bill %s", p.ReceiptNumber, a.BillNumber)
		}
	}

	own := p.OwnAllocated().Add(p.RemainingAmount)
	if own.Sub(p.TotalAmount).Abs().GreaterThan(AmountTolerance) {
		return shared.NewConsistencyError("payment %s: allocations %s plus remaining %s do not equal total %s",
			p.ReceiptNumber, p.OwnAllocated(), p.RemainingAmount, p.TotalAmount)
	}

	drawn := decimal.Zero
	for _, u := range p.AdvanceAllocations {
		if !u.AmountUsed.IsPositive() {
			return shared.NewConsistencyError("payment %s draws a non-positive advance from %s", p.ReceiptNumber, u.PaymentID)
		}
		if u.PaymentID == p.ID {
			return shared.NewConsistencyError("payment %s draws advance from itself", p.ReceiptNumber)
		}
		drawn = drawn.Add(u.AmountUsed)
	}
	if drawn.Sub(p.AdvanceUsed).Abs().GreaterThan(AmountTolerance) {
		return shared.NewConsistencyError("payment %s: advance used %s does not match drawn advance %s", p.ReceiptNumber, p.AdvanceUsed, drawn)
	}
	if p.AdvanceAllocated().Sub(p.AdvanceUsed).Abs().GreaterThan(AmountTolerance) {
		return shared.NewConsistencyError("payment %s: advance-funded allocations %s do not match advance used %s",
			p.ReceiptNumber, p.AdvanceAllocated(), p.AdvanceUsed)
	}
	return nil
}

// ConsumeAdvance records that a later payment drew amount from this
// payment's remainder
func (p *Payment) ConsumeAdvance(consumerID uuid.UUID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewInvalidInputError("advance amount must be positive")
	}
	avail := p.AvailableAdvance()
	if amount.Sub(avail).GreaterThan(AmountTolerance) {
		return shared.NewConsistencyError("payment %s has only %s advance available, %s requested", p.ReceiptNumber, avail, amount)
	}

	p.AdvanceConsumed = p.AdvanceConsumed.Add(amount)
	p.refreshFullyUsed()
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewAdvanceConsumedEvent(p, consumerID, amount))
	return nil
}

// ReleaseAdvance credits back advance previously consumed from this payment
func (p *Payment) ReleaseAdvance(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return shared.NewInvalidInputError("advance amount must be positive")
	}
	if amount.Sub(p.AdvanceConsumed).GreaterThan(AmountTolerance) {
		return shared.NewConsistencyError("payment %s cannot release %s, only %s was consumed", p.ReceiptNumber, amount, p.AdvanceConsumed)
	}

	p.AdvanceConsumed = p.AdvanceConsumed.Sub(amount)
	if p.AdvanceConsumed.IsNegative() {
		p.AdvanceConsumed = decimal.Zero
	}
	p.refreshFullyUsed()
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// MarkRefunded refunds the unconsumed remainder. Refund is terminal.
func (p *Payment) MarkRefunded(at time.Time) error {
	if p.AdvanceRefunded {
		return shared.NewDomainError(shared.CodeInvalidState, "advance of payment "+p.ReceiptNumber+" is already refunded")
	}
	refundable := p.AvailableAdvance()
	if !refundable.IsPositive() {
		return shared.NewValidationError("payment %s has no unconsumed advance to refund", p.ReceiptNumber)
	}

	p.AdvanceRefunded = true
	p.RefundedAt = &at
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewAdvanceRefundedEvent(p, refundable))
	return nil
}

// CanDelete reports whether deleting the payment keeps the ledger consistent.
// A payment whose advance has been drawn by later payments cannot go first.
func (p *Payment) CanDelete() error {
	if p.AdvanceConsumed.IsPositive() {
		return shared.NewDomainError(shared.CodeInvalidState,
			"payment "+p.ReceiptNumber+" funded later payments with "+p.AdvanceConsumed.StringFixed(2)+" of advance; delete those first")
	}
	return nil
}

// MarkDeleted raises the deletion event
func (p *Payment) MarkDeleted() {
	p.AddDomainEvent(NewPaymentDeletedEvent(p))
}

// AdvancePatch returns the current advance fields for persistence
func (p *Payment) AdvancePatch() AdvancePatch {
	return AdvancePatch{
		AdvanceConsumed:  p.AdvanceConsumed,
		AdvanceFullyUsed: p.AdvanceFullyUsed,
		AdvanceRefunded:  p.AdvanceRefunded,
		RefundedAt:       p.RefundedAt,
		Version:          p.Version,
	}
}

func (p *Payment) refreshFullyUsed() {
	p.AdvanceFullyUsed = p.RemainingAmount.IsPositive() &&
		p.AdvanceConsumed.GreaterThanOrEqual(p.RemainingAmount.Sub(AmountTolerance))
}
