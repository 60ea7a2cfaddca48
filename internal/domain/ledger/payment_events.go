package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type names
const (
	EventTypePaymentRecorded = "PaymentRecorded"
	EventTypePaymentDeleted  = "PaymentDeleted"
	EventTypeAdvanceConsumed = "AdvanceConsumed"
	EventTypeAdvanceRefunded = "AdvanceRefunded"

	aggregateTypePayment = "Payment"
)

// PaymentRecordedEvent is raised when a payment and its allocations are saved
type PaymentRecordedEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID       `json:"payment_id"`
	PartyID         uuid.UUID       `json:"party_id"`
	ReceiptNumber   string          `json:"receipt_number"`
	PaymentType     PaymentType     `json:"payment_type"`
	BillType        BillType        `json:"bill_type"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AdvanceUsed     decimal.Decimal `json:"advance_used"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	BillsPaid       int             `json:"bills_paid"`
	PaymentDate     time.Time       `json:"payment_date"`
}

// NewPaymentRecordedEvent creates a new PaymentRecordedEvent
func NewPaymentRecordedEvent(p *Payment) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentRecorded, aggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		PartyID:         p.PartyID,
		ReceiptNumber:   p.ReceiptNumber,
		PaymentType:     p.PaymentType,
		BillType:        p.BillType,
		TotalAmount:     p.TotalAmount,
		AdvanceUsed:     p.AdvanceUsed,
		RemainingAmount: p.RemainingAmount,
		BillsPaid:       len(p.Allocations),
		PaymentDate:     p.Date,
	}
}

// PaymentDeletedEvent is raised when a payment is deleted and its effects reversed
type PaymentDeletedEvent struct {
	shared.BaseDomainEvent
	PaymentID       uuid.UUID       `json:"payment_id"`
	PartyID         uuid.UUID       `json:"party_id"`
	ReceiptNumber   string          `json:"receipt_number"`
	BillType        BillType        `json:"bill_type"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AdvanceReleased decimal.Decimal `json:"advance_released"`
}

// NewPaymentDeletedEvent creates a new PaymentDeletedEvent
func NewPaymentDeletedEvent(p *Payment) *PaymentDeletedEvent {
	return &PaymentDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentDeleted, aggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		PartyID:         p.PartyID,
		ReceiptNumber:   p.ReceiptNumber,
		BillType:        p.BillType,
		TotalAmount:     p.TotalAmount,
		AdvanceReleased: p.AdvanceUsed,
	}
}

// AdvanceConsumedEvent is raised on the source payment when a later payment
// draws from its advance
type AdvanceConsumedEvent struct {
	shared.BaseDomainEvent
	SourcePaymentID   uuid.UUID       `json:"source_payment_id"`
	ConsumerPaymentID uuid.UUID       `json:"consumer_payment_id"`
	PartyID           uuid.UUID       `json:"party_id"`
	BillType          BillType        `json:"bill_type"`
	Amount            decimal.Decimal `json:"amount"`
	FullyUsed         bool            `json:"fully_used"`
}

// NewAdvanceConsumedEvent creates a new AdvanceConsumedEvent
func NewAdvanceConsumedEvent(source *Payment, consumerID uuid.UUID, amount decimal.Decimal) *AdvanceConsumedEvent {
	return &AdvanceConsumedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeAdvanceConsumed, aggregateTypePayment, source.ID),
		SourcePaymentID:   source.ID,
		ConsumerPaymentID: consumerID,
		PartyID:           source.PartyID,
		BillType:          source.BillType,
		Amount:            amount,
		FullyUsed:         source.AdvanceFullyUsed,
	}
}

// AdvanceRefundedEvent is raised when a payment's unconsumed advance is refunded
type AdvanceRefundedEvent struct {
	shared.BaseDomainEvent
	PaymentID     uuid.UUID       `json:"payment_id"`
	PartyID       uuid.UUID       `json:"party_id"`
	ReceiptNumber string          `json:"receipt_number"`
	BillType      BillType        `json:"bill_type"`
	Amount        decimal.Decimal `json:"amount"`
}

// NewAdvanceRefundedEvent creates a new AdvanceRefundedEvent
func NewAdvanceRefundedEvent(p *Payment, amount decimal.Decimal) *AdvanceRefundedEvent {
	return &AdvanceRefundedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeAdvanceRefunded, aggregateTypePayment, p.ID),
		PaymentID:       p.ID,
		PartyID:         p.PartyID,
		ReceiptNumber:   p.ReceiptNumber,
		BillType:        p.BillType,
		Amount:          amount,
	}
}
