package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// BillType distinguishes invoices, delivery challans and purchase bills
type BillType string

const (
	BillTypeInvoice  BillType = "invoice"
	BillTypeChallan  BillType = "challan"
	BillTypePurchase BillType = "purchase"
)

// IsValid checks if the bill type is valid
func (t BillType) IsValid() bool {
	switch t {
	case BillTypeInvoice, BillTypeChallan, BillTypePurchase:
		return true
	}
	return false
}

// String returns the string representation
func (t BillType) String() string {
	return string(t)
}

// ReceiptCode returns the letter used in receipt numbers (I, C or P)
func (t BillType) ReceiptCode() string {
	switch t {
	case BillTypeInvoice:
		return "I"
	case BillTypeChallan:
		return "C"
	case BillTypePurchase:
		return "P"
	}
	return ""
}

// IsReceivable reports whether bills of this type are owed to us
func (t BillType) IsReceivable() bool {
	return t == BillTypeInvoice || t == BillTypeChallan
}

// AllBillTypes returns all valid bill types
func AllBillTypes() []BillType {
	return []BillType{BillTypeInvoice, BillTypeChallan, BillTypePurchase}
}

// ParseBillType parses a bill type, case-insensitively
func ParseBillType(s string) (BillType, error) {
	t := BillType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", shared.NewValidationError("unknown bill type %q", s)
	}
	return t, nil
}

func billTypeFromReceiptCode(code string) (BillType, bool) {
	for _, t := range AllBillTypes() {
		if t.ReceiptCode() == code {
			return t, true
		}
	}
	return "", false
}

// Bill is an invoice, challan or purchase bill. Paid and outstanding amounts
// are never stored on the bill; see ComputeOutstanding.
type Bill struct {
	shared.BaseEntity
	PartyID     uuid.UUID       `json:"party_id"`
	BillType    BillType        `json:"bill_type"`
	Number      string          `json:"number"`
	Date        time.Time       `json:"date"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Notes       string          `json:"notes,omitempty"`
}

// NewBill creates a new bill
func NewBill(partyID uuid.UUID, billType BillType, number string, date time.Time, totalAmount decimal.Decimal) (*Bill, error) {
	number = strings.TrimSpace(number)
	if partyID == uuid.Nil {
		return nil, shared.NewValidationError("party ID is required")
	}
	if !billType.IsValid() {
		return nil, shared.NewValidationError("unknown bill type %q", billType)
	}
	if number == "" {
		return nil, shared.NewValidationError("bill number is required")
	}
	if len(number) > 50 {
		return nil, shared.NewValidationError("bill number cannot exceed 50 characters")
	}
	if date.IsZero() {
		return nil, shared.NewValidationError("bill date is required")
	}
	if totalAmount.IsNegative() {
		return nil, shared.NewValidationError("bill amount cannot be negative")
	}
	if _, err := valueobject.NewMoney(totalAmount); err != nil {
		return nil, shared.NewValidationError("bill %v", err)
	}

	return &Bill{
		BaseEntity:  shared.NewBaseEntity(),
		PartyID:     partyID,
		BillType:    billType,
		Number:      number,
		Date:        date,
		TotalAmount: totalAmount,
	}, nil
}

// SetDueDate sets the optional due date. It may not precede the bill date.
func (b *Bill) SetDueDate(due time.Time) error {
	if due.Before(b.Date) {
		return shared.NewValidationError("due date %s is before bill date %s", due.Format(time.DateOnly), b.Date.Format(time.DateOnly))
	}
	b.DueDate = &due
	b.Touch(time.Now())
	return nil
}

// before reports FIFO order: bill date, then number
func (b *Bill) before(other *Bill) bool {
	if !b.Date.Equal(other.Date) {
		return b.Date.Before(other.Date)
	}
	return b.Number < other.Number
}
