package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// ProcessPaymentCommand records a bill or khata payment. An empty
// ReceiptNumber is filled with the next number of the bill type's namespace.
type ProcessPaymentCommand struct {
	PartyID       uuid.UUID
	PaymentType   ledger.PaymentType
	BillType      ledger.BillType
	TargetBillID  *uuid.UUID
	Amount        decimal.Decimal
	Date          time.Time
	Mode          ledger.PaymentMethod
	Reference     string
	Notes         string
	ReceiptNumber string
}

func (c ProcessPaymentCommand) request(receiptNumber string) ledger.PaymentRequest {
	return ledger.PaymentRequest{
		PartyID:       c.PartyID,
		PaymentType:   c.PaymentType,
		BillType:      c.BillType,
		TargetBillID:  c.TargetBillID,
		Amount:        c.Amount,
		Date:          c.Date,
		Mode:          c.Mode,
		Reference:     c.Reference,
		Notes:         c.Notes,
		ReceiptNumber: receiptNumber,
	}
}

// ApplyAdvanceCommand applies a party's available advance to its
// outstanding bills of one type. A zero Date means today.
type ApplyAdvanceCommand struct {
	PartyID  uuid.UUID
	BillType ledger.BillType
	Date     time.Time
}

// CreatePartyCommand creates a party
type CreatePartyCommand struct {
	Name           string
	Kind           ledger.PartyKind
	OpeningBalance decimal.Decimal
	Phone          string
}

// RecordBillCommand records a bill
type RecordBillCommand struct {
	PartyID  uuid.UUID
	BillType ledger.BillType
	Number   string
	Date     time.Time
	DueDate  *time.Time
	Amount   decimal.Decimal
	Notes    string
}

// RecordBillResult is the saved bill and, when advance was applied to it,
// the adjustment payment
type RecordBillResult struct {
	Bill       *ledger.Bill
	Adjustment *ledger.Payment
}
