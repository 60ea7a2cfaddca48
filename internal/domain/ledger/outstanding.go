package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillStatus is derived from a bill's balance
type BillStatus string

const (
	BillStatusUnpaid  BillStatus = "unpaid"
	BillStatusPartial BillStatus = "partial"
	BillStatusPaid    BillStatus = "paid"
)

// BillBalance is a bill with its paid and outstanding amounts derived from payments
type BillBalance struct {
	BillID      uuid.UUID       `json:"bill_id"`
	PartyID     uuid.UUID       `json:"party_id"`
	BillType    BillType        `json:"bill_type"`
	Number      string          `json:"number"`
	Date        time.Time       `json:"date"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Status      BillStatus      `json:"status"`
}

// ComputeOutstanding sums every allocation against the bill. Advance-funded
// amounts are recorded as allocations when drawn, so they are counted here
// exactly once.
func ComputeOutstanding(bill *Bill, payments []*Payment) BillBalance {
	paid := decimal.Zero
	for _, p := range payments {
		paid = paid.Add(p.AllocatedTo(bill.BillType, bill.ID))
	}
	return newBillBalance(bill, paid)
}

// ComputeBalances computes balances for many bills in one pass over payments.
// Output order follows bills.
func ComputeBalances(bills []*Bill, payments []*Payment) []BillBalance {
	paid := paidByBill(payments)
	out := make([]BillBalance, 0, len(bills))
	for _, b := range bills {
		out = append(out, newBillBalance(b, paid[billKey{b.BillType, b.ID}]))
	}
	return out
}

// OutstandingBills pairs each bill with its outstanding amount, ready for
// FIFO allocation
func OutstandingBills(bills []*Bill, payments []*Payment) []OutstandingBill {
	paid := paidByBill(payments)
	out := make([]OutstandingBill, 0, len(bills))
	for _, b := range bills {
		bal := newBillBalance(b, paid[billKey{b.BillType, b.ID}])
		out = append(out, OutstandingBill{Bill: b, Outstanding: bal.Outstanding})
	}
	return out
}

type billKey struct {
	billType BillType
	id       uuid.UUID
}

func paidByBill(payments []*Payment) map[billKey]decimal.Decimal {
	paid := make(map[billKey]decimal.Decimal)
	for _, p := range payments {
		for _, a := range p.Allocations {
			k := billKey{a.BillType, a.BillID}
			paid[k] = paid[k].Add(a.AllocatedAmount)
		}
	}
	return paid
}

func newBillBalance(b *Bill, paid decimal.Decimal) BillBalance {
	outstanding := b.TotalAmount.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}

	status := BillStatusPartial
	switch {
	case outstanding.IsZero():
		status = BillStatusPaid
	case !paid.IsPositive():
		status = BillStatusUnpaid
	}

	return BillBalance{
		BillID:      b.ID,
		PartyID:     b.PartyID,
		BillType:    b.BillType,
		Number:      b.Number,
		Date:        b.Date,
		TotalAmount: b.TotalAmount,
		TotalPaid:   paid,
		Outstanding: outstanding,
		Status:      status,
	}
}
