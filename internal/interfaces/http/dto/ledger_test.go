package dto

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-04-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseDate("15/04/2024")
	assert.Error(t, err)
}

func TestNewPaymentResponse(t *testing.T) {
	bill, err := ledger.NewBill(uuid.New(), ledger.BillTypeInvoice, "INV-1",
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(500))
	require.NoError(t, err)

	p, err := ledger.NewPayment(ledger.PaymentHeader{
		PartyID:       bill.PartyID,
		PaymentType:   ledger.PaymentTypeKhata,
		BillType:      ledger.BillTypeInvoice,
		TotalAmount:   decimal.NewFromInt(800),
		Date:          time.Date(2024, 4, 20, 0, 0, 0, 0, time.UTC),
		Mode:          ledger.PaymentMethodUPI,
		ReceiptNumber: "PRI2425/0001",
	})
	require.NoError(t, err)
	p.Allocations = []ledger.Allocation{{
		BillType:                    ledger.BillTypeInvoice,
		BillID:                      bill.ID,
		BillNumber:                  bill.Number,
		AllocatedAmount:             decimal.NewFromInt(500),
		BillOutstandingAtAllocation: decimal.NewFromInt(500),
		IsFullPayment:               true,
	}}
	p.RemainingAmount = decimal.NewFromInt(300)
	p.AdvanceConsumed = decimal.NewFromInt(100)

	resp := NewPaymentResponse(p)

	assert.Equal(t, "2024-04-20", resp.Date)
	assert.Equal(t, "khata", resp.PaymentType)
	require.Len(t, resp.Allocations, 1)
	assert.True(t, resp.Allocations[0].IsFullPayment)
	assert.Empty(t, resp.AdvanceAllocations)
	assert.True(t, resp.AdvanceAvailable.Equal(decimal.NewFromInt(200)))

	body, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"advance_allocations":[]`)
	assert.Contains(t, string(body), `"remaining_amount":"300"`)
	assert.NotContains(t, string(body), "target_bill_id")
}

func TestNewBillResponse(t *testing.T) {
	bill, err := ledger.NewBill(uuid.New(), ledger.BillTypeChallan, "CH-7",
		time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), decimal.NewFromInt(120))
	require.NoError(t, err)

	resp := NewBillResponse(bill)
	assert.Equal(t, "2024-05-02", resp.Date)
	assert.Empty(t, resp.DueDate)

	require.NoError(t, bill.SetDueDate(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-06-01", NewBillResponse(bill).DueDate)
}
