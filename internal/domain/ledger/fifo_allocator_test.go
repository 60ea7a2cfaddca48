package ledger

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOAllocator_Metadata(t *testing.T) {
	a := NewFIFOAllocator()
	assert.Equal(t, "fifo_bill_allocation", a.Name())
	assert.Equal(t, strategy.StrategyTypeAllocation, a.Type())
	assert.NotEmpty(t, a.Description())
}

func TestAllocateFIFO_OldestFirst(t *testing.T) {
	party := uuid.New()
	b1 := newTestBill(t, party, BillTypeInvoice, "INV-1", day(2025, 1, 1), "100")
	b2 := newTestBill(t, party, BillTypeInvoice, "INV-2", day(2025, 1, 10), "50")

	// Given out of order on purpose
	res, err := AllocateFIFO(party, dec("120"), BillTypeInvoice, []OutstandingBill{
		{Bill: b2, Outstanding: dec("50")},
		{Bill: b1, Outstanding: dec("100")},
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2)

	assert.Equal(t, b1.ID, res.Allocations[0].BillID)
	assert.True(t, res.Allocations[0].AllocatedAmount.Equal(dec("100")))
	assert.True(t, res.Allocations[0].IsFullPayment)

	assert.Equal(t, b2.ID, res.Allocations[1].BillID)
	assert.True(t, res.Allocations[1].AllocatedAmount.Equal(dec("20")))
	assert.False(t, res.Allocations[1].IsFullPayment)
	assert.True(t, res.Allocations[1].BillOutstandingAtAllocation.Equal(dec("50")))

	assert.True(t, res.RemainingAmount.IsZero())
	assert.True(t, res.TotalAllocated.Equal(dec("120")))
	assert.True(t, res.FullyAllocated())
}

func TestAllocateFIFO_TieBreakByNumber(t *testing.T) {
	party := uuid.New()
	same := day(2025, 3, 1)
	bB := newTestBill(t, party, BillTypePurchase, "PB-B", same, "10")
	bA := newTestBill(t, party, BillTypePurchase, "PB-A", same, "10")

	res, err := AllocateFIFO(party, dec("15"), BillTypePurchase, []OutstandingBill{
		{Bill: bB, Outstanding: dec("10")},
		{Bill: bA, Outstanding: dec("10")},
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "PB-A", res.Allocations[0].BillNumber)
	assert.Equal(t, "PB-B", res.Allocations[1].BillNumber)
	assert.True(t, res.Allocations[1].AllocatedAmount.Equal(dec("5")))
}

func TestAllocateFIFO_Filters(t *testing.T) {
	party := uuid.New()
	other := uuid.New()
	paid := newTestBill(t, party, BillTypeInvoice, "INV-1", day(2025, 1, 1), "100")
	wrongType := newTestBill(t, party, BillTypeChallan, "CH-1", day(2025, 1, 1), "100")
	wrongParty := newTestBill(t, other, BillTypeInvoice, "INV-X", day(2025, 1, 1), "100")
	open := newTestBill(t, party, BillTypeInvoice, "INV-2", day(2025, 2, 1), "40")

	res, err := AllocateFIFO(party, dec("100"), BillTypeInvoice, []OutstandingBill{
		{Bill: paid, Outstanding: decimal.Zero},
		{Bill: wrongType, Outstanding: dec("100")},
		{Bill: wrongParty, Outstanding: dec("100")},
		{Bill: open, Outstanding: dec("40")},
		{Bill: nil, Outstanding: dec("10")},
	})
	require.NoError(t, err)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, open.ID, res.Allocations[0].BillID)
	assert.True(t, res.RemainingAmount.Equal(dec("60")))
	assert.False(t, res.FullyAllocated())
}

func TestAllocateFIFO_NoBills(t *testing.T) {
	res, err := AllocateFIFO(uuid.New(), dec("75"), BillTypeInvoice, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Allocations)
	assert.True(t, res.RemainingAmount.Equal(dec("75")))
}

func TestAllocateFIFO_InvalidInput(t *testing.T) {
	party := uuid.New()
	tests := []struct {
		name      string
		party     uuid.UUID
		amount    decimal.Decimal
		billType  BillType
		remaining string
	}{
		{"missing party", uuid.Nil, dec("10"), BillTypeInvoice, "10"},
		{"zero amount", party, decimal.Zero, BillTypeInvoice, "0"},
		{"negative amount", party, dec("-5"), BillTypeInvoice, "0"},
		{"unknown bill type", party, dec("10"), BillType("quote"), "10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := AllocateFIFO(tt.party, tt.amount, tt.billType, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, shared.ErrInvalidInput))
			require.NotNil(t, res)
			assert.Empty(t, res.Allocations)
			assert.True(t, res.RemainingAmount.Equal(dec(tt.remaining)))
		})
	}
}
