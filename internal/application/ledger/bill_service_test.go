package ledger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBillService_RecordBillAppliesAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	party := f.party(t)
	source := f.khata(t, party.ID, day(1), "300")

	res, err := f.bills.RecordBill(ctx, RecordBillCommand{
		PartyID:  party.ID,
		BillType: ledger.BillTypeInvoice,
		Number:   "INV-1",
		Date:     day(2),
		Amount:   dec("200"),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Adjustment)

	adj := res.Adjustment
	assert.Equal(t, ledger.PaymentTypeAdjustment, adj.PaymentType)
	assertAmount(t, "0", adj.TotalAmount)
	assertAmount(t, "200", adj.AdvanceUsed)
	assert.Equal(t, "PRI2425/0002", adj.ReceiptNumber)
	require.Len(t, adj.Allocations, 1)
	assert.True(t, adj.Allocations[0].FromAdvance)
	assert.Equal(t, res.Bill.ID, adj.Allocations[0].BillID)

	assertAmount(t, "0", f.outstanding(t, res.Bill.ID))
	assertAmount(t, "200", f.reload(t, source.ID).AdvanceConsumed)
}

func TestBillService_RecordBillWithoutAdvance(t *testing.T) {
	f := newFixture(t)
	party := f.party(t)

	res, err := f.bills.RecordBill(context.Background(), RecordBillCommand{
		PartyID:  party.ID,
		BillType: ledger.BillTypeChallan,
		Number:   "CH-1",
		Date:     day(2),
		Amount:   dec("75"),
		Notes:    "delivery",
	})
	require.NoError(t, err)
	assert.Nil(t, res.Adjustment)
	assert.Equal(t, "delivery", res.Bill.Notes)
}

func TestBillService_AdvanceStaysWithinBillType(t *testing.T) {
	f := newFixture(t)
	party := f.party(t)
	f.khata(t, party.ID, day(1), "300")

	res, err := f.bills.RecordBill(context.Background(), RecordBillCommand{
		PartyID:  party.ID,
		BillType: ledger.BillTypePurchase,
		Number:   "PB-1",
		Date:     day(2),
		Amount:   dec("100"),
	})
	require.NoError(t, err)
	assert.Nil(t, res.Adjustment)
	assertAmount(t, "100", f.outstanding(t, res.Bill.ID))
}

func TestBillService_RecordBillValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	party := f.party(t)
	f.bill(t, party.ID, "INV-1", day(1), "10")
	due := day(1)

	tests := []struct {
		name string
		cmd  RecordBillCommand
		want error
	}{
		{"unknown party", RecordBillCommand{PartyID: uuid.New(), BillType: ledger.BillTypeInvoice, Number: "X", Date: day(1), Amount: dec("1")}, shared.ErrValidation},
		{"negative amount", RecordBillCommand{PartyID: party.ID, BillType: ledger.BillTypeInvoice, Number: "X", Date: day(1), Amount: dec("-1")}, shared.ErrValidation},
		{"duplicate number", RecordBillCommand{PartyID: party.ID, BillType: ledger.BillTypeInvoice, Number: "INV-1", Date: day(2), Amount: dec("1")}, shared.ErrAlreadyExists},
		{"due before date", RecordBillCommand{PartyID: party.ID, BillType: ledger.BillTypeInvoice, Number: "X", Date: day(2), DueDate: &due, Amount: dec("1")}, shared.ErrValidation},
		{"unknown type", RecordBillCommand{PartyID: party.ID, BillType: "receipt", Number: "X", Date: day(2), Amount: dec("1")}, shared.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bills.RecordBill(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBillService_ApplyFailureKeepsBill(t *testing.T) {
	f := newFixture(t)
	party := f.party(t)
	f.khata(t, party.ID, day(1), "300")

	f.store.saveErr = errDiskFull
	res, err := f.bills.RecordBill(context.Background(), RecordBillCommand{
		PartyID:  party.ID,
		BillType: ledger.BillTypeInvoice,
		Number:   "INV-1",
		Date:     day(2),
		Amount:   dec("100"),
	})
	f.store.saveErr = nil

	require.ErrorIs(t, err, errDiskFull)
	require.NotNil(t, res)
	bill, err := f.bills.GetBill(context.Background(), res.Bill.ID)
	require.NoError(t, err)
	assertAmount(t, "100", f.outstanding(t, bill.ID))
}

func TestBillService_Parties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.bills.CreateParty(ctx, CreatePartyCommand{Name: "  "})
	assert.ErrorIs(t, err, shared.ErrValidation)

	p, err := f.bills.CreateParty(ctx, CreatePartyCommand{Name: "Gupta Mills", Kind: ledger.PartyKindSupplier, Phone: " 98100 "})
	require.NoError(t, err)
	assert.Equal(t, "98100", p.Phone)

	got, err := f.bills.GetParty(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gupta Mills", got.DisplayName)

	_, err = f.bills.GetParty(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	all, err := f.bills.ListParties(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestBillService_ListOutstanding(t *testing.T) {
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	paid := f.bill(t, party.ID, "INV-1", day(1), "100")
	open := f.bill(t, party.ID, "INV-2", day(2), "100")
	f.khata(t, party.ID, day(3), "130")

	rows, err := f.bills.ListOutstanding(context.Background(), party.ID, ledger.BillTypeInvoice)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, open.ID, rows[0].BillID)
	assertAmount(t, "70", rows[0].Outstanding)
	assert.Equal(t, ledger.BillStatusPartial, rows[0].Status)

	bal, err := f.bills.BillOutstanding(context.Background(), paid.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.BillStatusPaid, bal.Status)
}
