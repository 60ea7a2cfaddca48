package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeOutstanding(t *testing.T) {
	party := uuid.New()
	bill := newTestBill(t, party, BillTypeInvoice, "INV-1", day(2025, 1, 1), "500")

	t.Run("no allocations leaves full amount outstanding", func(t *testing.T) {
		bal := ComputeOutstanding(bill, nil)
		assert.True(t, bal.TotalPaid.IsZero())
		assert.True(t, bal.Outstanding.Equal(dec("500")))
		assert.Equal(t, BillStatusUnpaid, bal.Status)
	})

	t.Run("sums allocations across payments", func(t *testing.T) {
		payments := []*Payment{
			paymentWith(t, party, day(2025, 1, 2), allocTo(bill, "100")),
			paymentWith(t, party, day(2025, 1, 3), allocTo(bill, "150.50")),
		}
		bal := ComputeOutstanding(bill, payments)
		assert.True(t, bal.TotalPaid.Equal(dec("250.50")))
		assert.True(t, bal.Outstanding.Equal(dec("249.50")))
		assert.Equal(t, BillStatusPartial, bal.Status)
	})

	t.Run("advance funded allocations count once", func(t *testing.T) {
		a := allocTo(bill, "200")
		a.FromAdvance = true
		payments := []*Payment{
			paymentWith(t, party, day(2025, 1, 2), allocTo(bill, "300")),
			paymentWith(t, party, day(2025, 1, 3), a),
		}
		bal := ComputeOutstanding(bill, payments)
		assert.True(t, bal.TotalPaid.Equal(dec("500")))
		assert.True(t, bal.Outstanding.IsZero())
		assert.Equal(t, BillStatusPaid, bal.Status)
	})

	t.Run("overpayment never makes outstanding negative", func(t *testing.T) {
		payments := []*Payment{
			paymentWith(t, party, day(2025, 1, 2), allocTo(bill, "400")),
			paymentWith(t, party, day(2025, 1, 3), allocTo(bill, "400")),
		}
		bal := ComputeOutstanding(bill, payments)
		assert.True(t, bal.TotalPaid.Equal(dec("800")))
		assert.True(t, bal.Outstanding.IsZero())
	})

	t.Run("allocations to another bill type with the same id are ignored", func(t *testing.T) {
		a := allocTo(bill, "100")
		a.BillType = BillTypePurchase
		bal := ComputeOutstanding(bill, []*Payment{paymentWith(t, party, day(2025, 1, 2), a)})
		assert.True(t, bal.Outstanding.Equal(dec("500")))
	})
}

func TestComputeOutstanding_Monotonic(t *testing.T) {
	party := uuid.New()
	bill := newTestBill(t, party, BillTypeChallan, "CH-1", day(2025, 1, 1), "300")

	payments := make([]*Payment, 0)
	prev := ComputeOutstanding(bill, payments)
	for _, amt := range []string{"50", "120", "0.01", "200", "75"} {
		payments = append(payments, paymentWith(t, party, day(2025, 2, 1), allocTo(bill, amt)))
		next := ComputeOutstanding(bill, payments)
		assert.True(t, next.TotalPaid.GreaterThanOrEqual(prev.TotalPaid))
		assert.False(t, next.Outstanding.IsNegative())
		assert.True(t, next.Outstanding.LessThanOrEqual(prev.Outstanding))
		prev = next
	}
}

func TestComputeOutstanding_Idempotent(t *testing.T) {
	party := uuid.New()
	bill := newTestBill(t, party, BillTypeInvoice, "INV-9", day(2025, 1, 1), "90")
	payments := []*Payment{paymentWith(t, party, day(2025, 1, 2), allocTo(bill, "40"))}

	first := ComputeOutstanding(bill, payments)
	second := ComputeOutstanding(bill, payments)
	assert.Equal(t, first, second)
	require.Len(t, payments[0].Allocations, 1)
	assert.True(t, bill.TotalAmount.Equal(dec("90")))
}

func TestComputeBalances_MatchesComputeOutstanding(t *testing.T) {
	party := uuid.New()
	b1 := newTestBill(t, party, BillTypeInvoice, "INV-1", day(2025, 1, 1), "100")
	b2 := newTestBill(t, party, BillTypeInvoice, "INV-2", day(2025, 1, 5), "50")
	payments := []*Payment{
		paymentWith(t, party, day(2025, 1, 6), allocTo(b1, "100"), allocTo(b2, "20")),
	}

	balances := ComputeBalances([]*Bill{b1, b2}, payments)
	require.Len(t, balances, 2)
	for i, b := range []*Bill{b1, b2} {
		single := ComputeOutstanding(b, payments)
		assert.Equal(t, single.BillID, balances[i].BillID)
		assert.True(t, single.TotalPaid.Equal(balances[i].TotalPaid))
		assert.True(t, single.Outstanding.Equal(balances[i].Outstanding))
		assert.Equal(t, single.Status, balances[i].Status)
	}

	open := OutstandingBills([]*Bill{b1, b2}, payments)
	assert.True(t, open[0].Outstanding.IsZero())
	assert.True(t, open[1].Outstanding.Equal(dec("30")))
}
