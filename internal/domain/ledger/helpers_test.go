package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestBill(t *testing.T, partyID uuid.UUID, billType BillType, number string, date time.Time, amount string) *Bill {
	t.Helper()
	b, err := NewBill(partyID, billType, number, date, dec(amount))
	require.NoError(t, err)
	return b
}

// newAdvancePayment builds a khata payment that allocated nothing
func newAdvancePayment(t *testing.T, partyID uuid.UUID, billType BillType, date time.Time, amount, receipt string) *Payment {
	t.Helper()
	p, err := NewPayment(PaymentHeader{
		PartyID:       partyID,
		PaymentType:   PaymentTypeKhata,
		BillType:      billType,
		TotalAmount:   dec(amount),
		Date:          date,
		ReceiptNumber: receipt,
	})
	require.NoError(t, err)
	return p
}

// paymentWith builds a payment with the given own allocations
func paymentWith(t *testing.T, partyID uuid.UUID, date time.Time, allocs ...Allocation) *Payment {
	t.Helper()
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.AllocatedAmount)
	}
	p, err := NewPayment(PaymentHeader{
		PartyID:       partyID,
		PaymentType:   PaymentTypeKhata,
		BillType:      BillTypeInvoice,
		TotalAmount:   total,
		Date:          date,
		ReceiptNumber: "R-" + uuid.NewString()[:8],
	})
	require.NoError(t, err)
	p.Allocations = allocs
	p.RemainingAmount = decimal.Zero
	return p
}

func allocTo(b *Bill, amount string) Allocation {
	return Allocation{
		BillType:        b.BillType,
		BillID:          b.ID,
		BillNumber:      b.Number,
		AllocatedAmount: dec(amount),
	}
}

// memPayments is a map-backed PaymentRepository for advance tests
type memPayments struct {
	items map[uuid.UUID]*Payment
	fail  error
}

func newMemPayments(ps ...*Payment) *memPayments {
	m := &memPayments{items: make(map[uuid.UUID]*Payment)}
	for _, p := range ps {
		m.items[p.ID] = p
	}
	return m
}

func (m *memPayments) FindByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memPayments) FindByParty(_ context.Context, partyID uuid.UUID) ([]*Payment, error) {
	out := make([]*Payment, 0)
	for _, p := range m.items {
		if p.PartyID == partyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPayments) FindByBillType(_ context.Context, billType BillType) ([]*Payment, error) {
	out := make([]*Payment, 0)
	for _, p := range m.items {
		if p.BillType == billType {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPayments) ListByParty(ctx context.Context, partyID uuid.UUID, _ shared.Filter) ([]*Payment, int64, error) {
	out, _ := m.FindByParty(ctx, partyID)
	return out, int64(len(out)), nil
}

func (m *memPayments) ExistsByReceiptNumber(_ context.Context, receipt string) (bool, error) {
	for _, p := range m.items {
		if p.ReceiptNumber == receipt {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPayments) MaxReceiptSequence(context.Context, string) (int, error) {
	return 0, nil
}

func (m *memPayments) Save(_ context.Context, p *Payment) error {
	m.items[p.ID] = p
	return nil
}

func (m *memPayments) UpdateAdvance(_ context.Context, id uuid.UUID, patch AdvancePatch) error {
	if m.fail != nil {
		return m.fail
	}
	p, ok := m.items[id]
	if !ok {
		return shared.NewNotFoundError("payment", id)
	}
	p.AdvanceConsumed = patch.AdvanceConsumed
	p.AdvanceFullyUsed = patch.AdvanceFullyUsed
	p.AdvanceRefunded = patch.AdvanceRefunded
	p.RefundedAt = patch.RefundedAt
	p.Version = patch.Version
	return nil
}

func (m *memPayments) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}
