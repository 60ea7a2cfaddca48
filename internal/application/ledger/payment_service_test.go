package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPaymentService_KhataPaysOldestFirst(t *testing.T) {
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	older := f.bill(t, party.ID, "INV-1", day(1), "100")
	newer := f.bill(t, party.ID, "INV-2", day(2), "200")

	p := f.khata(t, party.ID, day(10), "250")

	require.Len(t, p.Allocations, 2)
	assert.Equal(t, older.ID, p.Allocations[0].BillID)
	assertAmount(t, "100", p.Allocations[0].AllocatedAmount)
	assert.True(t, p.Allocations[0].IsFullPayment)
	assert.Equal(t, newer.ID, p.Allocations[1].BillID)
	assertAmount(t, "150", p.Allocations[1].AllocatedAmount)
	assert.False(t, p.Allocations[1].IsFullPayment)
	assertAmount(t, "0", p.RemainingAmount)
	assertAmount(t, "250", p.FIFOAllocationUsed)
	assert.Equal(t, "PRI2425/0001", p.ReceiptNumber)

	assertAmount(t, "0", f.outstanding(t, older.ID))
	assertAmount(t, "50", f.outstanding(t, newer.ID))
}

func TestPaymentService_BillPaymentSpillsExcessFIFO(t *testing.T) {
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	a := f.bill(t, party.ID, "INV-1", day(1), "100")
	b := f.bill(t, party.ID, "INV-2", day(2), "200")

	p, err := f.payments.ProcessPayment(context.Background(), ProcessPaymentCommand{
		PartyID:      party.ID,
		PaymentType:  ledger.PaymentTypeBill,
		BillType:     ledger.BillTypeInvoice,
		TargetBillID: &b.ID,
		Amount:       dec("350"),
		Date:         day(5),
	})
	require.NoError(t, err)

	require.Len(t, p.Allocations, 2)
	assert.Equal(t, b.ID, p.Allocations[0].BillID)
	assertAmount(t, "200", p.Allocations[0].AllocatedAmount)
	assert.Equal(t, a.ID, p.Allocations[1].BillID)
	assertAmount(t, "100", p.Allocations[1].AllocatedAmount)
	assertAmount(t, "50", p.RemainingAmount)
	assertAmount(t, "100", p.FIFOAllocationUsed)

	adv, err := f.payments.GetAvailableAdvance(context.Background(), party.ID, ledger.BillTypeInvoice)
	require.NoError(t, err)
	assertAmount(t, "50", adv)
}

func TestPaymentService_AdvanceDrawnBeforeNewMoney(t *testing.T) {
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	source := f.khata(t, party.ID, day(1), "300")
	assertAmount(t, "300", source.RemainingAmount)

	bill := f.bill(t, party.ID, "INV-1", day(2), "200")
	p := f.khata(t, party.ID, day(3), "100")

	assertAmount(t, "200", p.AdvanceUsed)
	require.Len(t, p.AdvanceAllocations, 1)
	assert.Equal(t, source.ID, p.AdvanceAllocations[0].PaymentID)
	require.Len(t, p.Allocations, 1)
	assert.True(t, p.Allocations[0].FromAdvance)
	assertAmount(t, "100", p.RemainingAmount)
	assertAmount(t, "0", f.outstanding(t, bill.ID))

	reloaded := f.reload(t, source.ID)
	assertAmount(t, "200", reloaded.AdvanceConsumed)
	assertAmount(t, "100", reloaded.AvailableAdvance())

	adv, err := f.payments.GetAvailableAdvance(context.Background(), party.ID, ledger.BillTypeInvoice)
	require.NoError(t, err)
	assertAmount(t, "200", adv)

	assert.Contains(t, f.events.types(), ledger.EventTypeAdvanceConsumed)
}

func TestPaymentService_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	party := f.party(t)
	first := f.khata(t, party.ID, day(1), "10")

	tests := []struct {
		name string
		cmd  ProcessPaymentCommand
		want error
	}{
		{
			name: "duplicate receipt",
			cmd: ProcessPaymentCommand{PartyID: party.ID, PaymentType: ledger.PaymentTypeKhata, BillType: ledger.BillTypeInvoice,
				Amount: dec("5"), Date: day(2), ReceiptNumber: first.ReceiptNumber},
			want: shared.ErrValidation,
		},
		{
			name: "unknown party",
			cmd: ProcessPaymentCommand{PartyID: uuid.New(), PaymentType: ledger.PaymentTypeKhata, BillType: ledger.BillTypeInvoice,
				Amount: dec("5"), Date: day(2)},
			want: shared.ErrValidation,
		},
		{
			name: "zero amount",
			cmd: ProcessPaymentCommand{PartyID: party.ID, PaymentType: ledger.PaymentTypeKhata, BillType: ledger.BillTypeInvoice,
				Amount: dec("0"), Date: day(2)},
			want: shared.ErrValidation,
		},
		{
			name: "missing date",
			cmd: ProcessPaymentCommand{PartyID: party.ID, PaymentType: ledger.PaymentTypeKhata, BillType: ledger.BillTypeInvoice,
				Amount: dec("5")},
			want: shared.ErrValidation,
		},
		{
			name: "unknown target bill",
			cmd: ProcessPaymentCommand{PartyID: party.ID, PaymentType: ledger.PaymentTypeBill, BillType: ledger.BillTypeInvoice,
				TargetBillID: ptr(uuid.New()), Amount: dec("5"), Date: day(2)},
			want: shared.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.ProcessPayment(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	page, err := f.payments.ListPayments(ctx, party.ID, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
}

func ptr[T any](v T) *T { return &v }

func TestPaymentService_ReceiptNumbersFollowFinancialYear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	party := f.party(t)

	assert.Equal(t, "PRI2425/0001", f.khata(t, party.ID, day(1), "10").ReceiptNumber)
	assert.Equal(t, "PRI2425/0002", f.khata(t, party.ID, day(2), "10").ReceiptNumber)

	next, err := f.payments.NextReceiptNumber(ctx, ledger.BillTypeInvoice, day(3))
	require.NoError(t, err)
	assert.Equal(t, "PRI2425/0003", next)

	next, err = f.payments.NextReceiptNumber(ctx, ledger.BillTypePurchase, day(3))
	require.NoError(t, err)
	assert.Equal(t, "PRP2425/0001", next)

	_, err = f.payments.NextReceiptNumber(ctx, "voucher", day(3))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentService_PreviewDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	bill := f.bill(t, party.ID, "INV-1", day(1), "100")

	p, err := f.payments.PreviewPayment(ctx, ProcessPaymentCommand{
		PartyID:     party.ID,
		PaymentType: ledger.PaymentTypeKhata,
		BillType:    ledger.BillTypeInvoice,
		Amount:      dec("60"),
		Date:        day(2),
	})
	require.NoError(t, err)
	require.Len(t, p.Allocations, 1)
	assertAmount(t, "60", p.Allocations[0].AllocatedAmount)

	assertAmount(t, "100", f.outstanding(t, bill.ID))
	page, err := f.payments.ListPayments(ctx, party.ID, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, f.events.types())
}

func TestPaymentService_SaveFailureRestoresAdvance(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reader := sdkmetric.NewManualReader()
	metrics, err := telemetry.NewLedgerMetrics(telemetry.NewMeterProviderWithReader(reader, zap.NewNop()).Meter(telemetry.MeterName))
	require.NoError(t, err)

	f := newFixtureWithLogger(t, zap.New(core), WithAutoApplyAdvance(false), WithMetrics(metrics))
	party := f.party(t)
	source := f.khata(t, party.ID, day(1), "300")
	f.bill(t, party.ID, "INV-1", day(2), "200")

	f.store.saveErr = errDiskFull
	_, err = f.payments.ProcessPayment(context.Background(), ProcessPaymentCommand{
		PartyID:     party.ID,
		PaymentType: ledger.PaymentTypeKhata,
		BillType:    ledger.BillTypeInvoice,
		Amount:      dec("50"),
		Date:        day(3),
	})
	require.ErrorIs(t, err, errDiskFull)
	f.store.saveErr = nil

	reloaded := f.reload(t, source.ID)
	assertAmount(t, "0", reloaded.AdvanceConsumed)
	assert.False(t, reloaded.AdvanceFullyUsed)
	assert.Equal(t, 1, logs.FilterMessage("Partial write compensated").Len())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var compensations int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok && m.Name == "ledger_compensation_total" {
				for _, dp := range sum.DataPoints {
					compensations += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), compensations)

	// the advance is still there for the retry
	retry := f.khata(t, party.ID, day(3), "50")
	assertAmount(t, "200", retry.AdvanceUsed)
}

func TestPaymentService_ConcurrentPaymentsSameParty(t *testing.T) {
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	for i, amt := range []string{"100", "100", "100", "100"} {
		f.bill(t, party.ID, "INV-"+string(rune('A'+i)), day(i+1), amt)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.payments.ProcessPayment(context.Background(), ProcessPaymentCommand{
				PartyID:     party.ID,
				PaymentType: ledger.PaymentTypeKhata,
				BillType:    ledger.BillTypeInvoice,
				Amount:      dec("75"),
				Date:        day(10),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	page, err := f.payments.ListPayments(context.Background(), party.ID, shared.Filter{Page: 1, PageSize: 50})
	require.NoError(t, err)
	require.Len(t, page.Items, workers)

	receipts := map[string]bool{}
	allocated := dec("0")
	remaining := dec("0")
	for _, p := range page.Items {
		receipts[p.ReceiptNumber] = true
		require.NoError(t, p.Validate())
		allocated = allocated.Add(p.OwnAllocated())
		remaining = remaining.Add(p.RemainingAmount)
	}
	assert.Len(t, receipts, workers)
	assertAmount(t, "400", allocated)
	assertAmount(t, "200", remaining)

	outstanding, err := f.bills.ListOutstanding(context.Background(), party.ID, ledger.BillTypeInvoice)
	require.NoError(t, err)
	assert.Empty(t, outstanding)
}

func TestPaymentService_ConcurrentReceiptsAcrossParties(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAutoApplyAdvance(false))
	f.store.receiptDelay = 20 * time.Millisecond

	const parties = 4
	ids := make([]uuid.UUID, parties)
	for i := range ids {
		p, err := f.bills.CreateParty(ctx, CreatePartyCommand{Name: fmt.Sprintf("Party %d", i), Kind: ledger.PartyKindCustomer})
		require.NoError(t, err)
		ids[i] = p.ID
	}

	var wg sync.WaitGroup
	results := make(chan *ledger.Payment, parties)
	errs := make(chan error, parties)
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			p, err := f.payments.ProcessPayment(ctx, ProcessPaymentCommand{
				PartyID:     id,
				PaymentType: ledger.PaymentTypeKhata,
				BillType:    ledger.BillTypeInvoice,
				Amount:      dec("100"),
				Date:        day(10),
			})
			if err != nil {
				errs <- err
				return
			}
			results <- p
		}(id)
	}
	wg.Wait()
	close(results)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	receipts := map[string]bool{}
	for p := range results {
		receipts[p.ReceiptNumber] = true
	}
	assert.Equal(t, map[string]bool{
		"PRI2425/0001": true,
		"PRI2425/0002": true,
		"PRI2425/0003": true,
		"PRI2425/0004": true,
	}, receipts)
}

// staleSequencer hands out numbers from its own counter and ignores the
// stored maximum, like a second instance that has not seen recent writes
type staleSequencer struct {
	mu   sync.Mutex
	next int
}

func (s *staleSequencer) Next(context.Context, string, int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return s.next, nil
}

func TestPaymentService_GeneratedReceiptRetriedOnCollision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAutoApplyAdvance(false), WithReceiptSequencer(&staleSequencer{}))
	party := f.party(t)

	// taken outside the sequencer
	taken := f.khata(t, party.ID, day(1), "10")
	require.Equal(t, "PRI2425/0001", taken.ReceiptNumber)
	f.payments.receipts = &staleSequencer{}

	p, err := f.payments.ProcessPayment(ctx, ProcessPaymentCommand{
		PartyID:     party.ID,
		PaymentType: ledger.PaymentTypeKhata,
		BillType:    ledger.BillTypeInvoice,
		Amount:      dec("20"),
		Date:        day(2),
	})
	require.NoError(t, err)
	assert.Equal(t, "PRI2425/0002", p.ReceiptNumber)

	// a caller-supplied duplicate is reported, not renumbered
	_, err = f.payments.ProcessPayment(ctx, ProcessPaymentCommand{
		PartyID:       party.ID,
		PaymentType:   ledger.PaymentTypeKhata,
		BillType:      ledger.BillTypeInvoice,
		Amount:        dec("20"),
		Date:          day(3),
		ReceiptNumber: "PRI2425/0002",
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentService_DeleteReleasesAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	source := f.khata(t, party.ID, day(1), "300")
	bill := f.bill(t, party.ID, "INV-1", day(2), "200")
	consumer := f.khata(t, party.ID, day(3), "10")

	err := f.payments.DeletePayment(ctx, source.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	require.NoError(t, f.payments.DeletePayment(ctx, consumer.ID))
	assertAmount(t, "0", f.reload(t, source.ID).AdvanceConsumed)
	assertAmount(t, "200", f.outstanding(t, bill.ID))
	assert.Contains(t, f.events.types(), ledger.EventTypePaymentDeleted)

	require.NoError(t, f.payments.DeletePayment(ctx, source.ID))
	_, err = f.payments.GetPayment(ctx, source.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = f.payments.DeletePayment(ctx, source.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPaymentService_RefundAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	source := f.khata(t, party.ID, day(1), "300")

	refunded, err := f.payments.RefundAdvance(ctx, source.ID, day(4))
	require.NoError(t, err)
	assert.True(t, refunded.AdvanceRefunded)
	require.NotNil(t, refunded.RefundedAt)
	assert.Equal(t, day(4), *refunded.RefundedAt)

	adv, err := f.payments.GetAvailableAdvance(ctx, party.ID, ledger.BillTypeInvoice)
	require.NoError(t, err)
	assertAmount(t, "0", adv)

	_, err = f.payments.RefundAdvance(ctx, source.ID, day(5))
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	// refunded money never funds later bills
	bill := f.bill(t, party.ID, "INV-1", day(5), "100")
	p := f.khata(t, party.ID, day(6), "40")
	assertAmount(t, "0", p.AdvanceUsed)
	assertAmount(t, "60", f.outstanding(t, bill.ID))
	assert.Contains(t, f.events.types(), ledger.EventTypeAdvanceRefunded)
}

func TestPaymentService_RefundWithoutRemainder(t *testing.T) {
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	f.bill(t, party.ID, "INV-1", day(1), "100")
	p := f.khata(t, party.ID, day(2), "100")

	_, err := f.payments.RefundAdvance(context.Background(), p.ID, day(3))
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPaymentService_ApplyAdvanceNoop(t *testing.T) {
	f := newFixture(t, WithAutoApplyAdvance(false))
	party := f.party(t)
	f.bill(t, party.ID, "INV-1", day(1), "100")

	p, err := f.payments.ApplyAdvance(context.Background(), ApplyAdvanceCommand{PartyID: party.ID, BillType: ledger.BillTypeInvoice})
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPaymentService_PublishFailureDoesNotFailPayment(t *testing.T) {
	f := newFixture(t)
	f.events.err = errDiskFull
	party := f.party(t)

	p := f.khata(t, party.ID, day(1), "10")
	assert.NotNil(t, f.reload(t, p.ID))
}
