package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/lock"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func day(d int) time.Time {
	return time.Date(2024, time.May, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(dec(want)), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return r.err
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType())
	}
	return out
}

// faultyStore wraps the memory store and fails payment saves on demand.
// receiptDelay stalls receipt sequence reads to widen races.
type faultyStore struct {
	*memory.Store
	saveErr      error
	receiptDelay time.Duration
}

func (f *faultyStore) Payments() ledger.PaymentRepository {
	return faultyPayments{PaymentRepository: f.Store.Payments(), store: f}
}

func (f *faultyStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, store ledger.Store) error) error {
	return fn(ctx, f)
}

type faultyPayments struct {
	ledger.PaymentRepository
	store *faultyStore
}

func (p faultyPayments) Save(ctx context.Context, payment *ledger.Payment) error {
	if p.store.saveErr != nil {
		return p.store.saveErr
	}
	return p.PaymentRepository.Save(ctx, payment)
}

func (p faultyPayments) MaxReceiptSequence(ctx context.Context, prefix string) (int, error) {
	n, err := p.PaymentRepository.MaxReceiptSequence(ctx, prefix)
	if p.store.receiptDelay > 0 {
		time.Sleep(p.store.receiptDelay)
	}
	return n, err
}

var errDiskFull = errors.New("disk full")

type fixture struct {
	store    *faultyStore
	events   *recordingPublisher
	payments *PaymentService
	bills    *BillService
	reports  *ReportService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithLogger(t, zap.NewNop(), opts...)
}

func newFixtureWithLogger(t *testing.T, logger *zap.Logger, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  &faultyStore{Store: memory.New()},
		events: &recordingPublisher{},
	}
	opts = append([]Option{
		WithEventPublisher(f.events),
		WithClock(func() time.Time { return day(31) }),
	}, opts...)
	f.payments = NewPaymentService(f.store, f.store, lock.NewLocalPartyLocker(5*time.Second), logger, opts...)
	f.bills = NewBillService(f.store, f.payments, logger, opts...)
	f.reports = NewReportService(f.store, logger, opts...)
	return f
}

func (f *fixture) party(t *testing.T) *ledger.Party {
	t.Helper()
	p, err := f.bills.CreateParty(context.Background(), CreatePartyCommand{Name: "Sharma Traders", Kind: ledger.PartyKindCustomer})
	require.NoError(t, err)
	return p
}

func (f *fixture) bill(t *testing.T, partyID uuid.UUID, number string, date time.Time, amount string) *ledger.Bill {
	t.Helper()
	res, err := f.bills.RecordBill(context.Background(), RecordBillCommand{
		PartyID:  partyID,
		BillType: ledger.BillTypeInvoice,
		Number:   number,
		Date:     date,
		Amount:   dec(amount),
	})
	require.NoError(t, err)
	return res.Bill
}

func (f *fixture) khata(t *testing.T, partyID uuid.UUID, date time.Time, amount string) *ledger.Payment {
	t.Helper()
	p, err := f.payments.ProcessPayment(context.Background(), ProcessPaymentCommand{
		PartyID:     partyID,
		PaymentType: ledger.PaymentTypeKhata,
		BillType:    ledger.BillTypeInvoice,
		Amount:      dec(amount),
		Date:        date,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *ledger.Payment {
	t.Helper()
	p, err := f.payments.GetPayment(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (f *fixture) outstanding(t *testing.T, billID uuid.UUID) decimal.Decimal {
	t.Helper()
	bal, err := f.bills.BillOutstanding(context.Background(), billID)
	require.NoError(t, err)
	return bal.Outstanding
}
