package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
)

// PartyLocker serializes ledger mutations per party. The returned release
// func must be called exactly once; calling it again is a no-op.
type PartyLocker interface {
	Lock(ctx context.Context, partyID uuid.UUID) (release func(), err error)
}

// ReceiptSequencer reserves receipt sequence numbers per namespace
// ("PRI2425/"). Next returns a number greater than floor and than any number
// it returned before for the namespace, so parties writing in parallel never
// draw the same receipt.
type ReceiptSequencer interface {
	Next(ctx context.Context, namespace string, floor int) (int, error)
}

// localSequencer is the in-process ReceiptSequencer
type localSequencer struct {
	mu   sync.Mutex
	last map[string]int
}

func newLocalSequencer() *localSequencer {
	return &localSequencer{last: make(map[string]int)}
}

func (s *localSequencer) Next(_ context.Context, namespace string, floor int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := max(s.last[namespace], floor) + 1
	s.last[namespace] = n
	return n, nil
}

// Option configures the ledger services
type Option func(*serviceOptions)

type serviceOptions struct {
	events    shared.EventPublisher
	metrics   *telemetry.LedgerMetrics
	clock     func() time.Time
	fyStart   time.Month
	planner   *ledger.PaymentPlanner
	receipts  ReceiptSequencer
	autoApply bool
}

func defaultOptions() serviceOptions {
	return serviceOptions{
		clock:     time.Now,
		fyStart:   time.April,
		planner:   ledger.NewPaymentPlanner(nil),
		receipts:  newLocalSequencer(),
		autoApply: true,
	}
}

func applyOptions(opts []Option) serviceOptions {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithEventPublisher publishes domain events after each commit
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(o *serviceOptions) { o.events = p }
}

// WithMetrics records ledger business metrics
func WithMetrics(m *telemetry.LedgerMetrics) Option {
	return func(o *serviceOptions) { o.metrics = m }
}

// WithClock overrides time.Now, used for default dates and report as-of
func WithClock(clock func() time.Time) Option {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithFinancialYearStart sets the first month of the financial year used by
// receipt numbering
func WithFinancialYearStart(m time.Month) Option {
	return func(o *serviceOptions) {
		if m >= time.January && m <= time.December {
			o.fyStart = m
		}
	}
}

// WithPlanner replaces the default payment planner
func WithPlanner(p *ledger.PaymentPlanner) Option {
	return func(o *serviceOptions) {
		if p != nil {
			o.planner = p
		}
	}
}

// WithReceiptSequencer shares receipt sequences with other instances
func WithReceiptSequencer(seq ReceiptSequencer) Option {
	return func(o *serviceOptions) {
		if seq != nil {
			o.receipts = seq
		}
	}
}

// WithAutoApplyAdvance controls whether RecordBill applies available advance
// to the new bill
func WithAutoApplyAdvance(on bool) Option {
	return func(o *serviceOptions) { o.autoApply = on }
}

// Profiling operation names
const (
	operationProcessPayment = "process_payment"
	operationPreviewPayment = "preview_payment"
	operationDeletePayment  = "delete_payment"
	operationRefundAdvance  = "refund_advance"
	operationApplyAdvance   = "apply_advance"
	operationRecordBill     = "record_bill"
	operationReport         = "report"
)

// outcomeOf classifies an error for metrics: caller mistakes are rejected,
// everything else failed
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case isRejection(err):
		return telemetry.OutcomeRejected
	default:
		return telemetry.OutcomeFailed
	}
}

func isRejection(err error) bool {
	for _, target := range []error{
		shared.ErrValidation,
		shared.ErrInvalidInput,
		shared.ErrNotFound,
		shared.ErrInvalidState,
		shared.ErrAlreadyExists,
		shared.ErrConcurrencyConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
