package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when metrics are constructed without a meter.
var ErrMeterNil = errors.New("telemetry: meter is nil")

// Outcome labels for ledger operations.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// LedgerMetrics holds the business instruments of the ledger.
type LedgerMetrics struct {
	paymentsTotal     *Counter
	paymentAmount     *FloatCounter
	paymentDuration   *Histogram
	advanceConsumed   *FloatCounter
	advanceRefunded   *FloatCounter
	compensationTotal *Counter
	eventsPublished   *Counter
}

// NewLedgerMetrics registers the ledger instruments on meter.
func NewLedgerMetrics(meter metric.Meter) (*LedgerMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &LedgerMetrics{}
	var err error
	if m.paymentsTotal, err = NewCounter(meter, "ledger_payments_total",
		"Payments processed by outcome", "{payment}"); err != nil {
		return nil, err
	}
	if m.paymentAmount, err = NewFloatCounter(meter, "ledger_payment_amount_total",
		"Sum of recorded payment amounts", "{currency}"); err != nil {
		return nil, err
	}
	if m.paymentDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ledger_payment_duration_seconds",
		Description: "Time to process a payment end to end",
		Unit:        "s",
		Boundaries:  HTTPDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.advanceConsumed, err = NewFloatCounter(meter, "ledger_advance_consumed_total",
		"Advance drawn from earlier payments", "{currency}"); err != nil {
		return nil, err
	}
	if m.advanceRefunded, err = NewFloatCounter(meter, "ledger_advance_refunded_total",
		"Advance returned to parties", "{currency}"); err != nil {
		return nil, err
	}
	if m.compensationTotal, err = NewCounter(meter, "ledger_compensation_total",
		"Advance consumption reversals after a failed save", "{reversal}"); err != nil {
		return nil, err
	}
	if m.eventsPublished, err = NewCounter(meter, "ledger_events_published_total",
		"Domain events handled by the event bus", "{event}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordPayment counts one ProcessPayment call.
func (m *LedgerMetrics) RecordPayment(ctx context.Context, paymentType, billType, outcome string, amount decimal.Decimal, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrPaymentType.String(paymentType), AttrBillType.String(billType)}
	m.paymentsTotal.Inc(ctx, append(attrs, AttrOutcome.String(outcome))...)
	m.paymentDuration.RecordDuration(ctx, elapsed, AttrOutcome.String(outcome))
	if outcome == OutcomeSuccess {
		m.paymentAmount.Add(ctx, amount.InexactFloat64(), attrs...)
	}
}

// RecordAdvanceConsumed adds to the consumed-advance total.
func (m *LedgerMetrics) RecordAdvanceConsumed(ctx context.Context, billType string, amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.advanceConsumed.Add(ctx, amount.InexactFloat64(), AttrBillType.String(billType))
}

// RecordAdvanceRefunded adds to the refunded-advance total.
func (m *LedgerMetrics) RecordAdvanceRefunded(ctx context.Context, billType string, amount decimal.Decimal) {
	if m == nil || !amount.IsPositive() {
		return
	}
	m.advanceRefunded.Add(ctx, amount.InexactFloat64(), AttrBillType.String(billType))
}

// RecordCompensation counts a reversal of advance consumption.
func (m *LedgerMetrics) RecordCompensation(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.compensationTotal.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordEvent counts a handled domain event.
func (m *LedgerMetrics) RecordEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.Inc(ctx, AttrEventType.String(eventType))
}
