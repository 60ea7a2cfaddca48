package event

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

type testHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
	panicWith  any
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	h.handled = append(h.handled, event)
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func recordedEvent() *ledger.PaymentRecordedEvent {
	p := &ledger.Payment{
		PartyID:         uuid.New(),
		PaymentType:     ledger.PaymentTypeKhata,
		BillType:        ledger.BillTypeInvoice,
		TotalAmount:     decimal.NewFromInt(250),
		RemainingAmount: decimal.NewFromInt(50),
		ReceiptNumber:   "PRI2425/0001",
	}
	p.ID = uuid.New()
	return ledger.NewPaymentRecordedEvent(p)
}

func refundedEvent() *ledger.AdvanceRefundedEvent {
	p := &ledger.Payment{PartyID: uuid.New(), BillType: ledger.BillTypePurchase, ReceiptNumber: "PRP2425/0003"}
	p.ID = uuid.New()
	return ledger.NewAdvanceRefundedEvent(p, decimal.NewFromInt(30))
}
