package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaymentService records payments and keeps the advance ledger consistent.
//
// Every mutation runs inside the party's lock and one unit of work. On a
// non-atomic TransactionManager, advance drawn from earlier payments is
// credited back when a later step fails.
type PaymentService struct {
	store   ledger.Store
	txm     ledger.TransactionManager
	locker  PartyLocker
	logger  *zap.Logger
	planner  *ledger.PaymentPlanner
	receipts ReceiptSequencer
	events   shared.EventPublisher
	metrics *telemetry.LedgerMetrics
	clock   func() time.Time
	fyStart time.Month
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	store ledger.Store,
	txm ledger.TransactionManager,
	locker PartyLocker,
	logger *zap.Logger,
	opts ...Option,
) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := applyOptions(opts)
	return &PaymentService{
		store:   store,
		txm:     txm,
		locker:  locker,
		logger:  logger.Named("payment_service"),
		planner:  o.planner,
		receipts: o.receipts,
		events:   o.events,
		metrics: o.metrics,
		clock:   o.clock,
		fyStart: o.fyStart,
	}
}

// ProcessPayment allocates a payment against the party's bills and records
// it. Available advance is drawn first, then the new amount pays the target
// bill (bill payments) or outstanding bills oldest first (khata payments).
// What is left becomes the payment's own advance.
func (s *PaymentService) ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (*ledger.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "process_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPartyID, cmd.PartyID.String(),
		telemetry.SpanAttrPaymentType, string(cmd.PaymentType),
		telemetry.SpanAttrBillType, string(cmd.BillType),
		telemetry.SpanAttrAmount, cmd.Amount.String(),
	)

	start := time.Now()
	var payment *ledger.Payment
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationProcessPayment, string(cmd.BillType)), func(c context.Context) {
		payment, operationErr = s.processPayment(c, cmd)
	})
	s.metrics.RecordPayment(ctx, string(cmd.PaymentType), string(cmd.BillType), outcomeOf(operationErr), cmd.Amount, time.Since(start))

	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
		return nil, operationErr
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPaymentID, payment.ID.String(),
		telemetry.SpanAttrReceiptNumber, payment.ReceiptNumber,
		telemetry.SpanAttrAdvanceUsed, payment.AdvanceUsed.String(),
		telemetry.SpanAttrRemaining, payment.RemainingAmount.String(),
		telemetry.SpanAttrAllocations, len(payment.Allocations),
	)
	telemetry.SetOK(span)
	return payment, nil
}

func (s *PaymentService) processPayment(ctx context.Context, cmd ProcessPaymentCommand) (*ledger.Payment, error) {
	if err := checkPaymentCommand(cmd); err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, cmd.PartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock party %s: %w", cmd.PartyID, err)
	}
	defer release()

	var payment *ledger.Payment
	var sources []*ledger.Payment
	err = s.retryReceipt(ctx, cmd.ReceiptNumber == "", func() error {
		return s.txm.WithinTransaction(ctx, func(ctx context.Context, store ledger.Store) error {
			state, err := loadPartyLedger(ctx, store, cmd.PartyID, cmd.BillType)
			if err != nil {
				return err
			}
			receipt, err := s.resolveReceipt(ctx, store.Payments(), cmd.ReceiptNumber, cmd.BillType, cmd.Date, true)
			if err != nil {
				return err
			}
			p, err := s.planner.Plan(cmd.request(receipt), state)
			if err != nil {
				return err
			}
			p.AddDomainEvent(ledger.NewPaymentRecordedEvent(p))

			sources, err = s.commit(ctx, store, p)
			if err != nil {
				return err
			}
			payment = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordAdvanceConsumed(ctx, string(payment.BillType), payment.AdvanceUsed)
	s.publish(ctx, append([]*ledger.Payment{payment}, sources...)...)

	logger.Enrich(ctx, s.logger).Info("Payment recorded",
		zap.String("payment_id", payment.ID.String()),
		zap.String("receipt_number", payment.ReceiptNumber),
		zap.String("party_id", payment.PartyID.String()),
		zap.String("payment_type", string(payment.PaymentType)),
		zap.String("total_amount", payment.TotalAmount.StringFixed(2)),
		zap.String("advance_used", payment.AdvanceUsed.StringFixed(2)),
		zap.String("remaining_amount", payment.RemainingAmount.StringFixed(2)),
		zap.Int("allocations", len(payment.Allocations)),
	)
	return payment, nil
}

func checkPaymentCommand(cmd ProcessPaymentCommand) error {
	if cmd.PartyID == uuid.Nil {
		return shared.NewValidationError("party ID is required")
	}
	if !cmd.BillType.IsValid() {
		return shared.NewValidationError("unknown bill type %q", cmd.BillType)
	}
	if cmd.Date.IsZero() {
		return shared.NewValidationError("payment date is required")
	}
	return nil
}

// commit charges the drawn advance to its sources and saves p. It returns
// the updated sources.
func (s *PaymentService) commit(ctx context.Context, store ledger.Store, p *ledger.Payment) ([]*ledger.Payment, error) {
	sources, err := ledger.MarkAdvanceConsumed(ctx, p.ID, p.AdvanceAllocations, store.Payments())
	if err == nil {
		if err = store.Payments().Save(ctx, p); err == nil {
			return sources, nil
		}
		err = fmt.Errorf("failed to save payment %s: %w", p.ReceiptNumber, err)
	}

	charged := p.AdvanceAllocations[:len(sources)]
	if len(charged) > 0 {
		s.compensate(ctx, "reverse_advance", p.ReceiptNumber, func() error {
			_, rerr := ledger.ReverseAdvanceConsumption(ctx, charged, store.Payments())
			return rerr
		})
	}
	return nil, err
}

// compensate undoes a partial write after a failed step. Atomic stores roll
// back on their own.
func (s *PaymentService) compensate(ctx context.Context, action, receiptNumber string, undo func() error) {
	if s.txm.Atomic() {
		return
	}
	if err := undo(); err != nil {
		logger.Enrich(ctx, s.logger).Error("Compensation failed, advance balances need manual repair",
			zap.String("action", action),
			zap.String("receipt_number", receiptNumber),
			zap.Error(err),
		)
		s.metrics.RecordCompensation(ctx, telemetry.OutcomeFailed)
		return
	}
	logger.Enrich(ctx, s.logger).Warn("Partial write compensated",
		zap.String("action", action),
		zap.String("receipt_number", receiptNumber),
	)
	s.metrics.RecordCompensation(ctx, telemetry.OutcomeSuccess)
}

// PreviewPayment plans a payment without locking or persisting anything.
// The result shows how the payment would be allocated right now.
func (s *PaymentService) PreviewPayment(ctx context.Context, cmd ProcessPaymentCommand) (*ledger.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "preview_payment")
	defer span.End()

	telemetry.SetAttributes(span,
		telemetry.SpanAttrPartyID, cmd.PartyID.String(),
		telemetry.SpanAttrPaymentType, string(cmd.PaymentType),
		telemetry.SpanAttrBillType, string(cmd.BillType),
	)

	var payment *ledger.Payment
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationPreviewPayment, string(cmd.BillType)), func(c context.Context) {
		if operationErr = checkPaymentCommand(cmd); operationErr != nil {
			return
		}
		state, err := loadPartyLedger(c, s.store, cmd.PartyID, cmd.BillType)
		if err != nil {
			operationErr = err
			return
		}
		receipt, err := s.resolveReceipt(c, s.store.Payments(), cmd.ReceiptNumber, cmd.BillType, cmd.Date, false)
		if err != nil {
			operationErr = err
			return
		}
		payment, operationErr = s.planner.Plan(cmd.request(receipt), state)
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
		return nil, operationErr
	}
	return payment, nil
}

// NextReceiptNumber returns the next free receipt number of billType for
// the financial year containing date
func (s *PaymentService) NextReceiptNumber(ctx context.Context, billType ledger.BillType, date time.Time) (string, error) {
	if !billType.IsValid() {
		return "", shared.NewValidationError("unknown bill type %q", billType)
	}
	if date.IsZero() {
		date = s.clock()
	}
	return s.nextReceipt(ctx, s.store.Payments(), billType, date, false)
}

// maxReceiptAttempts bounds retries of a write whose generated receipt
// number was taken by another instance
const maxReceiptAttempts = 3

// nextReceipt returns the receipt number after the highest stored one of the
// namespace. With reserve set the number is drawn from the sequencer, so
// concurrent writers of other parties get distinct numbers.
func (s *PaymentService) nextReceipt(ctx context.Context, repo ledger.PaymentRepository, billType ledger.BillType, date time.Time, reserve bool) (string, error) {
	fy := ledger.FinancialYearOf(date, s.fyStart)
	namespace := ledger.ReceiptPrefix(billType, fy)
	highest, err := repo.MaxReceiptSequence(ctx, namespace)
	if err != nil {
		return "", fmt.Errorf("failed to read receipt sequence: %w", err)
	}
	seq := highest + 1
	if reserve {
		if seq, err = s.receipts.Next(ctx, namespace, highest); err != nil {
			return "", err
		}
	}
	return ledger.FormatReceiptNumber(billType, fy, seq), nil
}

// resolveReceipt generates a receipt number when none is given, otherwise
// checks the given one is unused
func (s *PaymentService) resolveReceipt(ctx context.Context, repo ledger.PaymentRepository, receipt string, billType ledger.BillType, date time.Time, reserve bool) (string, error) {
	if receipt == "" {
		return s.nextReceipt(ctx, repo, billType, date, reserve)
	}
	exists, err := repo.ExistsByReceiptNumber(ctx, receipt)
	if err != nil {
		return "", fmt.Errorf("failed to check receipt number: %w", err)
	}
	if exists {
		return "", shared.NewValidationError("receipt number %s already exists", receipt)
	}
	return receipt, nil
}

// retryReceipt reruns write while its generated receipt number collides
// with one saved in the meantime. Caller-supplied numbers are never retried.
func (s *PaymentService) retryReceipt(ctx context.Context, generated bool, write func() error) error {
	var err error
	for attempt := 1; attempt <= maxReceiptAttempts; attempt++ {
		err = write()
		if err == nil || !generated || !errors.Is(err, shared.ErrAlreadyExists) {
			return err
		}
		logger.Enrich(ctx, s.logger).Warn("Generated receipt number already taken, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return err
}

// GetPayment returns a payment by id
func (s *PaymentService) GetPayment(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	return findPayment(ctx, s.store.Payments(), id)
}

// ListPayments returns a party's payments, newest first
func (s *PaymentService) ListPayments(ctx context.Context, partyID uuid.UUID, filter shared.Filter) (shared.Paginated[*ledger.Payment], error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = shared.DefaultFilter().PageSize
	}
	items, total, err := s.store.Payments().ListByParty(ctx, partyID, filter)
	if err != nil {
		return shared.Paginated[*ledger.Payment]{}, fmt.Errorf("failed to list payments: %w", err)
	}
	return shared.NewPaginated(items, total, filter.Page, filter.PageSize), nil
}

// GetAvailableAdvance returns the unconsumed, unrefunded advance a party
// holds for a bill type
func (s *PaymentService) GetAvailableAdvance(ctx context.Context, partyID uuid.UUID, billType ledger.BillType) (decimal.Decimal, error) {
	if !billType.IsValid() {
		return decimal.Zero, shared.NewValidationError("unknown bill type %q", billType)
	}
	payments, err := s.store.Payments().FindByParty(ctx, partyID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load payments: %w", err)
	}
	return ledger.GetAvailableAdvance(partyID, billType, payments), nil
}

// publish hands pending events of the given aggregates to the event bus.
// The ledger is already committed, so failures are logged only.
func (s *PaymentService) publish(ctx context.Context, aggregates ...*ledger.Payment) {
	for _, a := range aggregates {
		events := a.GetDomainEvents()
		a.ClearDomainEvents()
		if s.events == nil || len(events) == 0 {
			continue
		}
		if err := s.events.Publish(ctx, events...); err != nil {
			logger.Enrich(ctx, s.logger).Warn("Failed to publish domain events",
				zap.String("payment_id", a.ID.String()),
				zap.Int("events", len(events)),
				zap.Error(err),
			)
		}
	}
}

// loadPartyLedger reads the party's bills of billType and all its payments.
// A missing party is a validation error.
func loadPartyLedger(ctx context.Context, store ledger.Store, partyID uuid.UUID, billType ledger.BillType) (ledger.PartyLedger, error) {
	party, err := store.Parties().FindByID(ctx, partyID)
	if err != nil {
		return ledger.PartyLedger{}, fmt.Errorf("failed to load party: %w", err)
	}
	if party == nil {
		return ledger.PartyLedger{}, shared.NewValidationError("party %s does not exist", partyID)
	}
	bills, err := store.Bills().FindByParty(ctx, partyID, billType)
	if err != nil {
		return ledger.PartyLedger{}, fmt.Errorf("failed to load bills: %w", err)
	}
	payments, err := store.Payments().FindByParty(ctx, partyID)
	if err != nil {
		return ledger.PartyLedger{}, fmt.Errorf("failed to load payments: %w", err)
	}
	return ledger.PartyLedger{PartyID: partyID, Bills: bills, Payments: payments}, nil
}

func findPayment(ctx context.Context, repo ledger.PaymentRepository, id uuid.UUID) (*ledger.Payment, error) {
	p, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if p == nil {
		return nil, shared.NewNotFoundError("payment", id)
	}
	return p, nil
}
