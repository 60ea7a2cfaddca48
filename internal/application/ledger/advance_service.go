package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DeletePayment removes a payment and credits the advance it drew back to
// its sources. A payment whose own advance funded later payments cannot be
// deleted until those are.
func (s *PaymentService) DeletePayment(ctx context.Context, id uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "delete_payment")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, id.String())

	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationDeletePayment, ""), func(c context.Context) {
		operationErr = s.deletePayment(c, id)
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
		return operationErr
	}
	return nil
}

func (s *PaymentService) deletePayment(ctx context.Context, id uuid.UUID) error {
	existing, err := findPayment(ctx, s.store.Payments(), id)
	if err != nil {
		return err
	}
	release, err := s.locker.Lock(ctx, existing.PartyID)
	if err != nil {
		return fmt.Errorf("failed to lock party %s: %w", existing.PartyID, err)
	}
	defer release()

	var deleted *ledger.Payment
	err = s.txm.WithinTransaction(ctx, func(ctx context.Context, store ledger.Store) error {
		p, err := findPayment(ctx, store.Payments(), id)
		if err != nil {
			return err
		}
		if err := p.CanDelete(); err != nil {
			return err
		}

		released, err := ledger.ReverseAdvanceConsumption(ctx, p.AdvanceAllocations, store.Payments())
		if err != nil {
			s.recharge(ctx, store, p, p.AdvanceAllocations[:len(released)])
			return err
		}
		if err := store.Payments().Delete(ctx, p.ID); err != nil {
			s.recharge(ctx, store, p, p.AdvanceAllocations)
			return fmt.Errorf("failed to delete payment %s: %w", p.ReceiptNumber, err)
		}

		p.MarkDeleted()
		deleted = p
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(ctx, deleted)
	logger.Enrich(ctx, s.logger).Info("Payment deleted",
		zap.String("payment_id", deleted.ID.String()),
		zap.String("receipt_number", deleted.ReceiptNumber),
		zap.String("party_id", deleted.PartyID.String()),
		zap.String("advance_released", deleted.AdvanceUsed.StringFixed(2)),
	)
	return nil
}

// recharge puts back advance consumption released for a deletion that failed
func (s *PaymentService) recharge(ctx context.Context, store ledger.Store, p *ledger.Payment, uses []ledger.AdvanceUse) {
	if len(uses) == 0 {
		return
	}
	s.compensate(ctx, "recharge_advance", p.ReceiptNumber, func() error {
		_, err := ledger.MarkAdvanceConsumed(ctx, p.ID, uses, store.Payments())
		return err
	})
}

// RefundAdvance returns a payment's unconsumed advance to the party. The
// payment is never drawn from again. A zero at means now.
func (s *PaymentService) RefundAdvance(ctx context.Context, id uuid.UUID, at time.Time) (*ledger.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "refund_advance")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, id.String())

	var refunded *ledger.Payment
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationRefundAdvance, ""), func(c context.Context) {
		refunded, operationErr = s.refundAdvance(c, id, at)
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
		return nil, operationErr
	}
	return refunded, nil
}

func (s *PaymentService) refundAdvance(ctx context.Context, id uuid.UUID, at time.Time) (*ledger.Payment, error) {
	if at.IsZero() {
		at = s.clock()
	}
	existing, err := findPayment(ctx, s.store.Payments(), id)
	if err != nil {
		return nil, err
	}
	release, err := s.locker.Lock(ctx, existing.PartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock party %s: %w", existing.PartyID, err)
	}
	defer release()

	var refunded *ledger.Payment
	err = s.txm.WithinTransaction(ctx, func(ctx context.Context, store ledger.Store) error {
		p, err := ledger.RefundAdvance(ctx, id, at, store.Payments())
		if err != nil {
			return err
		}
		refunded = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	amount := refunded.RemainingAmount.Sub(refunded.AdvanceConsumed)
	s.metrics.RecordAdvanceRefunded(ctx, string(refunded.BillType), amount)
	s.publish(ctx, refunded)
	logger.Enrich(ctx, s.logger).Info("Advance refunded",
		zap.String("payment_id", refunded.ID.String()),
		zap.String("receipt_number", refunded.ReceiptNumber),
		zap.String("amount", amount.StringFixed(2)),
	)
	return refunded, nil
}

// ApplyAdvance draws the party's available advance of cmd.BillType onto its
// outstanding bills oldest first and records the adjustment voucher. It
// returns nil when there is no advance or nothing outstanding.
func (s *PaymentService) ApplyAdvance(ctx context.Context, cmd ApplyAdvanceCommand) (*ledger.Payment, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "apply_advance")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPartyID, cmd.PartyID.String(),
		telemetry.SpanAttrBillType, string(cmd.BillType),
	)

	var adjustment *ledger.Payment
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationApplyAdvance, string(cmd.BillType)), func(c context.Context) {
		adjustment, operationErr = s.applyAdvance(c, cmd)
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
		return nil, operationErr
	}
	if adjustment != nil {
		telemetry.SetAttributes(span,
			telemetry.SpanAttrPaymentID, adjustment.ID.String(),
			telemetry.SpanAttrAdvanceUsed, adjustment.AdvanceUsed.String(),
		)
	}
	return adjustment, nil
}

func (s *PaymentService) applyAdvance(ctx context.Context, cmd ApplyAdvanceCommand) (*ledger.Payment, error) {
	if cmd.PartyID == uuid.Nil {
		return nil, shared.NewValidationError("party ID is required")
	}
	if !cmd.BillType.IsValid() {
		return nil, shared.NewValidationError("unknown bill type %q", cmd.BillType)
	}
	if cmd.Date.IsZero() {
		cmd.Date = s.clock()
	}

	release, err := s.locker.Lock(ctx, cmd.PartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock party %s: %w", cmd.PartyID, err)
	}
	defer release()

	var adjustment *ledger.Payment
	var sources []*ledger.Payment
	err = s.retryReceipt(ctx, true, func() error {
		return s.txm.WithinTransaction(ctx, func(ctx context.Context, store ledger.Store) error {
			state, err := loadPartyLedger(ctx, store, cmd.PartyID, cmd.BillType)
			if err != nil {
				return err
			}
			receipt, err := s.nextReceipt(ctx, store.Payments(), cmd.BillType, cmd.Date, false)
			if err != nil {
				return err
			}
			p, err := s.planner.PlanAdjustment(cmd.PartyID, cmd.BillType, cmd.Date, receipt, state)
			if err != nil || p == nil {
				return err
			}
			// Reserve only once there is something to record
			if p.ReceiptNumber, err = s.nextReceipt(ctx, store.Payments(), cmd.BillType, cmd.Date, true); err != nil {
				return err
			}
			p.AddDomainEvent(ledger.NewPaymentRecordedEvent(p))

			sources, err = s.commit(ctx, store, p)
			if err != nil {
				return err
			}
			adjustment = p
			return nil
		})
	})
	if err != nil || adjustment == nil {
		return nil, err
	}

	s.metrics.RecordAdvanceConsumed(ctx, string(adjustment.BillType), adjustment.AdvanceUsed)
	s.publish(ctx, append([]*ledger.Payment{adjustment}, sources...)...)
	logger.Enrich(ctx, s.logger).Info("Advance applied",
		zap.String("payment_id", adjustment.ID.String()),
		zap.String("receipt_number", adjustment.ReceiptNumber),
		zap.String("party_id", adjustment.PartyID.String()),
		zap.String("advance_used", adjustment.AdvanceUsed.StringFixed(2)),
		zap.Int("allocations", len(adjustment.Allocations)),
	)
	return adjustment, nil
}
