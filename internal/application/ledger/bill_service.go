package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// advanceApplier applies available advance to outstanding bills.
// PaymentService implements it.
type advanceApplier interface {
	ApplyAdvance(ctx context.Context, cmd ApplyAdvanceCommand) (*ledger.Payment, error)
}

// BillService manages parties and bills
type BillService struct {
	store     ledger.Store
	advances  advanceApplier
	logger    *zap.Logger
	autoApply bool
}

// NewBillService creates a new BillService. advances may be nil, which
// turns off automatic advance application.
func NewBillService(store ledger.Store, advances advanceApplier, logger *zap.Logger, opts ...Option) *BillService {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := applyOptions(opts)
	return &BillService{
		store:     store,
		advances:  advances,
		logger:    logger.Named("bill_service"),
		autoApply: o.autoApply && advances != nil,
	}
}

// CreateParty creates a party
func (s *BillService) CreateParty(ctx context.Context, cmd CreatePartyCommand) (*ledger.Party, error) {
	party, err := ledger.NewParty(cmd.Name, cmd.Kind, cmd.OpeningBalance)
	if err != nil {
		return nil, err
	}
	party.Phone = strings.TrimSpace(cmd.Phone)
	if err := s.store.Parties().Save(ctx, party); err != nil {
		return nil, fmt.Errorf("failed to save party: %w", err)
	}
	logger.Enrich(ctx, s.logger).Info("Party created",
		zap.String("party_id", party.ID.String()),
		zap.String("kind", string(party.Kind)),
	)
	return party, nil
}

// GetParty returns a party by id
func (s *BillService) GetParty(ctx context.Context, id uuid.UUID) (*ledger.Party, error) {
	party, err := s.store.Parties().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load party: %w", err)
	}
	if party == nil {
		return nil, shared.NewNotFoundError("party", id)
	}
	return party, nil
}

// ListParties returns every party ordered by name
func (s *BillService) ListParties(ctx context.Context) ([]*ledger.Party, error) {
	parties, err := s.store.Parties().FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list parties: %w", err)
	}
	return parties, nil
}

// RecordBill saves a bill and, when enabled, applies the party's available
// advance of the same bill type. The bill stays saved if applying advance
// fails; the error is returned together with the result.
func (s *BillService) RecordBill(ctx context.Context, cmd RecordBillCommand) (*RecordBillResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "bill", "record_bill")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrPartyID, cmd.PartyID.String(),
		telemetry.SpanAttrBillType, string(cmd.BillType),
		telemetry.SpanAttrAmount, cmd.Amount.String(),
	)

	var result *RecordBillResult
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationRecordBill, string(cmd.BillType)), func(c context.Context) {
		result, operationErr = s.recordBill(c, cmd)
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
	}
	if result != nil {
		telemetry.SetAttributes(span, telemetry.SpanAttrBillID, result.Bill.ID.String())
	}
	return result, operationErr
}

func (s *BillService) recordBill(ctx context.Context, cmd RecordBillCommand) (*RecordBillResult, error) {
	bill, err := ledger.NewBill(cmd.PartyID, cmd.BillType, cmd.Number, cmd.Date, cmd.Amount)
	if err != nil {
		return nil, err
	}
	if cmd.DueDate != nil {
		if err := bill.SetDueDate(*cmd.DueDate); err != nil {
			return nil, err
		}
	}
	bill.Notes = cmd.Notes

	party, err := s.store.Parties().FindByID(ctx, cmd.PartyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load party: %w", err)
	}
	if party == nil {
		return nil, shared.NewValidationError("party %s does not exist", cmd.PartyID)
	}
	exists, err := s.store.Bills().ExistsByNumber(ctx, bill.PartyID, bill.BillType, bill.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to check bill number: %w", err)
	}
	if exists {
		return nil, shared.NewDomainError(shared.CodeAlreadyExists,
			fmt.Sprintf("%s %s already exists for this party", bill.BillType, bill.Number))
	}
	if err := s.store.Bills().Save(ctx, bill); err != nil {
		return nil, fmt.Errorf("failed to save bill: %w", err)
	}

	logger.Enrich(ctx, s.logger).Info("Bill recorded",
		zap.String("bill_id", bill.ID.String()),
		zap.String("party_id", bill.PartyID.String()),
		zap.String("bill_type", string(bill.BillType)),
		zap.String("number", bill.Number),
		zap.String("total_amount", bill.TotalAmount.StringFixed(2)),
	)

	result := &RecordBillResult{Bill: bill}
	if !s.autoApply {
		return result, nil
	}
	adjustment, err := s.advances.ApplyAdvance(ctx, ApplyAdvanceCommand{
		PartyID:  bill.PartyID,
		BillType: bill.BillType,
		Date:     bill.Date,
	})
	if err != nil {
		return result, fmt.Errorf("bill %s saved but applying advance failed: %w", bill.Number, err)
	}
	result.Adjustment = adjustment
	return result, nil
}

// GetBill returns a bill by id
func (s *BillService) GetBill(ctx context.Context, id uuid.UUID) (*ledger.Bill, error) {
	bill, err := s.store.Bills().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load bill: %w", err)
	}
	if bill == nil {
		return nil, shared.NewNotFoundError("bill", id)
	}
	return bill, nil
}

// BillOutstanding returns a bill's paid and outstanding amounts
func (s *BillService) BillOutstanding(ctx context.Context, id uuid.UUID) (ledger.BillBalance, error) {
	bill, err := s.GetBill(ctx, id)
	if err != nil {
		return ledger.BillBalance{}, err
	}
	payments, err := s.store.Payments().FindByParty(ctx, bill.PartyID)
	if err != nil {
		return ledger.BillBalance{}, fmt.Errorf("failed to load payments: %w", err)
	}
	return ledger.ComputeOutstanding(bill, payments), nil
}

// ListOutstanding returns the party's bills of billType with a positive
// outstanding, oldest first. An empty billType covers every type.
func (s *BillService) ListOutstanding(ctx context.Context, partyID uuid.UUID, billType ledger.BillType) ([]ledger.BillBalance, error) {
	bills, err := s.store.Bills().FindByParty(ctx, partyID, billType)
	if err != nil {
		return nil, fmt.Errorf("failed to load bills: %w", err)
	}
	payments, err := s.store.Payments().FindByParty(ctx, partyID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	out := make([]ledger.BillBalance, 0, len(bills))
	for _, bal := range ledger.ComputeBalances(bills, payments) {
		if bal.Outstanding.IsPositive() {
			out = append(out, bal)
		}
	}
	return out, nil
}
