package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// ReportService builds reconciliation reports from the store. Reports read
// without the party lock and may lag an in-flight payment.
type ReportService struct {
	store  ledger.Store
	logger *zap.Logger
	clock  func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(store ledger.Store, logger *zap.Logger, opts ...Option) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := applyOptions(opts)
	return &ReportService{store: store, logger: logger.Named("report_service"), clock: o.clock}
}

// SummarizeByParty totals bills, payments and outstanding per party for one
// bill type. A zero asOf means today.
func (s *ReportService) SummarizeByParty(ctx context.Context, billType ledger.BillType, asOf time.Time) ([]ledger.PartySummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "summarize_by_party")
	defer span.End()

	var rows []ledger.PartySummary
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationReport, string(billType)), func(c context.Context) {
		bills, payments, err := s.loadType(c, billType)
		if err != nil {
			operationErr = err
			return
		}
		rows = ledger.SummarizeByParty(billType, bills, payments, s.asOf(asOf))
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
		return nil, operationErr
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrBillType, string(billType), "parties", len(rows))
	return rows, nil
}

// Aging buckets outstanding per party by bill age. A zero asOf means today.
func (s *ReportService) Aging(ctx context.Context, billType ledger.BillType, asOf time.Time) ([]ledger.AgingRow, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "report", "aging")
	defer span.End()

	var rows []ledger.AgingRow
	var operationErr error
	telemetry.WithProfilingLabels(ctx, telemetry.LedgerOperationLabels(operationReport, string(billType)), func(c context.Context) {
		bills, payments, err := s.loadType(c, billType)
		if err != nil {
			operationErr = err
			return
		}
		rows = ledger.AgingReport(billType, bills, payments, s.asOf(asOf))
	})
	if operationErr != nil {
		telemetry.RecordError(span, operationErr)
		return nil, operationErr
	}
	return rows, nil
}

// PartyPosition returns the party's net standing across all bill types
func (s *ReportService) PartyPosition(ctx context.Context, partyID uuid.UUID) (ledger.PartyPosition, error) {
	party, err := s.store.Parties().FindByID(ctx, partyID)
	if err != nil {
		return ledger.PartyPosition{}, fmt.Errorf("failed to load party: %w", err)
	}
	if party == nil {
		return ledger.PartyPosition{}, shared.NewNotFoundError("party", partyID)
	}
	bills, err := s.store.Bills().FindByParty(ctx, partyID, "")
	if err != nil {
		return ledger.PartyPosition{}, fmt.Errorf("failed to load bills: %w", err)
	}
	payments, err := s.store.Payments().FindByParty(ctx, partyID)
	if err != nil {
		return ledger.PartyPosition{}, fmt.Errorf("failed to load payments: %w", err)
	}
	return ledger.ComputePartyPosition(party, bills, payments), nil
}

func (s *ReportService) loadType(ctx context.Context, billType ledger.BillType) ([]*ledger.Bill, []*ledger.Payment, error) {
	if !billType.IsValid() {
		return nil, nil, shared.NewValidationError("unknown bill type %q", billType)
	}
	bills, err := s.store.Bills().FindByType(ctx, billType)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load bills: %w", err)
	}
	payments, err := s.store.Payments().FindByBillType(ctx, billType)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payments: %w", err)
	}
	return bills, payments, nil
}

func (s *ReportService) asOf(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock()
	}
	return t
}
