package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/domain/shared/strategy"
	"github.com/shopspring/decimal"
)

// AdvanceAllocationResult is the outcome of drawing advance for a need
type AdvanceAllocationResult struct {
	AllocatedAmount    decimal.Decimal `json:"allocated_amount"`
	AdvanceAllocations []AdvanceUse    `json:"advance_allocations"`
	Shortfall          decimal.Decimal `json:"shortfall"`
}

// GetAvailableAdvance sums the unconsumed, unrefunded remainders of the
// party's payments. An empty billType counts advance of every type.
func GetAvailableAdvance(partyID uuid.UUID, billType BillType, payments []*Payment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range advanceSources(partyID, billType, payments) {
		total = total.Add(p.AvailableAdvance())
	}
	return total
}

// AdvanceSelector picks which advance sources fund a need: oldest payment
// first, equal dates in id order.
type AdvanceSelector struct {
	strategy.BaseStrategy
}

// NewAdvanceSelector creates the oldest-first advance selector
func NewAdvanceSelector() *AdvanceSelector {
	return &AdvanceSelector{
		BaseStrategy: strategy.NewBaseStrategy(
			"oldest_advance_first",
			strategy.StrategyTypeAdvance,
			"Oldest advance first - draws from the earliest unconsumed payment remainders",
		),
	}
}

var defaultAdvanceSelector = NewAdvanceSelector()

// AllocateAdvance draws up to amountNeeded from the party's advance sources
// with the default selector
func AllocateAdvance(partyID uuid.UUID, billType BillType, amountNeeded decimal.Decimal, payments []*Payment) AdvanceAllocationResult {
	return defaultAdvanceSelector.Select(partyID, billType, amountNeeded, payments)
}

// Select draws up to amountNeeded from the party's advance sources
func (s *AdvanceSelector) Select(partyID uuid.UUID, billType BillType, amountNeeded decimal.Decimal, payments []*Payment) AdvanceAllocationResult {
	result := AdvanceAllocationResult{
		AllocatedAmount:    decimal.Zero,
		AdvanceAllocations: make([]AdvanceUse, 0),
		Shortfall:          decimal.Zero,
	}
	if !amountNeeded.IsPositive() {
		return result
	}

	remaining := amountNeeded
	for _, src := range advanceSources(partyID, billType, payments) {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(remaining, src.AvailableAdvance())
		result.AdvanceAllocations = append(result.AdvanceAllocations, AdvanceUse{
			PaymentID:  src.ID,
			AmountUsed: take,
		})
		result.AllocatedAmount = result.AllocatedAmount.Add(take)
		remaining = remaining.Sub(take)
	}
	result.Shortfall = remaining
	return result
}

// advanceSources returns the payments able to lend advance, in draw order
func advanceSources(partyID uuid.UUID, billType BillType, payments []*Payment) []*Payment {
	sources := make([]*Payment, 0)
	for _, p := range payments {
		if p.PartyID != partyID {
			continue
		}
		if billType != "" && p.BillType != billType {
			continue
		}
		if p.IsAdvanceSource() {
			sources = append(sources, p)
		}
	}
	sort.SliceStable(sources, func(i, j int) bool {
		if !sources[i].Date.Equal(sources[j].Date) {
			return sources[i].Date.Before(sources[j].Date)
		}
		return sources[i].ID.String() < sources[j].ID.String()
	})
	return sources
}

// MarkAdvanceConsumed charges each drawn amount to its source payment and
// persists the new advance state. It returns the updated sources.
func MarkAdvanceConsumed(ctx context.Context, consumerID uuid.UUID, uses []AdvanceUse, repo PaymentRepository) ([]*Payment, error) {
	updated := make([]*Payment, 0, len(uses))
	for _, u := range uses {
		src, err := loadPayment(ctx, repo, u.PaymentID)
		if err != nil {
			return updated, err
		}
		if err := src.ConsumeAdvance(consumerID, u.AmountUsed); err != nil {
			return updated, err
		}
		if err := repo.UpdateAdvance(ctx, src.ID, src.AdvancePatch()); err != nil {
			return updated, fmt.Errorf("failed to update advance of payment %s: %w", src.ID, err)
		}
		updated = append(updated, src)
	}
	return updated, nil
}

// ReverseAdvanceConsumption credits drawn amounts back to their sources.
// It undoes MarkAdvanceConsumed and is used when a consuming payment is
// deleted or its save fails.
func ReverseAdvanceConsumption(ctx context.Context, uses []AdvanceUse, repo PaymentRepository) ([]*Payment, error) {
	updated := make([]*Payment, 0, len(uses))
	for _, u := range uses {
		src, err := loadPayment(ctx, repo, u.PaymentID)
		if err != nil {
			return updated, err
		}
		if err := src.ReleaseAdvance(u.AmountUsed); err != nil {
			return updated, err
		}
		if err := repo.UpdateAdvance(ctx, src.ID, src.AdvancePatch()); err != nil {
			return updated, fmt.Errorf("failed to release advance of payment %s: %w", src.ID, err)
		}
		updated = append(updated, src)
	}
	return updated, nil
}

// RefundAdvance marks the payment's remaining advance as refunded. A refunded
// payment is never selected as an advance source again.
func RefundAdvance(ctx context.Context, paymentID uuid.UUID, at time.Time, repo PaymentRepository) (*Payment, error) {
	p, err := loadPayment(ctx, repo, paymentID)
	if err != nil {
		return nil, err
	}
	if err := p.MarkRefunded(at); err != nil {
		return nil, err
	}
	if err := repo.UpdateAdvance(ctx, p.ID, p.AdvancePatch()); err != nil {
		return nil, fmt.Errorf("failed to refund advance of payment %s: %w", p.ID, err)
	}
	return p, nil
}

func loadPayment(ctx context.Context, repo PaymentRepository, id uuid.UUID) (*Payment, error) {
	p, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load payment %s: %w", id, err)
	}
	if p == nil {
		return nil, shared.NewNotFoundError("payment", id)
	}
	return p, nil
}
