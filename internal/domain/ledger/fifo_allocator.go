package ledger

import (
	"sort"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/domain/shared/strategy"
	"github.com/ledgerbook/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// OutstandingBill is an allocation target: a bill and what is still owed on it
type OutstandingBill struct {
	Bill        *Bill
	Outstanding decimal.Decimal
}

// FIFOResult is the outcome of a FIFO allocation
type FIFOResult struct {
	Allocations     []Allocation    `json:"allocations"`
	TotalAllocated  decimal.Decimal `json:"total_allocated"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
}

// FullyAllocated returns true if nothing was left over
func (r *FIFOResult) FullyAllocated() bool {
	return r.RemainingAmount.IsZero()
}

// FIFOAllocator pays a party's outstanding bills oldest first.
// Bills are ordered by date, then by number.
type FIFOAllocator struct {
	strategy.BaseStrategy
}

// NewFIFOAllocator creates a new FIFO allocator
func NewFIFOAllocator() *FIFOAllocator {
	return &FIFOAllocator{
		BaseStrategy: strategy.NewBaseStrategy(
			"fifo_bill_allocation",
			strategy.StrategyTypeAllocation,
			"FIFO allocation - pays oldest outstanding bills first by bill date, then bill number",
		),
	}
}

// Allocate spreads amount over the party's outstanding bills of billType.
//
// On invalid input it returns an empty result holding the whole amount as
// remaining together with an INVALID_INPUT error, so report callers can skip
// and continue.
func (a *FIFOAllocator) Allocate(partyID uuid.UUID, amount valueobject.Money, billType BillType, bills []OutstandingBill) (*FIFOResult, error) {
	if err := validateFIFOInput(partyID, amount.Amount(), billType); err != nil {
		return emptyFIFOResult(amount.Amount()), err
	}

	candidates := make([]OutstandingBill, 0, len(bills))
	for _, ob := range bills {
		if ob.Bill == nil || ob.Bill.PartyID != partyID || ob.Bill.BillType != billType {
			continue
		}
		if !ob.Outstanding.IsPositive() {
			continue
		}
		candidates = append(candidates, ob)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Bill.before(candidates[j].Bill)
	})

	allocations := make([]Allocation, 0, len(candidates))
	remaining := amount.Amount()
	totalAllocated := decimal.Zero

	for _, ob := range candidates {
		if !remaining.IsPositive() {
			break
		}
		alloc := decimal.Min(remaining, ob.Outstanding)

		allocations = append(allocations, Allocation{
			BillType:                    ob.Bill.BillType,
			BillID:                      ob.Bill.ID,
			BillNumber:                  ob.Bill.Number,
			AllocatedAmount:             alloc,
			BillOutstandingAtAllocation: ob.Outstanding,
			IsFullPayment:               alloc.GreaterThanOrEqual(ob.Outstanding),
		})

		totalAllocated = totalAllocated.Add(alloc)
		remaining = remaining.Sub(alloc)
	}

	return &FIFOResult{
		Allocations:     allocations,
		TotalAllocated:  totalAllocated,
		RemainingAmount: remaining,
	}, nil
}

var defaultFIFOAllocator = NewFIFOAllocator()

// AllocateFIFO runs the default FIFO allocator over a raw decimal amount
func AllocateFIFO(partyID uuid.UUID, amount decimal.Decimal, billType BillType, bills []OutstandingBill) (*FIFOResult, error) {
	return defaultFIFOAllocator.Allocate(partyID, valueobject.NewMoneyINR(amount), billType, bills)
}

func validateFIFOInput(partyID uuid.UUID, amount decimal.Decimal, billType BillType) error {
	if partyID == uuid.Nil {
		return shared.NewInvalidInputError("party ID is required for allocation")
	}
	if !amount.IsPositive() {
		return shared.NewInvalidInputError("allocation amount must be positive, got %s", amount)
	}
	if !billType.IsValid() {
		return shared.NewInvalidInputError("unknown bill type %q", billType)
	}
	return nil
}

func emptyFIFOResult(amount decimal.Decimal) *FIFOResult {
	remaining := amount
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return &FIFOResult{
		Allocations:     make([]Allocation, 0),
		TotalAllocated:  decimal.Zero,
		RemainingAmount: remaining,
	}
}

// markFromAdvance flags allocations as funded by drawn advance
func markFromAdvance(allocs []Allocation) []Allocation {
	for i := range allocs {
		allocs[i].FromAdvance = true
	}
	return allocs
}
