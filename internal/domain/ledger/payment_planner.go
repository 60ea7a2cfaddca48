package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/domain/shared/strategy"
	"github.com/ledgerbook/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PaymentRequest is an incoming bill or khata payment
type PaymentRequest struct {
	PartyID       uuid.UUID
	PaymentType   PaymentType
	BillType      BillType
	TargetBillID  *uuid.UUID
	Amount        decimal.Decimal
	Date          time.Time
	Mode          PaymentMethod
	Reference     string
	Notes         string
	ReceiptNumber string
}

// PartyLedger is a snapshot of one party's bills and payments.
// It must be read fresh inside the party's critical section before planning.
type PartyLedger struct {
	PartyID  uuid.UUID
	Bills    []*Bill
	Payments []*Payment
}

// PaymentPlanner decides the full allocation of a payment without touching
// the store
type PaymentPlanner struct {
	allocator *FIFOAllocator
	advance   *AdvanceSelector
}

// NewPaymentPlanner creates a planner using the given allocator and the
// oldest-first advance selector
func NewPaymentPlanner(allocator *FIFOAllocator) *PaymentPlanner {
	if allocator == nil {
		allocator = NewFIFOAllocator()
	}
	return &PaymentPlanner{allocator: allocator, advance: defaultAdvanceSelector}
}

// Strategies returns the strategies the planner runs, allocation first
func (pl *PaymentPlanner) Strategies() []strategy.Strategy {
	return []strategy.Strategy{pl.allocator, pl.advance}
}

// Plan builds the payment for req against the party's current state.
//
// Available advance is drawn first against the target need (the target
// bill's outstanding for bill payments, the party's total outstanding for
// khata payments). The new amount then pays what is left of the need; bill
// payments spill any excess FIFO over the party's other bills. Whatever is
// still unallocated becomes the payment's own advance.
//
// The returned payment lists the advance it draws but the sources are not
// yet charged; see MarkAdvanceConsumed.
func (pl *PaymentPlanner) Plan(req PaymentRequest, state PartyLedger) (*Payment, error) {
	if req.PaymentType == PaymentTypeAdjustment {
		return nil, shared.NewValidationError("adjustment payments are created by applying advance")
	}
	p, err := NewPayment(PaymentHeader{
		PartyID:       req.PartyID,
		PaymentType:   req.PaymentType,
		BillType:      req.BillType,
		TargetBillID:  req.TargetBillID,
		TotalAmount:   req.Amount,
		Date:          req.Date,
		Mode:          req.Mode,
		Reference:     req.Reference,
		Notes:         req.Notes,
		ReceiptNumber: req.ReceiptNumber,
	})
	if err != nil {
		return nil, err
	}
	if err := checkReceiptNamespace(p.ReceiptNumber, p.BillType); err != nil {
		return nil, err
	}

	open := OutstandingBills(filterBills(state.Bills, req.PartyID, req.BillType), state.Payments)

	var target *OutstandingBill
	targetNeed := decimal.Zero
	if req.PaymentType == PaymentTypeBill {
		target = findOutstanding(open, *req.TargetBillID)
		if target == nil {
			return nil, shared.NewNotFoundError("bill", *req.TargetBillID)
		}
		targetNeed = target.Outstanding
	} else {
		for _, ob := range open {
			targetNeed = targetNeed.Add(ob.Outstanding)
		}
	}

	// Advance first
	adv := pl.advance.Select(req.PartyID, req.BillType, targetNeed, state.Payments)
	if adv.AllocatedAmount.IsPositive() {
		var advAllocs []Allocation
		if target != nil {
			advAllocs = []Allocation{newAllocation(target, adv.AllocatedAmount, true)}
		} else {
			res, err := pl.allocator.Allocate(req.PartyID, valueobject.NewMoneyINR(adv.AllocatedAmount), req.BillType, open)
			if err != nil {
				return nil, upgradeAllocatorError(err)
			}
			advAllocs = markFromAdvance(res.Allocations)
		}
		p.Allocations = append(p.Allocations, advAllocs...)
		open = reduceOutstanding(open, advAllocs)
		p.AdvanceAllocations = adv.AdvanceAllocations
		p.AdvanceUsed = adv.AllocatedAmount
	}

	// Then the new amount
	direct := decimal.Zero
	remaining := req.Amount
	if target != nil {
		target = findOutstanding(open, target.Bill.ID)
		direct = decimal.Min(req.Amount, target.Outstanding)
		if direct.IsPositive() {
			alloc := newAllocation(target, direct, false)
			p.Allocations = append(p.Allocations, alloc)
			open = reduceOutstanding(open, []Allocation{alloc})
		}
		remaining = req.Amount.Sub(direct)
		if remaining.IsPositive() {
			res, err := pl.allocator.Allocate(req.PartyID, valueobject.NewMoneyINR(remaining), req.BillType, excludeBill(open, target.Bill.ID))
			if err != nil {
				return nil, upgradeAllocatorError(err)
			}
			p.Allocations = append(p.Allocations, res.Allocations...)
			remaining = res.RemainingAmount
		}
	} else {
		res, err := pl.allocator.Allocate(req.PartyID, valueobject.NewMoneyINR(req.Amount), req.BillType, open)
		if err != nil {
			return nil, upgradeAllocatorError(err)
		}
		p.Allocations = append(p.Allocations, res.Allocations...)
		remaining = res.RemainingAmount
	}

	p.RemainingAmount = remaining
	p.FIFOAllocationUsed = req.Amount.Sub(remaining).Sub(direct)

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// PlanAdjustment builds a zero-amount adjustment payment that applies the
// party's available advance FIFO to its outstanding bills. It returns nil
// when there is no advance or nothing outstanding.
func (pl *PaymentPlanner) PlanAdjustment(partyID uuid.UUID, billType BillType, date time.Time, receiptNumber string, state PartyLedger) (*Payment, error) {
	p, err := NewPayment(PaymentHeader{
		PartyID:       partyID,
		PaymentType:   PaymentTypeAdjustment,
		BillType:      billType,
		TotalAmount:   decimal.Zero,
		Date:          date,
		Mode:          PaymentMethodOther,
		Notes:         "Advance adjustment",
		ReceiptNumber: receiptNumber,
	})
	if err != nil {
		return nil, err
	}

	open := OutstandingBills(filterBills(state.Bills, partyID, billType), state.Payments)
	need := decimal.Zero
	for _, ob := range open {
		need = need.Add(ob.Outstanding)
	}

	adv := pl.advance.Select(partyID, billType, need, state.Payments)
	if !adv.AllocatedAmount.IsPositive() {
		return nil, nil
	}
	res, err := pl.allocator.Allocate(partyID, valueobject.NewMoneyINR(adv.AllocatedAmount), billType, open)
	if err != nil {
		return nil, upgradeAllocatorError(err)
	}

	p.Allocations = markFromAdvance(res.Allocations)
	p.AdvanceAllocations = adv.AdvanceAllocations
	p.AdvanceUsed = adv.AllocatedAmount
	p.RemainingAmount = decimal.Zero

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// checkReceiptNamespace rejects structured receipt numbers that belong to
// another bill type. Free-form receipt numbers are accepted as is.
func checkReceiptNamespace(receiptNumber string, billType BillType) error {
	rn, err := ParseReceiptNumber(receiptNumber)
	if err != nil {
		return nil
	}
	if rn.BillType != billType {
		return shared.NewValidationError("receipt number %s belongs to %s payments, not %s", receiptNumber, rn.BillType, billType)
	}
	return nil
}

// upgradeAllocatorError turns a recoverable allocator error into a hard
// validation failure: a payment may not silently allocate nothing.
func upgradeAllocatorError(err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) && de.Code == shared.CodeInvalidInput {
		return shared.NewValidationError("%s", de.Message)
	}
	return err
}

func newAllocation(ob *OutstandingBill, amount decimal.Decimal, fromAdvance bool) Allocation {
	return Allocation{
		BillType:                    ob.Bill.BillType,
		BillID:                      ob.Bill.ID,
		BillNumber:                  ob.Bill.Number,
		AllocatedAmount:             amount,
		BillOutstandingAtAllocation: ob.Outstanding,
		IsFullPayment:               amount.GreaterThanOrEqual(ob.Outstanding),
		FromAdvance:                 fromAdvance,
	}
}

func filterBills(bills []*Bill, partyID uuid.UUID, billType BillType) []*Bill {
	out := make([]*Bill, 0, len(bills))
	for _, b := range bills {
		if b.PartyID == partyID && b.BillType == billType {
			out = append(out, b)
		}
	}
	return out
}

func findOutstanding(open []OutstandingBill, billID uuid.UUID) *OutstandingBill {
	for i := range open {
		if open[i].Bill.ID == billID {
			return &open[i]
		}
	}
	return nil
}

func excludeBill(open []OutstandingBill, billID uuid.UUID) []OutstandingBill {
	out := make([]OutstandingBill, 0, len(open))
	for _, ob := range open {
		if ob.Bill.ID != billID {
			out = append(out, ob)
		}
	}
	return out
}

// reduceOutstanding returns a copy of open with allocs subtracted
func reduceOutstanding(open []OutstandingBill, allocs []Allocation) []OutstandingBill {
	out := make([]OutstandingBill, len(open))
	copy(out, open)
	for _, a := range allocs {
		for i := range out {
			if out[i].Bill.ID == a.BillID {
				out[i].Outstanding = out[i].Outstanding.Sub(a.AllocatedAmount)
				if out[i].Outstanding.IsNegative() {
					out[i].Outstanding = decimal.Zero
				}
			}
		}
	}
	return out
}
