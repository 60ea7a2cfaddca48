// Package memory is an in-process ledger store. Every read returns a copy,
// so callers only change stored state through the repository methods.
//
// The store is not atomic: a failed unit of work keeps the writes it made
// before failing, and callers compensate.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
)

// Store holds parties, bills and payments in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	parties  map[uuid.UUID]ledger.Party
	bills    map[uuid.UUID]ledger.Bill
	payments map[uuid.UUID]*ledger.Payment
}

// New creates an empty store.
func New() *Store {
	return &Store{
		parties:  make(map[uuid.UUID]ledger.Party),
		bills:    make(map[uuid.UUID]ledger.Bill),
		payments: make(map[uuid.UUID]*ledger.Payment),
	}
}

func (s *Store) Parties() ledger.PartyRepository   { return partyRepo{s} }
func (s *Store) Bills() ledger.BillRepository       { return billRepo{s} }
func (s *Store) Payments() ledger.PaymentRepository { return paymentRepo{s} }

// WithinTransaction runs fn directly against the store.
func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context, store ledger.Store) error) error {
	return fn(ctx, s)
}

// Atomic is false; see the package doc.
func (s *Store) Atomic() bool { return false }

var (
	_ ledger.Store              = (*Store)(nil)
	_ ledger.TransactionManager = (*Store)(nil)
)

func clonePayment(p *ledger.Payment) *ledger.Payment {
	cp := *p
	cp.ClearDomainEvents()
	cp.Allocations = slices.Clone(p.Allocations)
	cp.AdvanceAllocations = slices.Clone(p.AdvanceAllocations)
	if p.TargetBillID != nil {
		id := *p.TargetBillID
		cp.TargetBillID = &id
	}
	if p.RefundedAt != nil {
		at := *p.RefundedAt
		cp.RefundedAt = &at
	}
	return &cp
}

type partyRepo struct{ s *Store }

func (r partyRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Party, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.parties[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r partyRepo) FindAll(_ context.Context) ([]*ledger.Party, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*ledger.Party, 0, len(r.s.parties))
	for _, p := range r.s.parties {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out, nil
}

func (r partyRepo) Save(_ context.Context, party *ledger.Party) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.parties[party.ID] = *party
	return nil
}

type billRepo struct{ s *Store }

func (r billRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Bill, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bills[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r billRepo) FindByParty(_ context.Context, partyID uuid.UUID, billType ledger.BillType) ([]*ledger.Bill, error) {
	return r.filter(func(b *ledger.Bill) bool {
		return b.PartyID == partyID && (billType == "" || b.BillType == billType)
	}), nil
}

func (r billRepo) FindByType(_ context.Context, billType ledger.BillType) ([]*ledger.Bill, error) {
	return r.filter(func(b *ledger.Bill) bool { return b.BillType == billType }), nil
}

func (r billRepo) filter(keep func(*ledger.Bill) bool) []*ledger.Bill {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*ledger.Bill, 0)
	for _, b := range r.s.bills {
		b := b
		if keep(&b) {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func (r billRepo) ExistsByNumber(_ context.Context, partyID uuid.UUID, billType ledger.BillType, number string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.billNumberTaken(uuid.Nil, partyID, billType, number), nil
}

func (s *Store) billNumberTaken(self, partyID uuid.UUID, billType ledger.BillType, number string) bool {
	for id, b := range s.bills {
		if id != self && b.PartyID == partyID && b.BillType == billType && b.Number == number {
			return true
		}
	}
	return false
}

func (r billRepo) Save(_ context.Context, bill *ledger.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.billNumberTaken(bill.ID, bill.PartyID, bill.BillType, bill.Number) {
		return shared.NewDomainError(shared.CodeAlreadyExists, "bill number "+bill.Number+" already exists for this party")
	}
	r.s.bills[bill.ID] = *bill
	return nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) FindByID(_ context.Context, id uuid.UUID) (*ledger.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	return clonePayment(p), nil
}

func (r paymentRepo) FindByParty(_ context.Context, partyID uuid.UUID) ([]*ledger.Payment, error) {
	return r.filter(func(p *ledger.Payment) bool { return p.PartyID == partyID }), nil
}

func (r paymentRepo) FindByBillType(_ context.Context, billType ledger.BillType) ([]*ledger.Payment, error) {
	return r.filter(func(p *ledger.Payment) bool { return p.BillType == billType }), nil
}

// filter returns matching payments oldest first
func (r paymentRepo) filter(keep func(*ledger.Payment) bool) []*ledger.Payment {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]*ledger.Payment, 0)
	for _, p := range r.s.payments {
		if keep(p) {
			out = append(out, clonePayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r paymentRepo) ListByParty(ctx context.Context, partyID uuid.UUID, filter shared.Filter) ([]*ledger.Payment, int64, error) {
	all, _ := r.FindByParty(ctx, partyID)
	slices.Reverse(all)
	total := int64(len(all))
	start := min(filter.Offset(), len(all))
	end := len(all)
	if filter.PageSize > 0 {
		end = min(start+filter.PageSize, len(all))
	}
	return all[start:end], total, nil
}

func (r paymentRepo) ExistsByReceiptNumber(_ context.Context, receiptNumber string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, p := range r.s.payments {
		if p.ReceiptNumber == receiptNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r paymentRepo) MaxReceiptSequence(_ context.Context, prefix string) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	highest := 0
	for _, p := range r.s.payments {
		if !strings.HasPrefix(p.ReceiptNumber, prefix) {
			continue
		}
		if rn, err := ledger.ParseReceiptNumber(p.ReceiptNumber); err == nil && rn.Sequence > highest {
			highest = rn.Sequence
		}
	}
	return highest, nil
}

func (r paymentRepo) Save(_ context.Context, payment *ledger.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[payment.ID]; ok {
		return shared.NewDomainError(shared.CodeAlreadyExists, "payment "+payment.ID.String()+" already exists")
	}
	for _, p := range r.s.payments {
		if p.ReceiptNumber == payment.ReceiptNumber {
			return shared.NewDomainError(shared.CodeAlreadyExists, "receipt number "+payment.ReceiptNumber+" already exists")
		}
	}
	r.s.payments[payment.ID] = clonePayment(payment)
	return nil
}

func (r paymentRepo) UpdateAdvance(_ context.Context, id uuid.UUID, patch ledger.AdvancePatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return shared.NewNotFoundError("payment", id)
	}
	if patch.Version != p.Version+1 {
		return shared.NewDomainError(shared.CodeConcurrencyConflict, "payment "+p.ReceiptNumber+" was modified concurrently")
	}
	p.AdvanceConsumed = patch.AdvanceConsumed
	p.AdvanceFullyUsed = patch.AdvanceFullyUsed
	p.AdvanceRefunded = patch.AdvanceRefunded
	p.RefundedAt = patch.RefundedAt
	p.Version = patch.Version
	return nil
}

func (r paymentRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[id]; !ok {
		return shared.NewNotFoundError("payment", id)
	}
	delete(r.s.payments, id)
	return nil
}
