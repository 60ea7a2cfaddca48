package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
)

// PartyRepository defines persistence for parties.
// Find methods return nil, nil when the record does not exist.
type PartyRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Party, error)
	FindAll(ctx context.Context) ([]*Party, error)
	Save(ctx context.Context, party *Party) error
}

// BillRepository defines persistence for bills
type BillRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// FindByParty returns the party's bills; an empty billType returns every type
	FindByParty(ctx context.Context, partyID uuid.UUID, billType BillType) ([]*Bill, error)
	FindByType(ctx context.Context, billType BillType) ([]*Bill, error)
	ExistsByNumber(ctx context.Context, partyID uuid.UUID, billType BillType, number string) (bool, error)
	Save(ctx context.Context, bill *Bill) error
}

// PaymentRepository defines persistence for payments and their allocations
type PaymentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	FindByParty(ctx context.Context, partyID uuid.UUID) ([]*Payment, error)
	FindByBillType(ctx context.Context, billType BillType) ([]*Payment, error)
	ListByParty(ctx context.Context, partyID uuid.UUID, filter shared.Filter) ([]*Payment, int64, error)
	ExistsByReceiptNumber(ctx context.Context, receiptNumber string) (bool, error)
	// MaxReceiptSequence returns the highest sequence among receipt numbers
	// starting with prefix, or 0 when there are none
	MaxReceiptSequence(ctx context.Context, prefix string) (int, error)
	// Save inserts a new payment with its allocations
	Save(ctx context.Context, payment *Payment) error
	// UpdateAdvance writes the advance fields. patch.Version must be one more
	// than the stored version, otherwise CONCURRENCY_CONFLICT is returned.
	UpdateAdvance(ctx context.Context, id uuid.UUID, patch AdvancePatch) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Store groups the repositories of one unit of work
type Store interface {
	Parties() PartyRepository
	Bills() BillRepository
	Payments() PaymentRepository
}

// TransactionManager runs a function against a transactional store
type TransactionManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, store Store) error) error
	// Atomic reports whether a failed fn leaves no writes behind. When false,
	// callers must compensate side effects themselves.
	Atomic() bool
}
