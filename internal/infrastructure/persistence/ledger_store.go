package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormStore implements ledger.Store and ledger.TransactionManager on a SQL
// database. Transactions roll back as a whole, so it reports Atomic.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store over db
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Parties() ledger.PartyRepository {
	return NewGormPartyRepository(s.db)
}

func (s *GormStore) Bills() ledger.BillRepository {
	return NewGormBillRepository(s.db)
}

func (s *GormStore) Payments() ledger.PaymentRepository {
	return NewGormPaymentRepository(s.db)
}

// WithinTransaction runs fn against a store bound to one database transaction
func (s *GormStore) WithinTransaction(ctx context.Context, fn func(ctx context.Context, store ledger.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx})
	})
}

// Atomic implements ledger.TransactionManager
func (s *GormStore) Atomic() bool { return true }

// translateWriteError maps constraint violations onto domain errors
func translateWriteError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.NewDomainError(shared.CodeAlreadyExists, what+" already exists")
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return shared.NewValidationError("%s references a missing record", what)
	default:
		return fmt.Errorf("failed to write %s: %w", what, err)
	}
}
