package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements ledger.PaymentRepository using GORM.
// Allocations and advance uses live in child tables written with the payment.
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

func withChildren(db *gorm.DB) *gorm.DB {
	bySeq := func(db *gorm.DB) *gorm.DB { return db.Order("seq") }
	return db.Preload("Allocations", bySeq).Preload("AdvanceUses", bySeq)
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	var model models.PaymentModel
	if err := withChildren(r.db.WithContext(ctx)).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByParty returns the party's payments in date order
func (r *GormPaymentRepository) FindByParty(ctx context.Context, partyID uuid.UUID) ([]*ledger.Payment, error) {
	return r.find(r.db.WithContext(ctx).Where("party_id = ?", partyID).Order("date, created_at"))
}

// FindByBillType returns every payment of one bill type in date order
func (r *GormPaymentRepository) FindByBillType(ctx context.Context, billType ledger.BillType) ([]*ledger.Payment, error) {
	return r.find(r.db.WithContext(ctx).Where("bill_type = ?", string(billType)).Order("date, created_at"))
}

// ListByParty returns one page of the party's payments, newest first
func (r *GormPaymentRepository) ListByParty(ctx context.Context, partyID uuid.UUID, filter shared.Filter) ([]*ledger.Payment, int64, error) {
	ofParty := func(db *gorm.DB) *gorm.DB {
		return db.Model(&models.PaymentModel{}).Where("party_id = ?", partyID)
	}

	var total int64
	if err := r.db.WithContext(ctx).Scopes(ofParty).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query := r.db.WithContext(ctx).Scopes(ofParty).Order("date DESC, created_at DESC")
	if filter.PageSize > 0 {
		query = query.Limit(filter.PageSize).Offset(filter.Offset())
	}
	payments, err := r.find(query)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

func (r *GormPaymentRepository) find(query *gorm.DB) ([]*ledger.Payment, error) {
	var rows []models.PaymentModel
	if err := withChildren(query).Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]*ledger.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

// ExistsByReceiptNumber checks whether a receipt number is taken
func (r *GormPaymentRepository) ExistsByReceiptNumber(ctx context.Context, receiptNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("receipt_number = ?", receiptNumber).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MaxReceiptSequence scans receipt numbers under prefix. Numbers that do not
// parse as generated receipts are ignored.
func (r *GormPaymentRepository) MaxReceiptSequence(ctx context.Context, prefix string) (int, error) {
	var receipts []string
	err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("receipt_number LIKE ?", prefix+"%").
		Pluck("receipt_number", &receipts).Error
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, s := range receipts {
		if rn, err := ledger.ParseReceiptNumber(s); err == nil && rn.Sequence > highest {
			highest = rn.Sequence
		}
	}
	return highest, nil
}

// Save inserts a payment with its allocations and advance uses
func (r *GormPaymentRepository) Save(ctx context.Context, payment *ledger.Payment) error {
	err := r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(payment)).Error
	return translateWriteError(err, "payment "+payment.ReceiptNumber)
}

// UpdateAdvance writes the advance fields if the stored version is the one
// before patch.Version
func (r *GormPaymentRepository) UpdateAdvance(ctx context.Context, id uuid.UUID, patch ledger.AdvancePatch) error {
	result := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("id = ? AND version = ?", id, patch.Version-1).
		Updates(map[string]any{
			"advance_consumed":   patch.AdvanceConsumed,
			"advance_fully_used": patch.AdvanceFullyUsed,
			"advance_refunded":   patch.AdvanceRefunded,
			"refunded_at":        patch.RefundedAt,
			"version":            patch.Version,
			"updated_at":         time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update advance of payment %s: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return shared.NewNotFoundError("payment", id)
	}
	return shared.NewDomainError(shared.CodeConcurrencyConflict, "payment "+id.String()+" was modified concurrently")
}

// Delete removes a payment and its child rows
func (r *GormPaymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("payment_id = ?", id).Delete(&models.PaymentAllocationModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete allocations: %w", err)
	}
	if err := db.Where("payment_id = ?", id).Delete(&models.AdvanceUseModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete advance uses: %w", err)
	}
	result := db.Delete(&models.PaymentModel{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete payment: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewNotFoundError("payment", id)
	}
	return nil
}
