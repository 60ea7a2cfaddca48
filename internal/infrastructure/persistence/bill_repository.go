package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillRepository implements ledger.BillRepository using GORM
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

// FindByID finds a bill by ID
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Bill, error) {
	var model models.BillModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByParty returns the party's bills oldest first
func (r *GormBillRepository) FindByParty(ctx context.Context, partyID uuid.UUID, billType ledger.BillType) ([]*ledger.Bill, error) {
	query := r.db.WithContext(ctx).Where("party_id = ?", partyID)
	if billType != "" {
		query = query.Where("bill_type = ?", string(billType))
	}
	return r.find(query)
}

// FindByType returns every bill of one type oldest first
func (r *GormBillRepository) FindByType(ctx context.Context, billType ledger.BillType) ([]*ledger.Bill, error) {
	return r.find(r.db.WithContext(ctx).Where("bill_type = ?", string(billType)))
}

func (r *GormBillRepository) find(query *gorm.DB) ([]*ledger.Bill, error) {
	var rows []models.BillModel
	if err := query.Order("date, number").Find(&rows).Error; err != nil {
		return nil, err
	}
	bills := make([]*ledger.Bill, len(rows))
	for i := range rows {
		bills[i] = rows[i].ToDomain()
	}
	return bills, nil
}

// ExistsByNumber checks whether the party already has a bill with this number
func (r *GormBillRepository) ExistsByNumber(ctx context.Context, partyID uuid.UUID, billType ledger.BillType, number string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BillModel{}).
		Where("party_id = ? AND bill_type = ? AND number = ?", partyID, string(billType), number).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a bill
func (r *GormBillRepository) Save(ctx context.Context, bill *ledger.Bill) error {
	err := r.db.WithContext(ctx).Save(models.BillModelFromDomain(bill)).Error
	return translateWriteError(err, "bill "+bill.Number)
}
