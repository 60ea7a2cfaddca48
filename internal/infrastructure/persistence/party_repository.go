package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/ledgerbook/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPartyRepository implements ledger.PartyRepository using GORM
type GormPartyRepository struct {
	db *gorm.DB
}

// NewGormPartyRepository creates a new GormPartyRepository
func NewGormPartyRepository(db *gorm.DB) *GormPartyRepository {
	return &GormPartyRepository{db: db}
}

// FindByID finds a party by ID
func (r *GormPartyRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Party, error) {
	var model models.PartyModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns every party ordered by display name
func (r *GormPartyRepository) FindAll(ctx context.Context) ([]*ledger.Party, error) {
	var rows []models.PartyModel
	if err := r.db.WithContext(ctx).Order("display_name, id").Find(&rows).Error; err != nil {
		return nil, err
	}
	parties := make([]*ledger.Party, len(rows))
	for i := range rows {
		parties[i] = rows[i].ToDomain()
	}
	return parties, nil
}

// Save creates or updates a party
func (r *GormPartyRepository) Save(ctx context.Context, party *ledger.Party) error {
	err := r.db.WithContext(ctx).Save(models.PartyModelFromDomain(party)).Error
	return translateWriteError(err, "party "+party.DisplayName)
}
