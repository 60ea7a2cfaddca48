package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// PartyModel is the persistence model for parties
type PartyModel struct {
	BaseModel
	DisplayName    string          `gorm:"type:varchar(200);not null;index"`
	Kind           string          `gorm:"type:varchar(20);not null"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Phone          string          `gorm:"type:varchar(30)"`
}

// TableName returns the table name for GORM
func (PartyModel) TableName() string {
	return "parties"
}

// ToDomain converts the persistence model to a domain entity
func (m *PartyModel) ToDomain() *ledger.Party {
	return &ledger.Party{
		BaseEntity:     m.BaseModel.ToDomain(),
		DisplayName:    m.DisplayName,
		Kind:           ledger.PartyKind(m.Kind),
		OpeningBalance: m.OpeningBalance,
		Phone:          m.Phone,
	}
}

// PartyModelFromDomain creates a persistence model from a domain entity
func PartyModelFromDomain(p *ledger.Party) *PartyModel {
	m := &PartyModel{
		DisplayName:    p.DisplayName,
		Kind:           string(p.Kind),
		OpeningBalance: p.OpeningBalance,
		Phone:          p.Phone,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// BillModel is the persistence model for invoices, challans and purchases.
// Bill numbers are unique per party and bill type.
type BillModel struct {
	BaseModel
	PartyID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_bill_party_type_number,priority:1;index:idx_bill_party_date,priority:1"`
	BillType    string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_bill_party_type_number,priority:2;index"`
	Number      string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_bill_party_type_number,priority:3"`
	Date        time.Time       `gorm:"type:date;not null;index:idx_bill_party_date,priority:2"`
	DueDate     *time.Time      `gorm:"type:date"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Notes       string          `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (BillModel) TableName() string {
	return "bills"
}

// ToDomain converts the persistence model to a domain entity
func (m *BillModel) ToDomain() *ledger.Bill {
	return &ledger.Bill{
		BaseEntity:  m.BaseModel.ToDomain(),
		PartyID:     m.PartyID,
		BillType:    ledger.BillType(m.BillType),
		Number:      m.Number,
		Date:        m.Date,
		DueDate:     m.DueDate,
		TotalAmount: m.TotalAmount,
		Notes:       m.Notes,
	}
}

// BillModelFromDomain creates a persistence model from a domain entity
func BillModelFromDomain(b *ledger.Bill) *BillModel {
	m := &BillModel{
		PartyID:     b.PartyID,
		BillType:    string(b.BillType),
		Number:      b.Number,
		Date:        b.Date,
		DueDate:     b.DueDate,
		TotalAmount: b.TotalAmount,
		Notes:       b.Notes,
	}
	m.FromDomainBaseEntity(b.BaseEntity)
	return m
}

// PaymentModel is the persistence model for payments. Allocation order is
// significant and kept in the Seq column of the child rows.
type PaymentModel struct {
	AggregateModel
	PartyID            uuid.UUID                `gorm:"type:uuid;not null;index:idx_payment_party_date,priority:1"`
	PaymentType        string                   `gorm:"type:varchar(20);not null"`
	BillType           string                   `gorm:"type:varchar(20);not null;index"`
	TargetBillID       *uuid.UUID               `gorm:"type:uuid"`
	TotalAmount        decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Date               time.Time                `gorm:"type:date;not null;index:idx_payment_party_date,priority:2"`
	Mode               string                   `gorm:"type:varchar(20)"`
	Reference          string                   `gorm:"type:varchar(100)"`
	Notes              string                   `gorm:"type:text"`
	ReceiptNumber      string                   `gorm:"type:varchar(30);not null;uniqueIndex"`
	AdvanceUsed        decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	RemainingAmount    decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	FIFOAllocationUsed decimal.Decimal          `gorm:"column:fifo_allocation_used;type:decimal(18,4);not null;default:0"`
	AdvanceConsumed    decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	AdvanceFullyUsed   bool                     `gorm:"not null;default:false"`
	AdvanceRefunded    bool                     `gorm:"not null;default:false"`
	RefundedAt         *time.Time
	Allocations        []PaymentAllocationModel `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
	AdvanceUses        []AdvanceUseModel        `gorm:"foreignKey:PaymentID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// PaymentAllocationModel is one bill allocation of a payment
type PaymentAllocationModel struct {
	ID                          uuid.UUID       `gorm:"type:uuid;primary_key"`
	PaymentID                   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Seq                         int             `gorm:"not null"`
	BillType                    string          `gorm:"type:varchar(20);not null"`
	BillID                      uuid.UUID       `gorm:"type:uuid;not null;index"`
	BillNumber                  string          `gorm:"type:varchar(50);not null"`
	AllocatedAmount             decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	BillOutstandingAtAllocation decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	IsFullPayment               bool            `gorm:"not null;default:false"`
	FromAdvance                 bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// AdvanceUseModel records advance a payment drew from an earlier payment
type AdvanceUseModel struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key"`
	PaymentID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	Seq             int             `gorm:"not null"`
	SourcePaymentID uuid.UUID       `gorm:"type:uuid;not null;index"`
	AmountUsed      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (AdvanceUseModel) TableName() string {
	return "payment_advance_uses"
}

// ToDomain converts the persistence model to a domain aggregate. Child rows
// must already be ordered by Seq.
func (m *PaymentModel) ToDomain() *ledger.Payment {
	p := &ledger.Payment{
		PartyID:            m.PartyID,
		PaymentType:        ledger.PaymentType(m.PaymentType),
		BillType:           ledger.BillType(m.BillType),
		TargetBillID:       m.TargetBillID,
		TotalAmount:        m.TotalAmount,
		Date:               m.Date,
		Mode:               ledger.PaymentMethod(m.Mode),
		Reference:          m.Reference,
		Notes:              m.Notes,
		ReceiptNumber:      m.ReceiptNumber,
		Allocations:        make([]ledger.Allocation, len(m.Allocations)),
		AdvanceAllocations: make([]ledger.AdvanceUse, len(m.AdvanceUses)),
		AdvanceUsed:        m.AdvanceUsed,
		RemainingAmount:    m.RemainingAmount,
		FIFOAllocationUsed: m.FIFOAllocationUsed,
		AdvanceConsumed:    m.AdvanceConsumed,
		AdvanceFullyUsed:   m.AdvanceFullyUsed,
		AdvanceRefunded:    m.AdvanceRefunded,
		RefundedAt:         m.RefundedAt,
	}
	m.PopulateAggregateRoot(&p.BaseAggregateRoot)
	for i, a := range m.Allocations {
		p.Allocations[i] = ledger.Allocation{
			BillType:                    ledger.BillType(a.BillType),
			BillID:                      a.BillID,
			BillNumber:                  a.BillNumber,
			AllocatedAmount:             a.AllocatedAmount,
			BillOutstandingAtAllocation: a.BillOutstandingAtAllocation,
			IsFullPayment:               a.IsFullPayment,
			FromAdvance:                 a.FromAdvance,
		}
	}
	for i, u := range m.AdvanceUses {
		p.AdvanceAllocations[i] = ledger.AdvanceUse{PaymentID: u.SourcePaymentID, AmountUsed: u.AmountUsed}
	}
	return p
}

// PaymentModelFromDomain creates a persistence model, child rows included,
// from a domain aggregate
func PaymentModelFromDomain(p *ledger.Payment) *PaymentModel {
	m := &PaymentModel{
		PartyID:            p.PartyID,
		PaymentType:        string(p.PaymentType),
		BillType:           string(p.BillType),
		TargetBillID:       p.TargetBillID,
		TotalAmount:        p.TotalAmount,
		Date:               p.Date,
		Mode:               string(p.Mode),
		Reference:          p.Reference,
		Notes:              p.Notes,
		ReceiptNumber:      p.ReceiptNumber,
		AdvanceUsed:        p.AdvanceUsed,
		RemainingAmount:    p.RemainingAmount,
		FIFOAllocationUsed: p.FIFOAllocationUsed,
		AdvanceConsumed:    p.AdvanceConsumed,
		AdvanceFullyUsed:   p.AdvanceFullyUsed,
		AdvanceRefunded:    p.AdvanceRefunded,
		RefundedAt:         p.RefundedAt,
		Allocations:        make([]PaymentAllocationModel, len(p.Allocations)),
		AdvanceUses:        make([]AdvanceUseModel, len(p.AdvanceAllocations)),
	}
	m.FromDomainAggregateRoot(p.BaseAggregateRoot)
	for i, a := range p.Allocations {
		m.Allocations[i] = PaymentAllocationModel{
			ID:                          uuid.New(),
			PaymentID:                   p.ID,
			Seq:                         i,
			BillType:                    string(a.BillType),
			BillID:                      a.BillID,
			BillNumber:                  a.BillNumber,
			AllocatedAmount:             a.AllocatedAmount,
			BillOutstandingAtAllocation: a.BillOutstandingAtAllocation,
			IsFullPayment:               a.IsFullPayment,
			FromAdvance:                 a.FromAdvance,
		}
	}
	for i, u := range p.AdvanceAllocations {
		m.AdvanceUses[i] = AdvanceUseModel{
			ID:              uuid.New(),
			PaymentID:       p.ID,
			Seq:             i,
			SourcePaymentID: u.PaymentID,
			AmountUsed:      u.AmountUsed,
		}
	}
	return m
}

// LedgerModels lists every model of the ledger schema, parents first
func LedgerModels() []any {
	return []any{
		&PartyModel{},
		&BillModel{},
		&PaymentModel{},
		&PaymentAllocationModel{},
		&AdvanceUseModel{},
	}
}
