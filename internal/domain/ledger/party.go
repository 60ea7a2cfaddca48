package ledger

import (
	"strings"

	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PartyKind says whether we sell to, buy from, or both
type PartyKind string

const (
	PartyKindCustomer PartyKind = "customer"
	PartyKindSupplier PartyKind = "supplier"
	PartyKindBoth     PartyKind = "both"
)

// IsValid checks if the party kind is valid
func (k PartyKind) IsValid() bool {
	switch k {
	case PartyKindCustomer, PartyKindSupplier, PartyKindBoth:
		return true
	}
	return false
}

// Party is a customer or supplier. OpeningBalance is signed: positive is
// receivable, negative is payable.
type Party struct {
	shared.BaseEntity
	DisplayName    string          `json:"display_name"`
	Kind           PartyKind       `json:"kind"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Phone          string          `json:"phone,omitempty"`
}

// NewParty creates a new party
func NewParty(displayName string, kind PartyKind, openingBalance decimal.Decimal) (*Party, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, shared.NewValidationError("party name is required")
	}
	if len(displayName) > 200 {
		return nil, shared.NewValidationError("party name cannot exceed 200 characters")
	}
	if kind == "" {
		kind = PartyKindBoth
	}
	if !kind.IsValid() {
		return nil, shared.NewValidationError("unknown party kind %q", kind)
	}
	if _, err := valueobject.NewMoney(openingBalance); err != nil {
		return nil, shared.NewValidationError("opening balance %v", err)
	}

	return &Party{
		BaseEntity:     shared.NewBaseEntity(),
		DisplayName:    displayName,
		Kind:           kind,
		OpeningBalance: openingBalance,
	}, nil
}
