package valueobject

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency represents a currency code (ISO 4217)
type Currency string

// INR is the only currency the ledger keeps
const INR Currency = "INR"

// StorageScale is the number of decimal places amount columns hold
// (DECIMAL(18,4))
const StorageScale int32 = 4

// Money represents a monetary amount with currency.
// It is immutable - all operations return new Money instances.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney creates INR money from an amount entered by a user. Amounts
// finer than StorageScale are rejected rather than rounded.
func NewMoney(amount decimal.Decimal) (Money, error) {
	if err := CheckScale(amount); err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: INR}, nil
}

// NewMoneyINR wraps an amount already known to fit StorageScale, such as
// sums and minimums of validated amounts
func NewMoneyINR(amount decimal.Decimal) Money {
	return Money{amount: amount, currency: INR}
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() Currency {
	return m.currency
}

// CheckScale fails for amounts that cannot be stored without rounding.
// Trailing zeros do not count, so 1.50000 is accepted.
func CheckScale(amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(StorageScale)) {
		return fmt.Errorf("amount %s has more than %d decimal places", amount.String(), StorageScale)
	}
	return nil
}
