package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ledgerbook/backend/internal/domain/shared"
)

const receiptPrefix = "PR"

// FinancialYear is identified by the calendar year it starts in
type FinancialYear struct {
	StartYear int
}

// FinancialYearOf returns the financial year containing date. startMonth is
// the first month of the year (April in India).
func FinancialYearOf(date time.Time, startMonth time.Month) FinancialYear {
	if startMonth < time.January || startMonth > time.December {
		startMonth = time.April
	}
	if date.Month() < startMonth {
		return FinancialYear{StartYear: date.Year() - 1}
	}
	return FinancialYear{StartYear: date.Year()}
}

// Code returns the short form used in receipt numbers, e.g. 2526
func (fy FinancialYear) Code() string {
	return fmt.Sprintf("%02d%02d", fy.StartYear%100, (fy.StartYear+1)%100)
}

// String returns e.g. 2025-26
func (fy FinancialYear) String() string {
	return fmt.Sprintf("%d-%02d", fy.StartYear, (fy.StartYear+1)%100)
}

// ReceiptPrefix returns the receipt number namespace for a bill type and year
func ReceiptPrefix(billType BillType, fy FinancialYear) string {
	return receiptPrefix + billType.ReceiptCode() + fy.Code() + "/"
}

// FormatReceiptNumber builds PR{I|C|P}{FY}/{seq}, e.g. PRI2526/0007
func FormatReceiptNumber(billType BillType, fy FinancialYear, seq int) string {
	return fmt.Sprintf("%s%04d", ReceiptPrefix(billType, fy), seq)
}

// ReceiptNumber is a parsed receipt number
type ReceiptNumber struct {
	BillType BillType
	FYCode   string
	Sequence int
}

// ParseReceiptNumber splits a receipt number into its parts
func ParseReceiptNumber(s string) (ReceiptNumber, error) {
	head, seqPart, ok := strings.Cut(s, "/")
	if !ok || !strings.HasPrefix(head, receiptPrefix) || len(head) != len(receiptPrefix)+5 {
		return ReceiptNumber{}, shared.NewValidationError("malformed receipt number %q", s)
	}
	billType, ok := billTypeFromReceiptCode(head[2:3])
	if !ok {
		return ReceiptNumber{}, shared.NewValidationError("receipt number %q has unknown bill code", s)
	}
	fyCode := head[3:]
	if _, err := strconv.Atoi(fyCode); err != nil {
		return ReceiptNumber{}, shared.NewValidationError("receipt number %q has malformed year", s)
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq <= 0 {
		return ReceiptNumber{}, shared.NewValidationError("receipt number %q has malformed sequence", s)
	}
	return ReceiptNumber{BillType: billType, FYCode: fyCode, Sequence: seq}, nil
}
