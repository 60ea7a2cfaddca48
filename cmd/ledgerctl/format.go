package main

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Amounts are printed with Indian digit grouping (12,34,567.00)
var (
	amountPrinter = message.NewPrinter(language.MustParse("en-IN"))
	titleCaser    = cases.Title(language.English)
)

// formatAmount groups the whole rupees with the printer and appends the
// paise from the decimal string. Column amounts have at most 14 integer
// digits, so IntPart is exact.
func formatAmount(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	fixed := d.StringFixed(2)
	paise := fixed[strings.IndexByte(fixed, '.')+1:]
	return sign + amountPrinter.Sprint(number.Decimal(d.IntPart())) + "." + paise
}

// header title-cases column names into a tab separated table row
func header(cols ...string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = titleCaser.String(c)
	}
	return strings.Join(out, "\t") + "\t"
}
