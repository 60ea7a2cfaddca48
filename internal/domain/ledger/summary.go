package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const neverLabel = "Never"

// DaysSince is a whole number of days, or Never when there is nothing to count from
type DaysSince struct {
	days  int
	never bool
}

// Never returns the DaysSince value for "no qualifying payment"
func Never() DaysSince {
	return DaysSince{never: true}
}

// DaysSinceOf wraps a day count
func DaysSinceOf(days int) DaysSince {
	return DaysSince{days: days}
}

// Days returns the count and false when the value is Never
func (d DaysSince) Days() (int, bool) {
	return d.days, !d.never
}

// IsNever reports whether there is no day count
func (d DaysSince) IsNever() bool {
	return d.never
}

func (d DaysSince) String() string {
	if d.never {
		return neverLabel
	}
	return strconv.Itoa(d.days)
}

// MarshalJSON writes a number, or the string "Never"
func (d DaysSince) MarshalJSON() ([]byte, error) {
	if d.never {
		return json.Marshal(neverLabel)
	}
	return json.Marshal(d.days)
}

// UnmarshalJSON accepts a number or "Never"
func (d *DaysSince) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != neverLabel {
			return fmt.Errorf("invalid days value %q", s)
		}
		*d = Never()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = DaysSinceOf(n)
	return nil
}

// CalendarDaysBetween counts whole calendar days from from to to, ignoring
// time of day. It is never negative.
func CalendarDaysBetween(from, to time.Time) int {
	days := civilDay(to) - civilDay(from)
	if days < 0 {
		return 0
	}
	return int(days)
}

func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// PartySummary is one party's totals for a bill type
type PartySummary struct {
	PartyID              uuid.UUID       `json:"party_id"`
	BillType             BillType        `json:"bill_type"`
	TotalBills           int             `json:"total_bills"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	TotalPaid            decimal.Decimal `json:"total_paid"`
	Outstanding          decimal.Decimal `json:"outstanding"`
	LastPaymentDate      *time.Time      `json:"last_payment_date"`
	DaysSinceLastPayment DaysSince       `json:"days_since_last_payment"`
}

// SummarizeByParty totals every party with at least one bill of billType.
// Rows are ordered by party id; sorting for display is the caller's concern.
func SummarizeByParty(billType BillType, bills []*Bill, payments []*Payment, asOf time.Time) []PartySummary {
	byParty := make(map[uuid.UUID][]*Bill)
	for _, b := range bills {
		if b.BillType == billType {
			byParty[b.PartyID] = append(byParty[b.PartyID], b)
		}
	}
	paymentsByParty := make(map[uuid.UUID][]*Payment)
	for _, p := range payments {
		paymentsByParty[p.PartyID] = append(paymentsByParty[p.PartyID], p)
	}

	out := make([]PartySummary, 0, len(byParty))
	for partyID, partyBills := range byParty {
		sortBillsFIFO(partyBills)
		partyPayments := paymentsByParty[partyID]
		balances := ComputeBalances(partyBills, partyPayments)

		row := PartySummary{
			PartyID:     partyID,
			BillType:    billType,
			TotalBills:  len(partyBills),
			TotalAmount: decimal.Zero,
			TotalPaid:   decimal.Zero,
			Outstanding: decimal.Zero,
		}
		for _, bal := range balances {
			row.TotalAmount = row.TotalAmount.Add(bal.TotalAmount)
			row.TotalPaid = row.TotalPaid.Add(bal.TotalPaid)
			row.Outstanding = row.Outstanding.Add(bal.Outstanding)
		}

		row.LastPaymentDate = lastPaymentDate(partyBills, balances, partyPayments)
		if row.LastPaymentDate == nil {
			row.DaysSinceLastPayment = Never()
		} else {
			row.DaysSinceLastPayment = DaysSinceOf(CalendarDaysBetween(*row.LastPaymentDate, asOf))
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].PartyID.String() < out[j].PartyID.String()
	})
	return out
}

// lastPaymentDate picks the payment date that collections follow-up counts from.
// bills and balances are in FIFO order.
//
//  1. The oldest bill still outstanding: the payment with the largest single
//     allocation to it (ties go to the later payment).
//  2. If that bill has no payments: the latest payment against any earlier bill.
//  3. If nothing is outstanding: the latest payment against any of the bills.
//
// Adjustment vouchers count like any payment but are dated by the advance
// payments that funded them, since that is when the money arrived.
func lastPaymentDate(bills []*Bill, balances []BillBalance, payments []*Payment) *time.Time {
	dates := moneyDates(payments)

	oldest := -1
	for i, bal := range balances {
		if bal.Outstanding.IsPositive() {
			oldest = i
			break
		}
	}

	if oldest < 0 {
		return latestPaymentAgainst(bills, payments, dates)
	}

	bill := bills[oldest]
	var best *Payment
	bestAmount := decimal.Zero
	for _, p := range payments {
		amt := p.AllocatedTo(bill.BillType, bill.ID)
		if !amt.IsPositive() {
			continue
		}
		if best == nil || amt.GreaterThan(bestAmount) ||
			(amt.Equal(bestAmount) && paidAfter(p, best, dates)) {
			best = p
			bestAmount = amt
		}
	}
	if best != nil {
		d := dates[best.ID]
		return &d
	}
	return latestPaymentAgainst(bills[:oldest], payments, dates)
}

func latestPaymentAgainst(bills []*Bill, payments []*Payment, dates map[uuid.UUID]time.Time) *time.Time {
	var latest *Payment
	for _, p := range payments {
		for _, b := range bills {
			if p.AllocatedTo(b.BillType, b.ID).IsPositive() {
				if latest == nil || paidAfter(p, latest, dates) {
					latest = p
				}
				break
			}
		}
	}
	if latest == nil {
		return nil
	}
	d := dates[latest.ID]
	return &d
}

// moneyDates maps each payment to the date its money was received. An
// adjustment voucher takes the latest date of its advance sources; sources
// missing from payments fall back to the voucher date.
func moneyDates(payments []*Payment) map[uuid.UUID]time.Time {
	byID := make(map[uuid.UUID]*Payment, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
	}
	dates := make(map[uuid.UUID]time.Time, len(payments))
	for _, p := range payments {
		d := p.Date
		if p.PaymentType == PaymentTypeAdjustment {
			var funded time.Time
			for _, use := range p.AdvanceAllocations {
				if src, ok := byID[use.PaymentID]; ok && src.Date.After(funded) {
					funded = src.Date
				}
			}
			if !funded.IsZero() {
				d = funded
			}
		}
		dates[p.ID] = d
	}
	return dates
}

func paidAfter(a, b *Payment, dates map[uuid.UUID]time.Time) bool {
	da, db := dates[a.ID], dates[b.ID]
	if !da.Equal(db) {
		return da.After(db)
	}
	return a.ID.String() > b.ID.String()
}

func sortBillsFIFO(bills []*Bill) {
	sort.SliceStable(bills, func(i, j int) bool {
		return bills[i].before(bills[j])
	})
}

// AgingRow buckets a party's outstanding by bill age
type AgingRow struct {
	PartyID    uuid.UUID       `json:"party_id"`
	BillType   BillType        `json:"bill_type"`
	Current    decimal.Decimal `json:"current"` // 0-30 days
	Days31To60 decimal.Decimal `json:"days_31_60"`
	Days61To90 decimal.Decimal `json:"days_61_90"`
	Over90     decimal.Decimal `json:"over_90"`
	Total      decimal.Decimal `json:"total"`
}

func (r *AgingRow) add(age int, amount decimal.Decimal) {
	switch {
	case age <= 30:
		r.Current = r.Current.Add(amount)
	case age <= 60:
		r.Days31To60 = r.Days31To60.Add(amount)
	case age <= 90:
		r.Days61To90 = r.Days61To90.Add(amount)
	default:
		r.Over90 = r.Over90.Add(amount)
	}
	r.Total = r.Total.Add(amount)
}

// AgingReport buckets outstanding per party by days since bill date.
// Parties with nothing outstanding are omitted.
func AgingReport(billType BillType, bills []*Bill, payments []*Payment, asOf time.Time) []AgingRow {
	rows := make(map[uuid.UUID]*AgingRow)
	typed := make([]*Bill, 0, len(bills))
	for _, b := range bills {
		if b.BillType == billType {
			typed = append(typed, b)
		}
	}

	for _, bal := range ComputeBalances(typed, payments) {
		if !bal.Outstanding.IsPositive() {
			continue
		}
		row, ok := rows[bal.PartyID]
		if !ok {
			row = &AgingRow{
				PartyID:    bal.PartyID,
				BillType:   billType,
				Current:    decimal.Zero,
				Days31To60: decimal.Zero,
				Days61To90: decimal.Zero,
				Over90:     decimal.Zero,
				Total:      decimal.Zero,
			}
			rows[bal.PartyID] = row
		}
		row.add(CalendarDaysBetween(bal.Date, asOf), bal.Outstanding)
	}

	out := make([]AgingRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PartyID.String() < out[j].PartyID.String()
	})
	return out
}

// PartyPosition is a party's net standing across all bill types
type PartyPosition struct {
	PartyID         uuid.UUID       `json:"party_id"`
	OpeningBalance  decimal.Decimal `json:"opening_balance"`
	Receivable      decimal.Decimal `json:"receivable"`
	Payable         decimal.Decimal `json:"payable"`
	AdvanceReceived decimal.Decimal `json:"advance_received"`
	AdvancePaid     decimal.Decimal `json:"advance_paid"`
	Net             decimal.Decimal `json:"net"` // Positive: party owes us
}

// ComputePartyPosition derives the party's position from its bills and payments
func ComputePartyPosition(party *Party, bills []*Bill, payments []*Payment) PartyPosition {
	pos := PartyPosition{
		PartyID:         party.ID,
		OpeningBalance:  party.OpeningBalance,
		Receivable:      decimal.Zero,
		Payable:         decimal.Zero,
		AdvanceReceived: decimal.Zero,
		AdvancePaid:     decimal.Zero,
	}

	for _, bal := range ComputeBalances(filterParty(bills, party.ID), payments) {
		if bal.BillType.IsReceivable() {
			pos.Receivable = pos.Receivable.Add(bal.Outstanding)
		} else {
			pos.Payable = pos.Payable.Add(bal.Outstanding)
		}
	}
	for _, t := range AllBillTypes() {
		adv := GetAvailableAdvance(party.ID, t, payments)
		if t.IsReceivable() {
			pos.AdvanceReceived = pos.AdvanceReceived.Add(adv)
		} else {
			pos.AdvancePaid = pos.AdvancePaid.Add(adv)
		}
	}

	pos.Net = pos.OpeningBalance.
		Add(pos.Receivable).
		Sub(pos.Payable).
		Sub(pos.AdvanceReceived).
		Add(pos.AdvancePaid)
	return pos
}

func filterParty(bills []*Bill, partyID uuid.UUID) []*Bill {
	out := make([]*Bill, 0, len(bills))
	for _, b := range bills {
		if b.PartyID == partyID {
			out = append(out, b)
		}
	}
	return out
}
