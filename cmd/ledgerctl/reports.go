package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/ledger"
	"github.com/spf13/cobra"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

type reportFlags struct {
	billType string
	asOf     string
}

func (f *reportFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.billType, "bill-type", "", "Bill type: invoice, challan, purchase [REQUIRED]")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "Report date as YYYY-MM-DD (default: today)")
	_ = cmd.MarkFlagRequired("bill-type")
}

func (f *reportFlags) parse() (ledger.BillType, time.Time, error) {
	billType, err := ledger.ParseBillType(f.billType)
	if err != nil {
		return "", time.Time{}, err
	}
	var asOf time.Time
	if f.asOf != "" {
		asOf, err = time.Parse(time.DateOnly, f.asOf)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("invalid --as-of %q: want YYYY-MM-DD", f.asOf)
		}
	}
	return billType, asOf, nil
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:     "summary",
		Short:   "Per-party totals, outstanding and days since last payment",
		Example: "  ledgerctl summary --bill-type invoice --as-of 2025-03-31",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			billType, asOf, err := flags.parse()
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, svc *services, out io.Writer) error {
				rows, err := svc.reports.SummarizeByParty(ctx, billType, asOf)
				if err != nil {
					return err
				}
				// Largest outstanding first
				sort.SliceStable(rows, func(i, j int) bool {
					return rows[i].Outstanding.GreaterThan(rows[j].Outstanding)
				})
				if opts.output == outputJSON {
					return writeJSON(out, rows)
				}
				names := partyNames(ctx, svc)
				return writeSummary(out, rows, names)
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newAgingCmd(opts *rootOptions) *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:     "aging",
		Short:   "Outstanding amounts by age bucket",
		Example: "  ledgerctl aging --bill-type purchase",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			billType, asOf, err := flags.parse()
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, svc *services, out io.Writer) error {
				rows, err := svc.reports.Aging(ctx, billType, asOf)
				if err != nil {
					return err
				}
				if opts.output == outputJSON {
					return writeJSON(out, rows)
				}
				return writeAging(out, rows, partyNames(ctx, svc))
			})
		},
	}
	flags.bind(cmd)
	return cmd
}

func newAdvanceCmd(opts *rootOptions) *cobra.Command {
	var partyID, billType string
	cmd := &cobra.Command{
		Use:     "advance",
		Short:   "Available advance of a party",
		Example: "  ledgerctl advance --party 7b1f4f9e-3f43-4c55-9d0e-1a2b3c4d5e6f --bill-type invoice",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := uuid.Parse(partyID)
			if err != nil {
				return fmt.Errorf("invalid --party %q", partyID)
			}
			bt, err := ledger.ParseBillType(billType)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, svc *services, out io.Writer) error {
				party, err := svc.bills.GetParty(ctx, id)
				if err != nil {
					return err
				}
				available, err := svc.payments.GetAvailableAdvance(ctx, id, bt)
				if err != nil {
					return err
				}
				if opts.output == outputJSON {
					return writeJSON(out, map[string]any{
						"party_id":  id,
						"bill_type": bt,
						"available": available,
					})
				}
				_, err = fmt.Fprintf(out, "%s (%s): %s advance available\n",
					party.DisplayName, bt, formatAmount(available))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&partyID, "party", "", "Party ID [REQUIRED]")
	cmd.Flags().StringVar(&billType, "bill-type", "", "Bill type: invoice, challan, purchase [REQUIRED]")
	_ = cmd.MarkFlagRequired("party")
	_ = cmd.MarkFlagRequired("bill-type")
	return cmd
}

// partyNames maps party IDs to display names; lookups that fail fall back
// to the ID in the table
func partyNames(ctx context.Context, svc *services) map[uuid.UUID]string {
	parties, err := svc.bills.ListParties(ctx)
	if err != nil {
		return nil
	}
	names := make(map[uuid.UUID]string, len(parties))
	for _, p := range parties {
		names[p.ID] = p.DisplayName
	}
	return names
}

func nameOf(names map[uuid.UUID]string, id uuid.UUID) string {
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id.String()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeSummary(out io.Writer, rows []ledger.PartySummary, names map[uuid.UUID]string) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, header("party", "bills", "amount", "paid", "outstanding", "last payment", "days"))
	for _, r := range rows {
		last := "-"
		if r.LastPaymentDate != nil {
			last = r.LastPaymentDate.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			nameOf(names, r.PartyID), r.TotalBills,
			formatAmount(r.TotalAmount), formatAmount(r.TotalPaid), formatAmount(r.Outstanding),
			last, r.DaysSinceLastPayment)
	}
	return tw.Flush()
}

func writeAging(out io.Writer, rows []ledger.AgingRow, names map[uuid.UUID]string) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, header("party", "0-30", "31-60", "61-90", "90+", "total"))
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
			nameOf(names, r.PartyID),
			formatAmount(r.Current), formatAmount(r.Days31To60), formatAmount(r.Days61To90),
			formatAmount(r.Over90), formatAmount(r.Total))
	}
	return tw.Flush()
}
