package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatMoney(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func formatCount(n int) string {
	return humanize.Comma(int64(n))
}

func printOpportunities(w io.Writer, opps []models.Opportunity) {
	if len(opps) == 0 {
		fmt.Fprintln(w, "No opportunities found.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSYMBOL\tPRICE\tLONG\tSHORT\tNET DEBIT\tDEBIT %\tROC %\tPOP %\tBREAKEVEN\tDELTA")
	for i, o := range opps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%.1f\t%.2f\t%.1f\t%s\t%.2f\n",
			i+1,
			o.Symbol,
			formatMoney(o.UnderlyingPrice),
			legLabel(o.Long, o.LongDTE),
			legLabel(o.Short, o.ShortDTE),
			formatMoney(o.NetDebit),
			o.NetDebitPct,
			o.ROCPct,
			o.POPPct,
			formatMoney(o.Breakeven),
			o.PositionDelta,
		)
	}
	_ = tw.Flush()
}

func legLabel(c models.OptionContract, dte int) string {
	return fmt.Sprintf("%s %s%s (%dd)", c.ExpirationString(), humanize.Ftoa(c.Strike), typeLetter(c.Type), dte)
}

func typeLetter(t models.OptionType) string {
	if t == models.OptionTypePut {
		return "P"
	}
	return "C"
}

func printSymbolErrors(w io.Writer, errs []models.SymbolError) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d symbol(s) failed:\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "  %-8s %s\n", e.Symbol, e.Message)
	}
}

func printRejections(w io.Writer, stats *models.RejectionStats) {
	var printed bool
	stats.Each(func(stage, reason string, n int) {
		if n == 0 {
			return
		}
		if !printed {
			fmt.Fprintln(w, "\nRejected:")
			printed = true
		}
		fmt.Fprintf(w, "  %-6s %-10s %s\n", stage, reason, formatCount(n))
	})
}

func printFilters(w io.Writer, filters []models.FilterCriteria, now time.Time) {
	if len(filters) == 0 {
		fmt.Fprintln(w, "No filters saved.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTRATEGY\tACTIVE\tLAST USED")
	for _, f := range filters {
		active := ""
		if f.IsActive {
			active = "*"
		}
		lastUsed := "never"
		if !f.LastAccessedAt.IsZero() {
			lastUsed = humanize.RelTime(f.LastAccessedAt, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", f.ID, f.Name, f.Strategy, active, lastUsed)
	}
	_ = tw.Flush()
}
