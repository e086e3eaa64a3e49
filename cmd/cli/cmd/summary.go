package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wattsync/wattsync/pkg/models"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <contract-id>",
	Short: "Show a usage summary for a contract",
	Long:  `Display today, yesterday, monthly totals, and period comparisons for a contract.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	var summary models.Summary
	path := fmt.Sprintf("/api/v1/contracts/%s/summary", url.PathEscape(args[0]))
	if err := getJSON(path, &summary); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(summary)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Contract:\t%s\n", summary.ContractID)

	printDay := func(label string, rec *models.UsageRecord) {
		if rec == nil {
			fmt.Fprintf(w, "%s:\tno data\n", label)
			return
		}
		line := fmt.Sprintf("%.2f %s", rec.Value, rec.Unit)
		if rec.DollarValue != nil {
			line += fmt.Sprintf(" ($%.2f)", *rec.DollarValue)
		}
		fmt.Fprintf(w, "%s:\t%s\n", label, line)
	}

	printDay("Today", summary.Today)
	printDay("Yesterday", summary.Yesterday)

	if summary.DataAsOf != "" {
		fmt.Fprintf(w, "Data as of:\t%s\n", summary.DataAsOf)
		printDay("Latest day", summary.LatestDay)
		printDay("Previous day", summary.PreviousDay)
	}

	printMonth := func(label string, agg *models.MonthlyAggregate) {
		if agg == nil {
			fmt.Fprintf(w, "%s:\tno data\n", label)
			return
		}
		fmt.Fprintf(w, "%s:\t%.2f %s over %d days (%.2f/day)\n",
			label, agg.Value, agg.Unit, agg.DaysWithData, agg.DailyAverage)
	}

	printMonth("This month", summary.ThisMonth)
	printMonth("Last month", summary.LastMonth)

	printPct := func(label string, v *float64) {
		if v == nil {
			return
		}
		fmt.Fprintf(w, "%s:\t%+.1f%%\n", label, *v)
	}

	printPct("vs yesterday", summary.Comparisons.VsYesterday)
	printPct("vs last month", summary.Comparisons.VsLastMonth)
	printPct("vs same day last week", summary.Comparisons.VsSameDayLastWeek)

	w.Flush()
	return nil
}
