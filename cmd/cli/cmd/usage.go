package cmd

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wattsync/wattsync/pkg/models"
)

var (
	usageStartMonth string
	usageEndMonth   string
	usageDate       string
)

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Query stored usage data",
}

var usageMonthlyCmd = &cobra.Command{
	Use:   "monthly <contract-id>",
	Short: "Show monthly usage totals",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsageMonthly,
}

var usageHourlyCmd = &cobra.Command{
	Use:   "hourly <contract-id>",
	Short: "Show the hourly breakdown for one day",
	Args:  cobra.ExactArgs(1),
	RunE:  runUsageHourly,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageMonthlyCmd)
	usageCmd.AddCommand(usageHourlyCmd)

	usageMonthlyCmd.Flags().StringVar(&usageStartMonth, "start", "", "Start month (YYYY-MM)")
	usageMonthlyCmd.Flags().StringVar(&usageEndMonth, "end", "", "End month (YYYY-MM)")
	usageHourlyCmd.Flags().StringVar(&usageDate, "date", "", "Date (YYYY-MM-DD, default today)")
}

func runUsageMonthly(cmd *cobra.Command, args []string) error {
	params := url.Values{}
	if usageStartMonth != "" {
		params.Set("start", usageStartMonth)
	}
	if usageEndMonth != "" {
		params.Set("end", usageEndMonth)
	}

	path := fmt.Sprintf("/api/v1/contracts/%s/usage/monthly", url.PathEscape(args[0]))
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result struct {
		ContractID string                    `json:"contract_id"`
		StartMonth string                    `json:"start_month"`
		EndMonth   string                    `json:"end_month"`
		Months     []models.MonthlyAggregate `json:"months"`
	}
	if err := getJSON(path, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Months) == 0 {
		fmt.Printf("No data between %s and %s.\n", result.StartMonth, result.EndMonth)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tTOTAL\tUNIT\tDAYS\tDAILY AVG\tCOST")
	fmt.Fprintln(w, "-----\t-----\t----\t----\t---------\t----")

	for _, m := range result.Months {
		cost := "-"
		if m.DollarValue != nil {
			cost = fmt.Sprintf("$%.2f", *m.DollarValue)
		}
		fmt.Fprintf(w, "%s\t%.2f\t%s\t%d\t%.2f\t%s\n",
			m.Month, m.Value, m.Unit, m.DaysWithData, m.DailyAverage, cost)
	}
	w.Flush()

	return nil
}

func runUsageHourly(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/api/v1/contracts/%s/usage/hourly", url.PathEscape(args[0]))
	if usageDate != "" {
		path += "?date=" + url.QueryEscape(usageDate)
	}

	var result models.HourlyUsage
	if err := getJSON(path, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Hours) == 0 {
		fmt.Printf("No data for %s.\n", result.Date.Format(models.DateLayout))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HOUR\tVALUE\tUNIT\tCOST")
	fmt.Fprintln(w, "----\t-----\t----\t----")

	for _, h := range result.Hours {
		cost := "-"
		if h.DollarValue != nil {
			cost = fmt.Sprintf("$%.4f", *h.DollarValue)
		}
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n",
			h.Timestamp.Format("15:04"), h.Value, h.Unit, cost)
	}
	w.Flush()

	total := fmt.Sprintf("%.2f", result.TotalValue)
	if result.TotalDollarValue != nil {
		total += fmt.Sprintf(" ($%.2f)", *result.TotalDollarValue)
	}
	fmt.Printf("\nTotal for %s: %s\n", result.Date.Format(models.DateLayout), total)
	return nil
}
