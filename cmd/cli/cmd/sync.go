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
	syncContractID    string
	syncDaysBack      int
	syncMonths        int
	syncForce         bool
	backfillMonths    int
	backfillDeep      bool
	backfillStartDate string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger a sync of recent usage data",
	Long:  `Pull recent days and months from the upstream API into the local store.`,
	RunE:  runSync,
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill historical usage data",
	Long: `Pull historical usage into the local store.

By default this fetches a fixed window of monthly data. With --adaptive it
walks backward day by day until it finds the start of the account's history.`,
	RunE: runBackfill,
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status and backfill progress",
	RunE:  runSyncStatus,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backfillCmd)
	syncCmd.AddCommand(syncStatusCmd)

	syncCmd.Flags().StringVarP(&syncContractID, "contract", "c", "", "Sync a single contract")
	syncCmd.Flags().IntVar(&syncDaysBack, "days-back", 0, "Days of hourly data to cover")
	syncCmd.Flags().IntVar(&syncMonths, "months", 0, "Months of daily data to cover")
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "Refetch days and months already stored")
	backfillCmd.Flags().IntVar(&backfillMonths, "months", 0, "Months of history to fetch (fixed-window mode)")
	backfillCmd.Flags().BoolVar(&backfillDeep, "adaptive", false, "Walk backward until the start of history")
	backfillCmd.Flags().StringVar(&backfillStartDate, "start-date", "", "Adaptive walk start date (YYYY-MM-DD)")
	backfillCmd.Flags().StringVarP(&syncContractID, "contract", "c", "", "Backfill a single contract")
}

func runSync(cmd *cobra.Command, args []string) error {
	path := "/api/v1/sync"
	if syncContractID != "" {
		path += "/" + url.PathEscape(syncContractID)
	}

	params := url.Values{}
	if syncDaysBack > 0 {
		params.Set("days_back", fmt.Sprint(syncDaysBack))
	}
	if syncMonths > 0 {
		params.Set("months", fmt.Sprint(syncMonths))
	}
	if syncForce {
		params.Set("force", "true")
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result struct {
		Status  string      `json:"status"`
		Results interface{} `json:"results"`
	}
	if err := postJSON(path, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	fmt.Printf("Sync %s.\n", result.Status)
	return nil
}

func runBackfill(cmd *cobra.Command, args []string) error {
	var path string
	switch {
	case backfillDeep && syncContractID != "":
		path = fmt.Sprintf("/api/v1/sync/%s/backfill/adaptive", url.PathEscape(syncContractID))
	case backfillDeep:
		path = "/api/v1/sync/backfill/adaptive"
	default:
		path = "/api/v1/sync/backfill"
	}

	params := url.Values{}
	if backfillDeep && backfillStartDate != "" {
		params.Set("start_date", backfillStartDate)
	}
	if !backfillDeep && backfillMonths > 0 {
		params.Set("months", fmt.Sprint(backfillMonths))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result map[string]interface{}
	if err := postJSON(path, &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	if status, ok := result["status"].(string); ok && status == "started" {
		fmt.Println("Adaptive backfill started. Watch it with: wattsync sync status")
		return nil
	}
	fmt.Println("Backfill completed.")
	return nil
}

func runSyncStatus(cmd *cobra.Command, args []string) error {
	var status models.SyncStatus
	if err := getJSON("/api/v1/sync/status", &status); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(status)
	}

	if status.Running {
		fmt.Println("Sync: running")
	} else {
		fmt.Println("Sync: idle")
	}

	if len(status.Progress) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CONTRACT\tSTATUS\tDAYS\tSYNCED\tEMPTY\tCURRENT\tOLDEST")
	fmt.Fprintln(w, "--------\t------\t----\t------\t-----\t-------\t------")

	for contractID, p := range status.Progress {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			contractID, p.Status, p.DaysProcessed, p.HourlySynced,
			p.HourlyEmpty, p.CurrentDate, p.OldestDataDate)
	}
	w.Flush()

	return nil
}
