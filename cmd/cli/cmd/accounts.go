package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wattsync/wattsync/pkg/models"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List accounts and contracts",
	Long:  `Display the accounts and contracts visible to the configured credentials.`,
	RunE:  runAccounts,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
}

func runAccounts(cmd *cobra.Command, args []string) error {
	var result struct {
		Accounts []models.Account `json:"accounts"`
	}
	if err := getJSON("/api/v1/accounts", &result); err != nil {
		return err
	}

	if outputFormat == "json" {
		return printJSON(result)
	}

	if len(result.Accounts) == 0 {
		fmt.Println("No accounts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tCONTRACT")
	fmt.Fprintln(w, "-------\t--------")

	for _, acct := range result.Accounts {
		for _, contract := range acct.Contracts {
			fmt.Fprintf(w, "%s\t%s\n", acct.AccountID, contract.ContractID)
		}
	}
	w.Flush()

	return nil
}
