package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	RunE:  balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) error {
	w, err := loadWallet()
	if err != nil {
		return err
	}

	fmt.Println("For Account:", w.AccountID())

	var resp struct {
		Balance uint64 `json:"balance"`
	}
	if err := call(http.MethodGet, fmt.Sprintf("/v1/getbalance/%s", w.AccountID()), nil, &resp); err != nil {
		return err
	}

	fmt.Println(resp.Balance)

	return nil
}
