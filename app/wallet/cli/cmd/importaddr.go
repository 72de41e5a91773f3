package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Ask the node to watch the wallet account",
	RunE:  importRun,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func importRun(cmd *cobra.Command, args []string) error {
	w, err := loadWallet()
	if err != nil {
		return err
	}

	req := struct {
		Address string `json:"address"`
	}{
		Address: string(w.AccountID()),
	}

	var resp struct {
		Status    string `json:"status"`
		Rescanned int    `json:"rescanned"`
	}
	if err := call(http.MethodPost, "/v1/importaddress", req, &resp); err != nil {
		return err
	}

	fmt.Printf("%s: %s, rescanned %d blocks\n", w.AccountID(), resp.Status, resp.Rescanned)

	return nil
}
