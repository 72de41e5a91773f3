package cmd

import (
	"fmt"
	"net/http"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var (
	to    string
	value uint64
	fee   uint64
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	RunE:  sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Account to send to.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&fee, "fee", "f", 0, "Value burned on top of the payment.")
}

func sendRun(cmd *cobra.Command, args []string) error {
	w, err := loadWallet()
	if err != nil {
		return err
	}

	toID, err := database.ToAccountID(to)
	if err != nil {
		return err
	}

	// The node only lists outputs of watched accounts.
	var unspent []database.Unspent
	if err := call(http.MethodGet, fmt.Sprintf("/v1/listunspent/%s", w.AccountID()), nil, &unspent); err != nil {
		return err
	}

	signedTx, err := w.Transact(unspent, toID, value, fee)
	if err != nil {
		return err
	}

	var resp struct {
		TxID string `json:"txid"`
	}
	if err := call(http.MethodPost, "/v1/sendtransaction", signedTx, &resp); err != nil {
		return err
	}

	fmt.Println(resp.TxID)

	return nil
}
