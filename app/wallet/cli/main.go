// This program is a wallet for the signchain node. It holds a private key,
// builds transactions from the unspent outputs the node reports and sends
// them.
package main

import "github.com/ardanlabs/signchain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
