package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/signchain/foundation/blockchain/mempool"
	"github.com/ardanlabs/signchain/foundation/blockchain/nettest"
	"github.com/ardanlabs/signchain/foundation/blockchain/signer"
	"github.com/ardanlabs/signchain/foundation/blockchain/state"
	"github.com/ardanlabs/signchain/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/signchain/foundation/blockchain/wallet"
	"github.com/ardanlabs/signchain/foundation/blockchain/worker"
	"github.com/ardanlabs/signchain/foundation/retry"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	chainID      = 1
	signerECDSA  = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	syncInterval = 100 * time.Millisecond
)

// settle is the bounded wait used for nodes to converge.
var settle = retry.Policy{Interval: 50 * time.Millisecond, Attempts: 100}

// =============================================================================

func Test_RejectReason(t *testing.T) {
	tt := []struct {
		name string
		err  error
		exp  string
	}{
		{"missing", fmt.Errorf("input: %w", database.ErrUnknownInput), state.RejectInputsMissing},
		{"spent", database.ErrDoubleSpend, state.RejectInputsSpent},
		{"conflict", fmt.Errorf("%w: %w", database.ErrDoubleSpend, mempool.ErrConflict), state.RejectMempoolConflict},
		{"known", mempool.ErrAlreadyKnown, state.RejectAlreadyKnown},
		{"signature", database.ErrInvalidTxSignature, state.RejectSignature},
		{"belowout", database.ErrInsufficientFunds, state.RejectBelowOut},
		{"prevblk", database.ErrInvalidParent, state.RejectPrevBlock},
		{"blktxns", fmt.Errorf("%w: %w", database.ErrInvalidTransaction, database.ErrUnknownInput), state.RejectBlockTxns},
		{"proof", signer.ErrInvalidSignature, state.RejectBlockProof},
		{"notauthorized", signer.ErrNotAuthorized, state.RejectBlockProof},
		{"timeout", fmt.Errorf("connect: %w", retry.ErrTimeout), state.RejectTimeout},
		{"notconnected", state.ErrNotConnected, state.RejectNotConnected},
		{"other", errors.New("boom"), ""},
		{"nil", nil, ""},
	}

	t.Log("Given the need to render errors as stable reasons.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling a %s error.", testID, tst.name)
				{
					got := state.RejectReason(tst.err)
					if got != tst.exp {
						t.Fatalf("\t%s\tTest %d:\tShould get %q, got %q.", failed, testID, tst.exp, got)
					}
					t.Logf("\t%s\tTest %d:\tShould get %q.", success, testID, tst.exp)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Admission(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	alice := wallet.New(generateKey(t), chainID)
	bob := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID())
	nodeA := newNode(t, nettest.New(), "A", gen, false, signerKey)

	t.Log("Given the need to admit wallet transactions.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen submitting and resubmitting transactions.", testID)
		{
			tx := transact(t, nodeA, alice, bob.AccountID(), 10)

			id, err := nodeA.SubmitWalletTransaction(tx)
			if err != nil || id != tx.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to submit the transaction.", success, testID)

			_, err = nodeA.SubmitWalletTransaction(tx)
			if got := state.RejectReason(err); got != state.RejectAlreadyKnown {
				t.Fatalf("\t%s\tTest %d:\tShould get %q on resubmit, got %q.", failed, testID, state.RejectAlreadyKnown, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q on resubmit.", success, testID, state.RejectAlreadyKnown)

			conflict := transact(t, nodeA, alice, bob.AccountID(), 20)
			_, err = nodeA.SubmitWalletTransaction(conflict)
			if got := state.RejectReason(err); got != state.RejectMempoolConflict {
				t.Fatalf("\t%s\tTest %d:\tShould get %q for a competing spend, got %q.", failed, testID, state.RejectMempoolConflict, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q for a competing spend.", success, testID, state.RejectMempoolConflict)

			if _, err := nodeA.GenerateBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a block: %v", failed, testID, err)
			}

			_, err = nodeA.SubmitWalletTransaction(tx)
			if got := state.RejectReason(err); got != state.RejectAlreadyKnown {
				t.Fatalf("\t%s\tTest %d:\tShould get %q once confirmed, got %q.", failed, testID, state.RejectAlreadyKnown, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q once confirmed.", success, testID, state.RejectAlreadyKnown)

			_, err = nodeA.SubmitWalletTransaction(conflict)
			if got := state.RejectReason(err); got != state.RejectInputsSpent {
				t.Fatalf("\t%s\tTest %d:\tShould get %q for a confirmed spend, got %q.", failed, testID, state.RejectInputsSpent, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q for a confirmed spend.", success, testID, state.RejectInputsSpent)

			bogus := database.Unspent{
				OutPoint: database.OutPoint{TxID: "0x01", Index: 0},
				Output:   database.TxOut{Value: 100, To: alice.AccountID()},
			}
			missing, err := alice.Transact([]database.Unspent{bogus}, bob.AccountID(), 10, 0)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to build the transaction: %v", failed, testID, err)
			}

			_, err = nodeA.SubmitWalletTransaction(missing)
			if got := state.RejectReason(err); got != state.RejectInputsMissing {
				t.Fatalf("\t%s\tTest %d:\tShould get %q for an unknown input, got %q.", failed, testID, state.RejectInputsMissing, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q for an unknown input.", success, testID, state.RejectInputsMissing)
		}
	}
}

func Test_EmptyBlock(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	alice := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID())
	nodeA := newNode(t, nettest.New(), "A", gen, false, signerKey)

	t.Log("Given the need to produce blocks with an empty mempool.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen generating a block.", testID)
		{
			parent := nodeA.LatestBlock()

			block, err := nodeA.GenerateBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to generate a block.", success, testID)

			if block.Header.Number != parent.Header.Number+1 || len(block.TxIDs()) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould get an empty block at %d, got %d with %d txs.", failed, testID, parent.Header.Number+1, block.Header.Number, len(block.TxIDs()))
			}
			t.Logf("\t%s\tTest %d:\tShould get an empty block at %d.", success, testID, parent.Header.Number+1)

			info := nodeA.Info()
			if info.Blocks != 1 || info.LastBlock != block.Hash() || !info.Signer {
				t.Fatalf("\t%s\tTest %d:\tShould advance the head: %+v", failed, testID, info)
			}
			t.Logf("\t%s\tTest %d:\tShould advance the head.", success, testID)
		}
	}
}

func Test_UnauthorizedProducer(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	outsiderKey := generateKey(t)
	alice := wallet.New(generateKey(t), chainID)
	carol := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID())

	net := nettest.New()
	nodeA := newNode(t, net, "A", gen, true, signerKey)
	nodeB := newNode(t, net, "B", gen, true, outsiderKey)

	connect(t, nodeB, nodeA)

	t.Log("Given the need to refuse blocks from producers outside the signer set.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the unauthorized node generates a block.", testID)
		{
			tx := transact(t, nodeB, alice, carol.AccountID(), 10)
			if _, err := nodeB.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to submit the transaction.", success, testID)

			_, err := nodeB.GenerateBlock(context.Background())
			if got := state.RejectReason(err); got != state.RejectBlockProof {
				t.Fatalf("\t%s\tTest %d:\tShould get %q, got %q.", failed, testID, state.RejectBlockProof, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q.", success, testID, state.RejectBlockProof)

			if nodeB.Info().Blocks != 0 || nodeB.Info().Signer {
				t.Fatalf("\t%s\tTest %d:\tShould leave the head unchanged: %+v", failed, testID, nodeB.Info())
			}
			t.Logf("\t%s\tTest %d:\tShould leave the head unchanged.", success, testID)

			if ids := nodeB.MempoolIDs(); len(ids) != 1 || ids[0] != tx.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould keep the transaction in the mempool: %v", failed, testID, ids)
			}
			t.Logf("\t%s\tTest %d:\tShould keep the transaction in the mempool.", success, testID)

			waitMempools(t, testID, nodeA, nodeB)

			if nodeA.Info().Blocks != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould leave the authorized node unchanged.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the authorized node unchanged.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen an outsider proposes a sealed block.", testID)
		{
			outsiderID := database.PublicKeyToAccountID(outsiderKey.PublicKey)

			block, err := database.NewBlock(outsiderID, chainID, nodeA.LatestBlock(), nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to construct the block: %v", failed, testID, err)
			}
			if err := block.Seal(outsiderKey); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to seal the block: %v", failed, testID, err)
			}

			err = nodeA.ProcessProposedBlock("B", database.NewBlockData(block))
			if got := state.RejectReason(err); got != state.RejectBlockProof {
				t.Fatalf("\t%s\tTest %d:\tShould get %q, got %q.", failed, testID, state.RejectBlockProof, got)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q.", success, testID, state.RejectBlockProof)

			if nodeA.Info().Blocks != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not commit any part of the block.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not commit any part of the block.", success, testID)
		}
	}
}

func Test_Isolated(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	alice := wallet.New(generateKey(t), chainID)
	bob := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID())

	net := nettest.New()
	nodeA := newNode(t, net, "A", gen, true, signerKey)
	nodeB := newNode(t, net, "B", gen, true)

	t.Log("Given the need to keep unconnected nodes apart.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen sending a transaction to one node.", testID)
		{
			tx := transact(t, nodeB, alice, bob.AccountID(), 10)
			if _, err := nodeB.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to submit the transaction.", success, testID)

			if nodeA.Info().Connections != 0 || nodeB.Info().Connections != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould have no connections.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have no connections.", success, testID)

			short := retry.Policy{Interval: 50 * time.Millisecond, Attempts: 10}
			err := retry.Poll(context.Background(), short, func() bool {
				return len(nodeA.MempoolIDs()) > 0
			})
			if !errors.Is(err, retry.ErrTimeout) {
				t.Fatalf("\t%s\tTest %d:\tShould time out waiting for the transaction, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould time out waiting for the transaction.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen connecting to an unreachable host.", testID)
		{
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := nodeA.Connect(ctx, "nowhere")
			if got := state.RejectReason(err); got != state.RejectTimeout {
				t.Fatalf("\t%s\tTest %d:\tShould get %q, got %v.", failed, testID, state.RejectTimeout, err)
			}
			t.Logf("\t%s\tTest %d:\tShould get %q.", success, testID, state.RejectTimeout)

			if got := nodeA.ConnStates()["nowhere"]; got != "disconnected" {
				t.Fatalf("\t%s\tTest %d:\tShould leave the connection disconnected, got %q.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould leave the connection disconnected.", success, testID)
		}
	}
}

func Test_Sync(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	alice := wallet.New(generateKey(t), chainID)
	bob := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID())

	net := nettest.New()
	nodeA := newNode(t, net, "A", gen, true, signerKey)
	nodeB := newNode(t, net, "B", gen, true)

	connect(t, nodeB, nodeA)

	t.Log("Given the need to keep connected nodes in sync.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a transaction is sent to the non signing node.", testID)
		{
			tx := transact(t, nodeB, alice, bob.AccountID(), 10)
			if _, err := nodeB.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to submit the transaction.", success, testID)

			waitMempools(t, testID, nodeA, nodeB)

			block, err := nodeA.GenerateBlock(context.Background())
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a block: %v", failed, testID, err)
			}
			if ids := block.TxIDs(); len(ids) != 1 || ids[0] != tx.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould include the transaction in the block: %v", failed, testID, ids)
			}
			t.Logf("\t%s\tTest %d:\tShould include the transaction in the block.", success, testID)

			waitLastBlock(t, testID, nodeA, nodeB)

			err = retry.Poll(context.Background(), settle, func() bool {
				return len(nodeB.MempoolIDs()) == 0
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould evict the transaction on both nodes: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould evict the transaction on both nodes.", success, testID)

			if _, err := nodeB.ImportAddress(string(bob.AccountID())); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to import the address: %v", failed, testID, err)
			}
			balance, err := nodeB.Balance(string(bob.AccountID()))
			if err != nil || balance != 10 {
				t.Fatalf("\t%s\tTest %d:\tShould see the payment on the other node, got %d: %v", failed, testID, balance, err)
			}
			t.Logf("\t%s\tTest %d:\tShould see the payment on the other node.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a new node joins late.", testID)
		{
			nodeC := newNode(t, net, "C", gen, true)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := nodeC.Connect(ctx, "A"); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to connect: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to connect.", success, testID)

			if nodeC.Info().LastBlock != nodeA.Info().LastBlock {
				t.Fatalf("\t%s\tTest %d:\tShould pull the chain during the handshake.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould pull the chain during the handshake.", success, testID)
		}
	}
}

func Test_Partition(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	alice := wallet.New(generateKey(t), chainID)
	bob := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID())

	net := nettest.New()
	nodeA := newNode(t, net, "A", gen, true, signerKey)
	nodeB := newNode(t, net, "B", gen, true)

	connect(t, nodeB, nodeA)

	t.Log("Given the need to survive peers becoming unreachable.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen the link between two nodes is cut.", testID)
		{
			net.Cut("A", "B")

			if _, err := nodeA.GenerateBlock(context.Background()); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to generate a block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to generate a block.", success, testID)

			err := retry.Poll(context.Background(), settle, func() bool {
				return nodeA.Info().Connections == 0 && nodeB.Info().Connections == 0
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould drop the connection on both sides: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould drop the connection on both sides.", success, testID)

			if got := nodeB.ConnStates()["A"]; got != "disconnected" {
				t.Fatalf("\t%s\tTest %d:\tShould mark the peer disconnected, got %q.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould mark the peer disconnected.", success, testID)

			if nodeB.Info().Blocks != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould not receive the block while cut.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not receive the block while cut.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen the link is restored.", testID)
		{
			tx := transact(t, nodeB, alice, bob.AccountID(), 10)
			if _, err := nodeB.SubmitWalletTransaction(tx); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to submit the transaction.", success, testID)

			net.Heal("A", "B")

			err := retry.Poll(context.Background(), settle, func() bool {
				return nodeA.Info().Connections > 0 && nodeB.Info().Connections > 0
			})
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould reconnect both sides: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reconnect both sides.", success, testID)

			waitLastBlock(t, testID, nodeA, nodeB)
			waitMempools(t, testID, nodeA, nodeB)

			if ids := nodeA.MempoolIDs(); len(ids) != 1 || ids[0] != tx.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould carry the transaction over the healed link: %v", failed, testID, ids)
			}
			t.Logf("\t%s\tTest %d:\tShould carry the transaction over the healed link.", success, testID)
		}
	}
}

func Test_ResubmitDuringCommit(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	alice := wallet.New(generateKey(t), chainID)
	bob := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID())
	nodeA := newNode(t, nettest.New(), "A", gen, false, signerKey)

	t.Log("Given the need to report resubmissions consistently while blocks commit.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a transaction is resubmitted as its block commits.", testID)
		{
			for i := 0; i < 20; i++ {
				tx := transact(t, nodeA, alice, bob.AccountID(), 1)
				if _, err := nodeA.SubmitWalletTransaction(tx); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
				}

				generated := make(chan error, 1)
				go func() {
					_, err := nodeA.GenerateBlock(context.Background())
					generated <- err
				}()

				_, err := nodeA.SubmitWalletTransaction(tx)
				if err := <-generated; err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to generate a block: %v", failed, testID, err)
				}

				if got := state.RejectReason(err); got != state.RejectAlreadyKnown {
					t.Fatalf("\t%s\tTest %d:\tShould get %q on round %d, got %q.", failed, testID, state.RejectAlreadyKnown, i, got)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould get %q on every round.", success, testID, state.RejectAlreadyKnown)
		}
	}
}

func Test_EvictExact(t *testing.T) {
	signerKey := loadKey(t, signerECDSA)
	alice := wallet.New(generateKey(t), chainID)
	bob := wallet.New(generateKey(t), chainID)
	carol := wallet.New(generateKey(t), chainID)

	gen := newGenesis(signerKey, alice.AccountID(), bob.AccountID(), carol.AccountID())
	nodeA := newNode(t, nettest.New(), "A", gen, false)

	t.Log("Given the need to evict confirmed transactions from the mempool.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen a peer block confirms some of the mempool.", testID)
		{
			txAlice := transact(t, nodeA, alice, bob.AccountID(), 10)
			txBob := transact(t, nodeA, bob, carol.AccountID(), 10)
			txCarol := transact(t, nodeA, carol, alice.AccountID(), 10)
			for _, tx := range []database.SignedTx{txAlice, txBob, txCarol} {
				if _, err := nodeA.SubmitWalletTransaction(tx); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to submit the transaction: %v", failed, testID, err)
				}
			}
			t.Logf("\t%s\tTest %d:\tShould be able to submit the transactions.", success, testID)

			// The block carries a competing spend of carol's output.
			competing := transact(t, nodeA, carol, bob.AccountID(), 20)

			block := sealedBlock(t, nodeA, signerKey, txAlice, competing)
			if err := nodeA.ProcessProposedBlock("peer", database.NewBlockData(block)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould accept the block.", success, testID)

			ids := nodeA.MempoolIDs()
			if len(ids) != 1 || ids[0] != txBob.ID() {
				t.Fatalf("\t%s\tTest %d:\tShould keep only the unconfirmed transaction, got %v.", failed, testID, ids)
			}
			t.Logf("\t%s\tTest %d:\tShould keep only the unconfirmed transaction.", success, testID)

			if err := nodeA.ProcessProposedBlock("peer", database.NewBlockData(block)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould accept a block it already has: %v", failed, testID, err)
			}
			if nodeA.Info().Blocks != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould not commit the block twice.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould not commit the block twice.", success, testID)
		}
	}
}

// =============================================================================

func loadKey(t *testing.T, hexKey string) *ecdsa.PrivateKey {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("Should be able to load private key: %v", err)
	}

	return pk
}

func generateKey(t *testing.T) *ecdsa.PrivateKey {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate private key: %v", err)
	}

	return pk
}

func newGenesis(signerKey *ecdsa.PrivateKey, funded ...database.AccountID) genesis.Genesis {
	allocations := make(map[string]uint64)
	for _, accountID := range funded {
		allocations[string(accountID)] = 1000
	}

	return genesis.Genesis{
		Date:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ChainID:     chainID,
		Signers:     []string{string(database.PublicKeyToAccountID(signerKey.PublicKey))},
		Threshold:   1,
		Allocations: allocations,
	}
}

// newNode constructs a node reachable on the network. The worker is only
// started when the node needs to talk to peers.
func newNode(t *testing.T, net *nettest.Network, host string, gen genesis.Genesis, withWorker bool, keys ...*ecdsa.PrivateKey) *state.State {
	store, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to construct memory storage: %v", err)
	}

	st, err := state.New(state.Config{
		Host:          host,
		Genesis:       gen,
		Storage:       store,
		SignerKeys:    keys,
		Transport:     net.Transport(host),
		ConnectPolicy: retry.Policy{Interval: 20 * time.Millisecond, Attempts: 10},
	})
	if err != nil {
		t.Fatalf("Should be able to construct node %s: %v", host, err)
	}

	net.Register(st)

	if withWorker {
		worker.Run(st, syncInterval, nil)
	}

	t.Cleanup(func() {
		net.Unregister(host)
		st.Shutdown()
	})

	return st
}

// connect connects the node to the peer and waits for both sides to report
// a synced connection.
func connect(t *testing.T, from *state.State, to *state.State) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := from.Connect(ctx, to.Host()); err != nil {
		t.Fatalf("Should be able to connect %s to %s: %v", from.Host(), to.Host(), err)
	}

	err := retry.Poll(ctx, settle, func() bool {
		return from.Info().Connections > 0 && to.Info().Connections > 0
	})
	if err != nil {
		t.Fatalf("Should see both sides of %s and %s connected: %v", from.Host(), to.Host(), err)
	}
}

// transact builds a transaction from the wallet using the unspent outputs
// the node knows for it.
func transact(t *testing.T, st *state.State, from *wallet.Wallet, to database.AccountID, value uint64) database.SignedTx {
	address := string(from.AccountID())

	if _, err := st.ImportAddress(address); err != nil {
		t.Fatalf("Should be able to import address: %v", err)
	}

	unspent, err := st.ListUnspent(address)
	if err != nil {
		t.Fatalf("Should be able to list unspent: %v", err)
	}

	tx, err := from.Transact(unspent, to, value, 0)
	if err != nil {
		t.Fatalf("Should be able to build transaction: %v", err)
	}

	return tx
}

func sealedBlock(t *testing.T, st *state.State, key *ecdsa.PrivateKey, txs ...database.SignedTx) database.Block {
	producerID := database.PublicKeyToAccountID(key.PublicKey)

	block, err := database.NewBlock(producerID, chainID, st.LatestBlock(), txs)
	if err != nil {
		t.Fatalf("Should be able to construct block: %v", err)
	}

	if err := block.Seal(key); err != nil {
		t.Fatalf("Should be able to seal block: %v", err)
	}

	return block
}

func waitMempools(t *testing.T, testID int, nodes ...*state.State) {
	err := retry.Poll(context.Background(), settle, func() bool {
		exp := sorted(nodes[0].MempoolIDs())
		for _, node := range nodes[1:] {
			if fmt.Sprint(sorted(node.MempoolIDs())) != fmt.Sprint(exp) {
				return false
			}
		}
		return len(exp) > 0
	})
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould reach the same mempool on every node: %v", failed, testID, err)
	}
	t.Logf("\t%s\tTest %d:\tShould reach the same mempool on every node.", success, testID)
}

func waitLastBlock(t *testing.T, testID int, nodes ...*state.State) {
	err := retry.Poll(context.Background(), settle, func() bool {
		exp, err := nodes[0].ListSinceBlock("")
		if err != nil {
			return false
		}
		for _, node := range nodes[1:] {
			got, err := node.ListSinceBlock("")
			if err != nil || got.LastBlock != exp.LastBlock {
				return false
			}
		}
		return true
	})
	if err != nil {
		t.Fatalf("\t%s\tTest %d:\tShould reach the same last block on every node: %v", failed, testID, err)
	}
	t.Logf("\t%s\tTest %d:\tShould reach the same last block on every node.", success, testID)
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
