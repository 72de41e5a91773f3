package database_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/signchain/foundation/blockchain/storage/memory"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const chainID = 1

// =============================================================================

func Test_Append(t *testing.T) {
	alice, aliceID := account(t, "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	_, bobID := generate(t)

	t.Log("Given the need to append blocks to the ledger.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen handling a block that spends a genesis output.", testID)
		{
			db, store := open(t, aliceID)

			genOut := database.OutPoint{TxID: db.GenesisTxID(), Index: 0}
			tx := sign(t, alice, []database.OutPoint{genOut}, []database.TxOut{
				{Value: 100, To: bobID},
				{Value: 890, To: aliceID},
			})

			block := newBlock(t, db, aliceID, tx)
			if err := db.Append(block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append the block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append the block.", success, testID)

			if got := db.Head().Header.Number; got != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have moved the head to 1, got %d.", failed, testID, got)
			}
			t.Logf("\t%s\tTest %d:\tShould have moved the head to 1.", success, testID)

			entry, err := db.Lookup(genOut)
			if err != nil || !entry.Spent {
				t.Fatalf("\t%s\tTest %d:\tShould have marked the genesis output spent: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have marked the genesis output spent.", success, testID)

			entry, err = db.Lookup(database.OutPoint{TxID: tx.ID(), Index: 0})
			if err != nil || entry.Spent || entry.Output.Value != 100 || entry.Block != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have created the new output: %+v %v", failed, testID, entry, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have created the new output.", success, testID)

			got, err := db.GetBlock(1)
			if err != nil || got.Hash() != block.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the block back: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to read the block back.", success, testID)

			num, err := db.BlockNumber(block.Hash())
			if err != nil || num != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould be able to find the block by hash: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to find the block by hash.", success, testID)

			replay, err := database.New(db.Genesis(), store, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to replay storage: %v", failed, testID, err)
			}
			if replay.Head().Hash() != block.Hash() {
				t.Fatalf("\t%s\tTest %d:\tShould replay to the same head.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould replay to the same head.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen handling an empty block.", testID)
		{
			db, _ := open(t, aliceID)

			block := newBlock(t, db, aliceID)
			if err := db.Append(block); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append an empty block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append an empty block.", success, testID)

			if len(db.Head().Values()) != 0 || db.Head().Header.Number != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have a head with no transactions.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have a head with no transactions.", success, testID)
		}

		testID++
		t.Logf("\tTest %d:\tWhen a block spends an output created earlier in the same block.", testID)
		{
			db, _ := open(t, aliceID)

			tx1 := sign(t, alice, []database.OutPoint{{TxID: db.GenesisTxID(), Index: 0}}, []database.TxOut{{Value: 1000, To: aliceID}})
			tx2 := sign(t, alice, []database.OutPoint{{TxID: tx1.ID(), Index: 0}}, []database.TxOut{{Value: 1000, To: bobID}})

			if err := db.Append(newBlock(t, db, aliceID, tx1, tx2)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to chain transactions in a block: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to chain transactions in a block.", success, testID)

			entry, err := db.Lookup(database.OutPoint{TxID: tx1.ID(), Index: 0})
			if err != nil || !entry.Spent {
				t.Fatalf("\t%s\tTest %d:\tShould have spent the intermediate output.", failed, testID)
			}
			t.Logf("\t%s\tTest %d:\tShould have spent the intermediate output.", success, testID)
		}
	}
}

func Test_Reject(t *testing.T) {
	alice, aliceID := account(t, "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	mallory, malloryID := generate(t)

	type table struct {
		name  string
		build func(db *database.Database) database.Block
		err   error
		cause error
	}

	genOut := func(db *database.Database) []database.OutPoint {
		return []database.OutPoint{{TxID: db.GenesisTxID(), Index: 0}}
	}

	tt := []table{
		{
			name: "unknown",
			build: func(db *database.Database) database.Block {
				tx := sign(t, alice, []database.OutPoint{{TxID: "0x01", Index: 0}}, []database.TxOut{{Value: 1, To: malloryID}})
				return newBlock(t, db, aliceID, tx)
			},
			err:   database.ErrInvalidTransaction,
			cause: database.ErrUnknownInput,
		},
		{
			name: "doublespend",
			build: func(db *database.Database) database.Block {
				tx1 := sign(t, alice, genOut(db), []database.TxOut{{Value: 10, To: malloryID}})
				tx2 := sign(t, alice, genOut(db), []database.TxOut{{Value: 20, To: malloryID}})
				return newBlock(t, db, aliceID, tx1, tx2)
			},
			err:   database.ErrInvalidTransaction,
			cause: database.ErrDoubleSpend,
		},
		{
			name: "outoforder",
			build: func(db *database.Database) database.Block {
				tx1 := sign(t, alice, genOut(db), []database.TxOut{{Value: 1000, To: aliceID}})
				tx2 := sign(t, alice, []database.OutPoint{{TxID: tx1.ID(), Index: 0}}, []database.TxOut{{Value: 1000, To: malloryID}})
				return newBlock(t, db, aliceID, tx2, tx1)
			},
			err:   database.ErrInvalidTransaction,
			cause: database.ErrUnknownInput,
		},
		{
			name: "signature",
			build: func(db *database.Database) database.Block {
				tx := sign(t, mallory, genOut(db), []database.TxOut{{Value: 1000, To: malloryID}})
				return newBlock(t, db, aliceID, tx)
			},
			err:   database.ErrInvalidTransaction,
			cause: database.ErrInvalidTxSignature,
		},
		{
			name: "funds",
			build: func(db *database.Database) database.Block {
				tx := sign(t, alice, genOut(db), []database.TxOut{{Value: 1001, To: malloryID}})
				return newBlock(t, db, aliceID, tx)
			},
			err:   database.ErrInvalidTransaction,
			cause: database.ErrInsufficientFunds,
		},
		{
			name: "parent",
			build: func(db *database.Database) database.Block {
				block := newBlock(t, db, aliceID)
				block.Header.PrevBlockHash = "0x0102"
				return block
			},
			err:   database.ErrInvalidParent,
			cause: database.ErrInvalidParent,
		},
		{
			name: "number",
			build: func(db *database.Database) database.Block {
				block := newBlock(t, db, aliceID)
				block.Header.Number = 5
				return block
			},
			err:   database.ErrInvalidParent,
			cause: database.ErrInvalidParent,
		},
		{
			name: "root",
			build: func(db *database.Database) database.Block {
				tx := sign(t, alice, genOut(db), []database.TxOut{{Value: 10, To: malloryID}})
				block := newBlock(t, db, aliceID, tx)
				block.Header.TransRoot = "0x00"
				return block
			},
			err:   database.ErrBlockMalformed,
			cause: database.ErrBlockMalformed,
		},
	}

	t.Log("Given the need to reject blocks the ledger can't apply.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s block.", testID, tst.name)
			{
				f := func(t *testing.T) {
					db, _ := open(t, aliceID)
					block := tst.build(db)

					if err := db.Validate(block); !errors.Is(err, tst.err) || !errors.Is(err, tst.cause) {
						t.Fatalf("\t%s\tTest %d:\tShould fail validation with %v, got %v.", failed, testID, tst.cause, err)
					}
					t.Logf("\t%s\tTest %d:\tShould fail validation with %v.", success, testID, tst.cause)

					if err := db.Append(block); !errors.Is(err, tst.err) || !errors.Is(err, tst.cause) {
						t.Fatalf("\t%s\tTest %d:\tShould fail to append with %v, got %v.", failed, testID, tst.cause, err)
					}
					t.Logf("\t%s\tTest %d:\tShould fail to append with %v.", success, testID, tst.cause)

					if db.Head().Header.Number != 0 {
						t.Fatalf("\t%s\tTest %d:\tShould not have moved the head.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not have moved the head.", success, testID)

					entry, err := db.Lookup(genOut(db)[0])
					if err != nil || entry.Spent {
						t.Fatalf("\t%s\tTest %d:\tShould not have spent the genesis output.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not have spent the genesis output.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_DoubleSpendAcrossBlocks(t *testing.T) {
	alice, aliceID := account(t, "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	_, bobID := generate(t)

	t.Log("Given the need to tell a spent output from a missing one.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen an output spent in one block is spent again.", testID)
		{
			db, _ := open(t, aliceID)
			inputs := []database.OutPoint{{TxID: db.GenesisTxID(), Index: 0}}

			tx1 := sign(t, alice, inputs, []database.TxOut{{Value: 10, To: bobID}})
			if err := db.Append(newBlock(t, db, aliceID, tx1)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append the first spend: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to append the first spend.", success, testID)

			tx2 := sign(t, alice, inputs, []database.TxOut{{Value: 20, To: bobID}})
			_, _, err := database.CheckTx(chainID, tx2, db)
			if !errors.Is(err, database.ErrDoubleSpend) {
				t.Fatalf("\t%s\tTest %d:\tShould report a double spend, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould report a double spend.", success, testID)

			err = db.Append(newBlock(t, db, aliceID, tx2))
			if !errors.Is(err, database.ErrDoubleSpend) {
				t.Fatalf("\t%s\tTest %d:\tShould reject the second spend, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould reject the second spend.", success, testID)
		}
	}
}

func Test_Watch(t *testing.T) {
	alice, aliceID := account(t, "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	_, bobID := generate(t)

	t.Log("Given the need to index outputs of imported addresses.")
	{
		testID := 0
		t.Logf("\tTest %d:\tWhen importing addresses before and after a block.", testID)
		{
			db, _ := open(t, aliceID)

			if _, err := db.Balance(bobID); !errors.Is(err, database.ErrNotWatched) {
				t.Fatalf("\t%s\tTest %d:\tShould refuse the balance of an unknown address, got %v.", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould refuse the balance of an unknown address.", success, testID)

			if _, err := db.Watch(bobID); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to watch an address: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould be able to watch an address.", success, testID)

			tx := sign(t, alice, []database.OutPoint{{TxID: db.GenesisTxID(), Index: 0}}, []database.TxOut{
				{Value: 10, To: bobID},
				{Value: 15, To: bobID},
				{Value: 970, To: aliceID},
			})
			if err := db.Append(newBlock(t, db, aliceID, tx)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append the block: %v", failed, testID, err)
			}

			balance, err := db.Balance(bobID)
			if err != nil || balance != 25 {
				t.Fatalf("\t%s\tTest %d:\tShould have a balance of 25, got %d: %v", failed, testID, balance, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have a balance of 25.", success, testID)

			if err := db.Append(newBlock(t, db, aliceID)); err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to append an empty block: %v", failed, testID, err)
			}

			blocks, err := db.Watch(aliceID)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to watch after the fact: %v", failed, testID, err)
			}
			if blocks != 2 {
				t.Fatalf("\t%s\tTest %d:\tShould have found the address in 2 blocks, got %d.", failed, testID, blocks)
			}
			t.Logf("\t%s\tTest %d:\tShould have found the address in 2 blocks.", success, testID)

			unspent, err := db.Unspent(aliceID)
			if err != nil || len(unspent) != 1 || unspent[0].Output.Value != 970 {
				t.Fatalf("\t%s\tTest %d:\tShould have rescanned the unspent outputs: %+v %v", failed, testID, unspent, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have rescanned the unspent outputs.", success, testID)

			history, err := db.History(0)
			if err != nil {
				t.Fatalf("\t%s\tTest %d:\tShould be able to read the history: %v", failed, testID, err)
			}

			var received, sent int
			for _, wtx := range history {
				switch wtx.Category {
				case database.CategoryReceive:
					received++
				case database.CategorySend:
					sent++
				}
			}
			if received != 4 || sent != 1 {
				t.Fatalf("\t%s\tTest %d:\tShould have 4 receives and 1 send, got %d and %d.", failed, testID, received, sent)
			}
			t.Logf("\t%s\tTest %d:\tShould have 4 receives and 1 send.", success, testID)

			history, err = db.History(3)
			if err != nil || len(history) != 0 {
				t.Fatalf("\t%s\tTest %d:\tShould have no history past the head: %v", failed, testID, err)
			}
			t.Logf("\t%s\tTest %d:\tShould have no history past the head.", success, testID)
		}
	}
}

// =============================================================================

func open(t *testing.T, funded database.AccountID) (*database.Database, *memory.Memory) {
	store, err := memory.New()
	if err != nil {
		t.Fatalf("Should be able to construct memory storage: %v", err)
	}

	gen := genesis.Genesis{
		ChainID:     chainID,
		Signers:     []string{string(funded)},
		Allocations: map[string]uint64{string(funded): 1000},
	}

	db, err := database.New(gen, store, nil)
	if err != nil {
		t.Fatalf("Should be able to open database: %v", err)
	}

	return db, store
}

func account(t *testing.T, hexKey string) (*ecdsa.PrivateKey, database.AccountID) {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("Should be able to load private key: %v", err)
	}

	return pk, database.PublicKeyToAccountID(pk.PublicKey)
}

func generate(t *testing.T) (*ecdsa.PrivateKey, database.AccountID) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("Should be able to generate private key: %v", err)
	}

	return pk, database.PublicKeyToAccountID(pk.PublicKey)
}

func sign(t *testing.T, pk *ecdsa.PrivateKey, inputs []database.OutPoint, outputs []database.TxOut) database.SignedTx {
	tx := database.Tx{ChainID: chainID, Inputs: inputs, Outputs: outputs}

	signedTx, err := tx.Sign(pk)
	if err != nil {
		t.Fatalf("Should be able to sign transaction: %v", err)
	}

	return signedTx
}

func newBlock(t *testing.T, db *database.Database, producer database.AccountID, txs ...database.SignedTx) database.Block {
	block, err := database.NewBlock(producer, chainID, db.Head(), txs)
	if err != nil {
		t.Fatalf("Should be able to construct block: %v", err)
	}

	return block
}
