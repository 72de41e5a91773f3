// Package commands contains the functionality for the set of commands
// currently supported by the admin tool.
package commands

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/database"
	"github.com/ardanlabs/signchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/signchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/signchain/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/signchain/foundation/nameservice"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// Usage describes the supported commands.
const Usage = `usage:
  admin keys    <folder> <name>...
  admin genesis <folder> <out> <chain_id> <threshold> <signer,...> <name=value,...>
  admin blocks  <genesis> <disk|leveldb> <db_path>`

// Keys generates a private key file for every name in the folder.
func Keys(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("missing arguments\n%s", Usage)
	}

	folder := args[2]
	for _, name := range args[3:] {
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			return err
		}

		path := filepath.Join(folder, name+nameservice.KeyExt)
		if err := crypto.SaveECDSA(path, privateKey); err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", name, database.PublicKeyToAccountID(privateKey.PublicKey))
	}

	return nil
}

// Genesis writes a genesis file. Signers and allocations are named by the
// key files in the folder or given as addresses.
func Genesis(args []string) error {
	if len(args) != 8 {
		return fmt.Errorf("missing arguments\n%s", Usage)
	}

	ns, err := nameservice.New(args[2])
	if err != nil {
		return err
	}

	chainID, err := strconv.ParseUint(args[4], 10, 16)
	if err != nil {
		return fmt.Errorf("chain id: %w", err)
	}

	threshold, err := strconv.Atoi(args[5])
	if err != nil {
		return fmt.Errorf("threshold: %w", err)
	}

	gen := genesis.Genesis{
		Date:        time.Now().UTC(),
		ChainID:     uint16(chainID),
		Threshold:   threshold,
		Allocations: make(map[string]uint64),
	}

	for _, name := range strings.Split(args[6], ",") {
		accountID, err := ns.Resolve(name)
		if err != nil {
			return fmt.Errorf("signer %s: %w", name, err)
		}
		gen.Signers = append(gen.Signers, string(accountID))
	}

	for _, alloc := range strings.Split(args[7], ",") {
		name, valueStr, found := strings.Cut(alloc, "=")
		if !found {
			return fmt.Errorf("allocation %q is not name=value", alloc)
		}

		accountID, err := ns.Resolve(name)
		if err != nil {
			return fmt.Errorf("allocation %s: %w", name, err)
		}

		value, err := strconv.ParseUint(valueStr, 10, 64)
		if err != nil {
			return fmt.Errorf("allocation %s: %w", name, err)
		}

		gen.Allocations[string(accountID)] = value
	}

	if err := gen.Save(args[3]); err != nil {
		return err
	}

	fmt.Printf("genesis written to %s\n", args[3])

	return nil
}

// Blocks replays the chain in storage through validation and prints every
// block.
func Blocks(args []string, log *zap.SugaredLogger) error {
	if len(args) != 5 {
		return fmt.Errorf("missing arguments\n%s", Usage)
	}

	gen, err := genesis.Load(args[2])
	if err != nil {
		return err
	}

	var storage database.Serializer
	switch args[3] {
	case "disk":
		storage, err = disk.New(args[4])
	case "leveldb":
		storage, err = leveldb.New(args[4])
	default:
		err = fmt.Errorf("unknown storage %q", args[3])
	}
	if err != nil {
		return err
	}

	ev := func(v string, args ...any) {
		log.Debugw(fmt.Sprintf(v, args...))
	}

	db, err := database.New(gen, storage, ev)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Printf("Genesis Tx: %s\n", db.GenesisTxID())
	fmt.Printf("Head: %d %s\n\n", db.Head().Header.Number, db.Head().Hash())

	iter := db.ForEach()
	for block, err := iter.Next(); !iter.Done(); block, err = iter.Next() {
		if err != nil {
			return err
		}

		fmt.Printf("Block: %d  Hash: %s  Producer: %s  Seals: %d  Txs: %d\n",
			block.Header.Number, block.Hash(), block.Header.ProducerID, len(block.Proof), len(block.TxIDs()))

		for _, tx := range block.Values() {
			fmt.Printf("  Tx: %s  Inputs: %d  Outputs: %d\n", tx, len(tx.Inputs), len(tx.Outputs))
		}
	}

	return nil
}
