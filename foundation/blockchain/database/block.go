package database

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/signchain/foundation/blockchain/merkle"
	"github.com/ardanlabs/signchain/foundation/blockchain/signature"
)

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64    `json:"number"`          // Ethereum: Block number in the chain.
	PrevBlockHash string    `json:"prev_block_hash"` // Bitcoin: Hash of the previous block in the chain.
	TimeStamp     uint64    `json:"timestamp"`       // Bitcoin: Time the block was produced in milliseconds.
	ChainID       uint16    `json:"chain_id"`        // Ethereum: The chain id that is listed in the genesis file.
	ProducerID    AccountID `json:"producer"`        // Account of the node that assembled the block.
	TransRoot     string    `json:"trans_root"`      // Bitcoin/Ethereum: Merkle root hash of the transactions in this block.
}

// Seal is a signature over the block header by a member of the signer set.
type Seal struct {
	V *big.Int `json:"v"`
	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
}

// Signer recovers the account that produced the seal for the header.
func (sl Seal) Signer(header BlockHeader) (AccountID, error) {
	addr, err := signature.FromAddress(header, sl.V, sl.R, sl.S)
	if err != nil {
		return "", err
	}

	return AccountID(addr), nil
}

// String implements the fmt.Stringer interface for logging.
func (sl Seal) String() string {
	return signature.SignatureString(sl.V, sl.R, sl.S)
}

// =============================================================================

// Block represents a group of transactions batched together and sealed by
// one or more authorized signers.
type Block struct {
	Header BlockHeader
	Proof  []Seal
	Trans  *merkle.Tree[SignedTx]
}

// NewBlock assembles an unsealed block on top of the parent block.
func NewBlock(producerID AccountID, chainID uint16, parent Block, trans []SignedTx) (Block, error) {
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return Block{}, err
	}

	// Never go backwards in time even when the clock does.
	ts := uint64(time.Now().UTC().UnixMilli())
	if ts < parent.Header.TimeStamp {
		ts = parent.Header.TimeStamp
	}

	nb := Block{
		Header: BlockHeader{
			Number:        parent.Header.Number + 1,
			PrevBlockHash: parent.Hash(),
			TimeStamp:     ts,
			ChainID:       chainID,
			ProducerID:    producerID,
			TransRoot:     tree.RootHex(),
		},
		Trans: tree,
	}

	return nb, nil
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {
	if b.Header.Number == 0 {
		return signature.ZeroHash
	}

	// CORE NOTE: Hashing the block header and not the whole block so the
	// blockchain can be cryptographically checked by only needing block
	// headers. The seals sign this same header so they are not part of it.

	return signature.Hash(b.Header)
}

// Seal signs the header with the private key and attaches the signature to
// the block's proof.
func (b *Block) Seal(privateKey *ecdsa.PrivateKey) error {
	v, r, s, err := signature.Sign(b.Header, privateKey)
	if err != nil {
		return err
	}

	b.Proof = append(b.Proof, Seal{V: v, R: r, S: s})

	return nil
}

// Values returns the transactions in the block in order.
func (b Block) Values() []SignedTx {
	if b.Trans == nil {
		return nil
	}
	return b.Trans.Values()
}

// TxIDs returns the ids of the transactions in the block in order.
func (b Block) TxIDs() []string {
	values := b.Values()

	ids := make([]string, len(values))
	for i, tx := range values {
		ids[i] = tx.ID()
	}

	return ids
}

// checkFormat performs the checks on the block that don't require the
// parent state.
func (b Block) checkFormat(chainID uint16) error {
	if b.Header.ChainID != chainID {
		return fmt.Errorf("%w: wrong chain id, got %d, exp %d", ErrBlockMalformed, b.Header.ChainID, chainID)
	}

	if !b.Header.ProducerID.IsAccountID() {
		return fmt.Errorf("%w: producer account is not properly formatted", ErrBlockMalformed)
	}

	if b.Trans == nil {
		return fmt.Errorf("%w: missing transactions", ErrBlockMalformed)
	}

	if b.Header.TransRoot != b.Trans.RootHex() {
		return fmt.Errorf("%w: merkle root does not match transactions, got %s, exp %s", ErrBlockMalformed, b.Trans.RootHex(), b.Header.TransRoot)
	}

	return nil
}

// =============================================================================

// BlockData represents what can be serialized to disk and over the network.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Proof  []Seal      `json:"proof"`
	Trans  []SignedTx  `json:"trans"`
}

// NewBlockData constructs block data from a block.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Proof:  block.Proof,
		Trans:  block.Values(),
	}
}

// ToBlock converts a storage block into a database block. The merkle tree
// is rebuilt from the transactions.
func ToBlock(blockData BlockData) (Block, error) {
	tree, err := merkle.NewTree(blockData.Trans)
	if err != nil {
		return Block{}, err
	}

	block := Block{
		Header: blockData.Header,
		Proof:  blockData.Proof,
		Trans:  tree,
	}

	if blockData.Hash != "" && blockData.Hash != block.Hash() {
		return Block{}, fmt.Errorf("%w: hash does not match header, got %s, exp %s", ErrBlockMalformed, blockData.Hash, block.Hash())
	}

	return block, nil
}
