package public

import (
	"github.com/ardanlabs/signchain/foundation/blockchain/database"
)

type importAddress struct {
	Address string `json:"address" validate:"required"`
}

type connectHost struct {
	Host string `json:"host" validate:"required"`
}

type txID struct {
	TxID string `json:"txid"`
}

type generated struct {
	Hash   string   `json:"hash"`
	Number uint64   `json:"number"`
	Txs    []string `json:"txs"`
}

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
}

type unspent struct {
	database.Unspent
	Name string `json:"name"`
}

type walletTx struct {
	database.WalletTx
	Name string `json:"name"`
}

type sinceBlock struct {
	Transactions []walletTx `json:"transactions"`
	LastBlock    string     `json:"lastblock"`
}

type block struct {
	Number        uint64              `json:"number"`
	Hash          string              `json:"hash"`
	PrevBlockHash string              `json:"prev_block_hash"`
	TimeStamp     uint64              `json:"timestamp"`
	ProducerID    database.AccountID  `json:"producer"`
	ProducerName  string              `json:"producer_name"`
	TransRoot     string              `json:"trans_root"`
	Seals         []string            `json:"seals"`
	Transactions  []database.SignedTx `json:"trans"`
}
