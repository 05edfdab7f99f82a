package blockchain

import "context"

// TxOutput describes one output of a resolved transaction: the address it
// pays to (if decodable) and the amount, in the chain's native units.
type TxOutput struct {
	Address string
	Amount  string // decimal string; converted to a typed amount by the caller, which knows the asset
}

// TxInput describes one input of a resolved transaction: the outpoint it
// spends.
type TxInput struct {
	PrevTxID string
	PrevVout uint32
}

// ResolvedTx is the chain data the wallet Auditor needs to classify a
// transaction: its timestamp, inputs, and outputs.
type ResolvedTx struct {
	TxID      string
	Inputs    []TxInput
	Outputs   []TxOutput
	UnixTime  int64
}

// Client is the interface a blockchain backend implements so the Auditor
// can resolve bare txids (from a generic wallet CSV) into full transaction
// data. Production backends talk to a node or indexer API; tests supply an
// in-memory fake.
type Client interface {
	GetTx(ctx context.Context, txid string) (*ResolvedTx, error)
}
