// Package chain provides the minimal transaction client the bridge
// orchestrator drives against a source or destination chain.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxIntent describes a transaction before simulation. Gas and nonce
// are filled in by the client.
type TxIntent struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// PreparedTx is a signed transaction ready for submission.
type PreparedTx struct {
	Tx *types.Transaction
}

// Hash returns the transaction hash of the prepared transaction.
func (p *PreparedTx) Hash() string {
	return p.Tx.Hash().Hex()
}

// ContractCall describes a read-only contract call.
type ContractCall struct {
	To   common.Address
	Data []byte
}

// Log is a single receipt log entry. The orchestrator treats logs as
// opaque and matches only on Address and Topics[0].
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	Status uint64
	TxHash string
	Logs   []Log
}

// ReceiptStatusSuccess is the receipt status of a successfully
// executed transaction.
const ReceiptStatusSuccess = types.ReceiptStatusSuccessful

// Succeeded reports whether the transaction executed without revert.
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccess
}

// Client is the chain access boundary consumed by the orchestrator:
// simulate and sign a transaction, broadcast it, block for its
// receipt, and perform read-only contract calls. Implementations own
// nonce management, gas pricing and receipt-wait timeouts.
type Client interface {
	Simulate(ctx context.Context, intent TxIntent) (*PreparedTx, error)
	Send(ctx context.Context, tx *PreparedTx) (string, error)
	AwaitReceipt(ctx context.Context, txHash string) (*Receipt, error)
	Read(ctx context.Context, call ContractCall) ([]byte, error)
}
