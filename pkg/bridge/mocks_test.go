package bridge

// TODO: remove the mock impl and use mockery to generate mock

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/stablebridge/cctp-middleware/pkg/attestation"
	"github.com/stablebridge/cctp-middleware/pkg/chain"
)

// MockChainClient is a mock implementation of chain.Client
type MockChainClient struct {
	SimulateFunc     func(ctx context.Context, intent chain.TxIntent) (*chain.PreparedTx, error)
	SendFunc         func(ctx context.Context, tx *chain.PreparedTx) (string, error)
	AwaitReceiptFunc func(ctx context.Context, txHash string) (*chain.Receipt, error)
	ReadFunc         func(ctx context.Context, call chain.ContractCall) ([]byte, error)

	SimulateCalls int
	SendCalls     int
	AwaitCalls    int
	ReadCalls     int

	// SimulatedIntents records every simulated intent in order.
	SimulatedIntents []chain.TxIntent
}

func (m *MockChainClient) Simulate(ctx context.Context, intent chain.TxIntent) (*chain.PreparedTx, error) {
	m.SimulateCalls++
	m.SimulatedIntents = append(m.SimulatedIntents, intent)
	if m.SimulateFunc != nil {
		return m.SimulateFunc(ctx, intent)
	}
	// Nonce tracks the call count so each prepared tx hashes differently.
	tx := types.NewTransaction(uint64(m.SimulateCalls), intent.To, big.NewInt(0), 100_000, big.NewInt(1), intent.Data)
	return &chain.PreparedTx{Tx: tx}, nil
}

func (m *MockChainClient) Send(ctx context.Context, tx *chain.PreparedTx) (string, error) {
	m.SendCalls++
	if m.SendFunc != nil {
		return m.SendFunc(ctx, tx)
	}
	return tx.Hash(), nil
}

func (m *MockChainClient) AwaitReceipt(ctx context.Context, txHash string) (*chain.Receipt, error) {
	m.AwaitCalls++
	if m.AwaitReceiptFunc != nil {
		return m.AwaitReceiptFunc(ctx, txHash)
	}
	return &chain.Receipt{Status: chain.ReceiptStatusSuccess, TxHash: txHash}, nil
}

func (m *MockChainClient) Read(ctx context.Context, call chain.ContractCall) ([]byte, error) {
	m.ReadCalls++
	if m.ReadFunc != nil {
		return m.ReadFunc(ctx, call)
	}
	return make([]byte, 32), nil
}

// MockAttestationClient is a mock implementation of AttestationClient
type MockAttestationClient struct {
	GetFunc func(ctx context.Context, messageHash string) (*attestation.Result, error)

	GetCalls int
}

func (m *MockAttestationClient) Get(ctx context.Context, messageHash string) (*attestation.Result, error) {
	m.GetCalls++
	if m.GetFunc != nil {
		return m.GetFunc(ctx, messageHash)
	}
	return &attestation.Result{Status: attestation.StatusPending}, nil
}

var bytesABIType = func() abi.Type {
	t, err := abi.NewType("bytes", "", nil)
	if err != nil {
		panic(err)
	}
	return t
}()

// messageSentLog builds a MessageSent receipt log carrying the given
// raw message, as the MessageTransmitter would emit it.
func messageSentLog(transmitter common.Address, message []byte) chain.Log {
	data, err := abi.Arguments{{Type: bytesABIType}}.Pack(message)
	if err != nil {
		panic(err)
	}
	return chain.Log{
		Address: transmitter,
		Topics:  []common.Hash{chain.MessageSentTopic},
		Data:    data,
	}
}

// allowanceBytes encodes an allowance read return value.
func allowanceBytes(allowance *big.Int) []byte {
	out := make([]byte, 32)
	allowance.FillBytes(out)
	return out
}
