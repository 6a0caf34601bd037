package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/stablebridge/cctp-middleware/pkg/config"
)

// EVMClient implements Client against an EVM JSON-RPC endpoint.
type EVMClient struct {
	name       string
	cfg        *config.ChainConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	logger     *zap.Logger
}

// NewEVMClient connects to the chain's RPC endpoint and loads the
// signing key.
func NewEVMClient(name string, cfg *config.ChainConfig, logger *zap.Logger) (*EVMClient, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", name, err)
	}

	privateKey, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	logger.Info("Connected to chain",
		zap.String("chain", name),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("account", address.Hex()))

	return &EVMClient{
		name:       name,
		cfg:        cfg,
		client:     client,
		privateKey: privateKey,
		address:    address,
		chainID:    big.NewInt(cfg.ChainID),
		logger:     logger,
	}, nil
}

// Close closes the underlying RPC connection.
func (c *EVMClient) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Address returns the signing account address.
func (c *EVMClient) Address() common.Address {
	return c.address
}

// Simulate estimates gas for the intent and returns a signed
// transaction ready for submission.
func (c *EVMClient) Simulate(ctx context.Context, intent TxIntent) (*PreparedTx, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.suggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	value := intent.Value
	if value == nil {
		value = big.NewInt(0)
	}

	gasLimit := intent.GasLimit
	if gasLimit == 0 {
		msg := ethereum.CallMsg{
			From:  c.address,
			To:    &intent.To,
			Value: value,
			Data:  intent.Data,
		}
		gasLimit, err = c.client.EstimateGas(ctx, msg)
		if err != nil {
			return nil, fmt.Errorf("gas estimation failed: %w", err)
		}
		if c.cfg.GasLimit > 0 && gasLimit > c.cfg.GasLimit {
			gasLimit = c.cfg.GasLimit
		}
	}

	tx := types.NewTransaction(nonce, intent.To, value, gasLimit, gasPrice, intent.Data)

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return &PreparedTx{Tx: signed}, nil
}

// Send broadcasts a prepared transaction and returns its hash.
func (c *EVMClient) Send(ctx context.Context, tx *PreparedTx) (string, error) {
	if err := c.client.SendTransaction(ctx, tx.Tx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	hash := tx.Hash()
	c.logger.Info("Transaction submitted",
		zap.String("chain", c.name),
		zap.String("tx_hash", hash))

	return hash, nil
}

// AwaitReceipt blocks until the transaction is mined and returns its
// receipt. Cancellation is the caller's responsibility through ctx.
func (c *EVMClient) AwaitReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	hash := common.HexToHash(txHash)

	interval := c.cfg.ReceiptPollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return toReceipt(receipt), nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Read performs a read-only contract call against the latest block.
func (c *EVMClient) Read(ctx context.Context, call ContractCall) ([]byte, error) {
	msg := ethereum.CallMsg{
		From: c.address,
		To:   &call.To,
		Data: call.Data,
	}
	out, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	return out, nil
}

func (c *EVMClient) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	if c.cfg.MaxGasPrice != "" {
		maxGasPrice := new(big.Int)
		maxGasPrice.SetString(c.cfg.MaxGasPrice, 10)

		if gasPrice.Cmp(maxGasPrice) > 0 {
			c.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("chain", c.name),
				zap.String("suggested", gasPrice.String()),
				zap.String("max", maxGasPrice.String()))
			gasPrice = maxGasPrice
		}
	}

	return gasPrice, nil
}

func toReceipt(r *types.Receipt) *Receipt {
	logs := make([]Log, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = Log{
			Address: l.Address,
			Topics:  l.Topics,
			Data:    l.Data,
		}
	}
	return &Receipt{
		Status: r.Status,
		TxHash: r.TxHash.Hex(),
		Logs:   logs,
	}
}
