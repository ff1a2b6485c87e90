package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const unlockSeconds = 30

// ReceiptConfig bounds receipt polling.
type ReceiptConfig struct {
	Interval time.Duration
	Attempts int
}

// Client wraps go-ethereum RPC for one ledger and implements Gateway.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	receipts  ReceiptConfig

	mu          sync.RWMutex
	passphrases map[common.Address]string
}

// NewClient creates a new ledger client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string, receipts ReceiptConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	if receipts.Interval <= 0 {
		receipts.Interval = 3 * time.Second
	}
	if receipts.Attempts <= 0 {
		receipts.Attempts = 20
	}

	return &Client{
		rpcClient:   rpcClient,
		ethClient:   ethclient.NewClient(rpcClient),
		receipts:    receipts,
		passphrases: make(map[common.Address]string),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// RegisterAccount records the passphrase used to unlock addr before sends.
func (c *Client) RegisterAccount(addr common.Address, passphrase string) {
	c.mu.Lock()
	c.passphrases[addr] = passphrase
	c.mu.Unlock()
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// Call performs an eth_call against a contract.
func (c *Client) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	return c.ethClient.CallContract(ctx, msg, nil)
}

// Balance returns the base-currency balance of an account at the latest block.
func (c *Client) Balance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, addr, nil)
}

// UnlockAccount unlocks a node-managed account for a short window.
func (c *Client) UnlockAccount(ctx context.Context, addr common.Address, passphrase string) error {
	var ok bool
	err := c.rpcClient.CallContext(ctx, &ok, "personal_unlockAccount", addr, passphrase, unlockSeconds)
	if err != nil {
		return fmt.Errorf("unlock %s: %w", addr.Hex(), err)
	}
	if !ok {
		return fmt.Errorf("unlock %s: rejected", addr.Hex())
	}
	return nil
}

// Send unlocks the sending account and submits the transaction through the
// node. Concurrent sends from the same account are the caller's problem to
// serialize.
func (c *Client) Send(ctx context.Context, req SendRequest) (common.Hash, error) {
	c.mu.RLock()
	passphrase, known := c.passphrases[req.From]
	c.mu.RUnlock()
	if !known {
		return common.Hash{}, fmt.Errorf("send: no passphrase registered for %s", req.From.Hex())
	}

	if err := c.UnlockAccount(ctx, req.From, passphrase); err != nil {
		return common.Hash{}, err
	}

	args := map[string]interface{}{
		"from": req.From,
		"to":   req.To,
		"data": hexutil.Bytes(req.Data),
	}
	if req.GasPrice != nil {
		args["gasPrice"] = (*hexutil.Big)(req.GasPrice)
	}
	if req.Gas > 0 {
		args["gas"] = hexutil.Uint64(req.Gas)
	}
	if req.Value != nil {
		args["value"] = (*hexutil.Big)(req.Value)
	}

	var txHash common.Hash
	if err := c.rpcClient.CallContext(ctx, &txHash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("send to %s: %w", req.To.Hex(), err)
	}
	return txHash, nil
}

// WaitReceipt polls for the transaction receipt until it appears or the
// attempt limit is reached.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	for attempt := 0; attempt < c.receipts.Attempts; attempt++ {
		receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("get receipt %s: %w", hash.Hex(), err)
		}

		timer := time.NewTimer(c.receipts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrReceiptNotFound, hash.Hex(), c.receipts.Attempts)
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// SubscribeLogs opens a live log subscription for addresses and topic0
// filters. Retracted logs are delivered with Removed set.
func (c *Client) SubscribeLogs(
	ctx context.Context,
	addresses []common.Address,
	topic0 []common.Hash,
	sink chan<- types.Log,
) (ethereum.Subscription, error) {
	query := ethereum.FilterQuery{Addresses: addresses}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.SubscribeFilterLogs(ctx, query, sink)
}
