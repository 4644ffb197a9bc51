package ethereum

import (
	"context"
	stdErrors "errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/internal/web3"
)

// Config describes how to construct an EVM compatible client.
type Config struct {
	RPCURL         string
	ChainID        int64
	CallTimeout    time.Duration
	ConfirmTimeout time.Duration
}

// Backend is the subset of ethclient.Client the client depends on. The
// simulated backend from ethclient/simulated satisfies it as well.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Client implements web3.Client for EVM compatible chains.
type Client struct {
	backend        Backend
	rpcClient      *gethrpc.Client
	chainID        *big.Int
	callTimeout    time.Duration
	confirmTimeout time.Duration

	mu        sync.Mutex
	contracts map[common.Address]*bind.BoundContract
}

var _ web3.Client = (*Client)(nil)

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置 RPC 地址")
	}
	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTransientNetwork, err, "连接链节点失败")
	}
	client := NewClientWithBackend(ethclient.NewClient(rpcClient), cfg)
	client.rpcClient = rpcClient
	return client, nil
}

// NewClientWithBackend wraps an existing backend, typically a simulated chain
// in tests.
func NewClientWithBackend(backend Backend, cfg Config) *Client {
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = 3 * time.Minute
	}
	return &Client{
		backend:        backend,
		chainID:        big.NewInt(cfg.ChainID),
		callTimeout:    callTimeout,
		confirmTimeout: confirmTimeout,
		contracts:      make(map[common.Address]*bind.BoundContract),
	}
}

// ChainID returns the chain id transactions are signed for.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// NativeBalance 查询原生代币余额（wei）。
func (c *Client) NativeBalance(ctx context.Context, holder common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	balance, err := c.backend.BalanceAt(ctx, holder, nil)
	if err != nil {
		return nil, classify(err, "查询原生余额失败")
	}
	return balance, nil
}

// TokenBalance 调用 ERC-20 balanceOf。
func (c *Client) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	out, err := c.view(ctx, token, MethodBalanceOf, holder)
	if err != nil {
		return nil, err
	}
	balance, ok := out.(*big.Int)
	if !ok {
		return nil, xerrors.New(xerrors.CodeChainRevert, fmt.Sprintf("balanceOf 返回了意外类型 %T", out))
	}
	return balance, nil
}

// Available 实现 web3.Client。
func (c *Client) Available(ctx context.Context, contract common.Address, method string, user common.Address) (bool, error) {
	out, err := c.view(ctx, contract, method, user)
	if err != nil {
		return false, err
	}
	flag, ok := out.(bool)
	if !ok {
		return false, xerrors.New(xerrors.CodeChainRevert, fmt.Sprintf("%s 返回了意外类型 %T", method, out))
	}
	return flag, nil
}

// Invoke 签名并广播一笔合约调用交易，不等待上链。
func (c *Client) Invoke(ctx context.Context, signer *web3.Signer, call web3.Call) (*coretypes.Transaction, error) {
	if signer == nil {
		return nil, xerrors.New(xerrors.CodeFatalProvisioning, "未提供交易签名器")
	}
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	opts.GasLimit = call.GasLimit
	if call.Value != nil {
		opts.Value = call.Value
	}

	tx, err := c.bound(call.Contract).Transact(opts, call.Method, call.Args...)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("发送 %s 交易失败", call.Method))
	}
	return tx, nil
}

// AwaitConfirmation 等待交易上链并返回回执状态；回执失败不视为错误。
func (c *Client) AwaitConfirmation(ctx context.Context, tx *coretypes.Transaction) (web3.Confirmation, error) {
	if tx == nil {
		return web3.Confirmation{}, xerrors.New(xerrors.CodeInvalidArgument, "交易为空")
	}
	ctx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return web3.Confirmation{TxHash: tx.Hash()}, classify(err, "等待交易确认失败")
	}
	confirmation := web3.Confirmation{
		Status:  web3.StatusFailed,
		TxHash:  receipt.TxHash,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		confirmation.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if receipt.Status == coretypes.ReceiptStatusSuccessful {
		confirmation.Status = web3.StatusSuccess
	}
	return confirmation, nil
}

func (c *Client) view(ctx context.Context, contract common.Address, method string, args ...any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	var out []any
	if err := c.bound(contract).Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, classify(err, fmt.Sprintf("调用 %s 失败", method))
	}
	if len(out) == 0 {
		return nil, xerrors.New(xerrors.CodeChainRevert, fmt.Sprintf("%s 没有返回值", method))
	}
	return out[0], nil
}

func (c *Client) bound(contract common.Address) *bind.BoundContract {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bc, ok := c.contracts[contract]; ok {
		return bc
	}
	bc := bind.NewBoundContract(contract, cypherABI, c.backend, c.backend, c.backend)
	c.contracts[contract] = bc
	return bc
}

// classify 将 go-ethereum 返回的错误映射到统一错误码。
func classify(err error, message string) error {
	switch {
	case stdErrors.Is(err, context.DeadlineExceeded):
		return xerrors.Wrap(xerrors.CodeTimeout, err, message)
	case stdErrors.Is(err, context.Canceled):
		return err
	case stdErrors.Is(err, bind.ErrNoCode):
		return xerrors.Wrap(xerrors.CodeChainRevert, err, message)
	}
	var dataErr gethrpc.DataError
	if stdErrors.As(err, &dataErr) || strings.Contains(strings.ToLower(err.Error()), "revert") {
		return xerrors.Wrap(xerrors.CodeChainRevert, err, message)
	}
	return xerrors.Wrap(xerrors.CodeTransientNetwork, err, message)
}
