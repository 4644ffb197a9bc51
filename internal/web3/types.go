package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status is the final state of a mined transaction.
type Status int

const (
	StatusFailed Status = iota
	StatusSuccess
)

func (s Status) String() string {
	if s == StatusSuccess {
		return "success"
	}
	return "failed"
}

// Confirmation summarises the receipt of a mined transaction.
type Confirmation struct {
	Status      Status
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// Call describes a state-changing contract method invocation.
type Call struct {
	Contract common.Address
	Method   string
	Args     []any
	// GasLimit 为 0 时由节点估算。
	GasLimit uint64
	Value    *big.Int
}

// Client defines the chain capabilities consumed by the cycle orchestrator so
// that tests can substitute scripted fakes for a live RPC endpoint.
type Client interface {
	NativeBalance(ctx context.Context, holder common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error)
	// Available 调用形如 fn(address) view returns (bool) 的可领取标记。
	Available(ctx context.Context, contract common.Address, method string, user common.Address) (bool, error)
	Invoke(ctx context.Context, signer *Signer, call Call) (*types.Transaction, error)
	AwaitConfirmation(ctx context.Context, tx *types.Transaction) (Confirmation, error)
	Close()
}
