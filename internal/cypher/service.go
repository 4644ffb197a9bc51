package cypher

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Availability 表示三个领取类动作当前是否可执行。
type Availability struct {
	Native  bool `json:"native"`
	Wrapped bool `json:"wrapped"`
	Deploy  bool `json:"deploy"`
}

// AvailabilityReader 读取形如 fn(address) view returns (bool) 的链上标记。
type AvailabilityReader interface {
	Available(ctx context.Context, contract common.Address, method string, user common.Address) (bool, error)
}

// Contracts 列出可领取标记所在的合约。
type Contracts struct {
	Faucet          common.Address
	FaucetEncrypted common.Address
	ERC20Deployer   common.Address
}

// Service 在 HTTP 接口之外补上链上可领取标记的查询。
type Service struct {
	*Client
	chain     AvailabilityReader
	contracts Contracts
}

// NewService 组合 server action 客户端与链上标记读取器。
func NewService(client *Client, chain AvailabilityReader, contracts Contracts) *Service {
	return &Service{Client: client, chain: chain, contracts: contracts}
}

// CheckAvailability 依次读取原生水龙头、加密水龙头与部署器的标记。
func (s *Service) CheckAvailability(ctx context.Context, addr common.Address) (Availability, error) {
	var (
		out Availability
		err error
	)
	if out.Native, err = s.chain.Available(ctx, s.contracts.Faucet, "faucetAvailable", addr); err != nil {
		return Availability{}, err
	}
	if out.Wrapped, err = s.chain.Available(ctx, s.contracts.FaucetEncrypted, "faucetAvailable", addr); err != nil {
		return Availability{}, err
	}
	if out.Deploy, err = s.chain.Available(ctx, s.contracts.ERC20Deployer, "mintAvailable", addr); err != nil {
		return Availability{}, err
	}
	return out, nil
}
