package cypher

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// 记录类型。
const (
	RecordFaucetClaim          = "faucetClaim"
	RecordFaucetClaimEncrypted = "faucetClaimEncrypted"
	RecordDeployERC20          = "deployERC20"
	RecordTransfer             = "transfer"
)

// TransactionRecord 是 recordTransaction 接口的参数。
type TransactionRecord struct {
	Type        string     `json:"type"`
	Address     string     `json:"address"`
	TxType      string     `json:"txType,omitempty"`
	TxHash      string     `json:"txHash,omitempty"`
	TxTimestamp int64      `json:"txTimestamp,omitempty"`
	TokenData   *TokenData `json:"tokenData,omitempty"`
}

// TokenData 描述部署的代币。
type TokenData struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
	Supply int64  `json:"supply"`
}

// FaucetClaimRecord 描述一次原生水龙头领取。
func FaucetClaimRecord(addr common.Address) TransactionRecord {
	return TransactionRecord{Type: RecordFaucetClaim, Address: addr.Hex()}
}

// EncryptedFaucetClaimRecord 描述一次加密水龙头领取。
func EncryptedFaucetClaimRecord(addr common.Address) TransactionRecord {
	return TransactionRecord{Type: RecordFaucetClaimEncrypted, Address: addr.Hex()}
}

// DeployRecord 描述一次代币部署。
func DeployRecord(addr common.Address, txHash common.Hash, at time.Time, token TokenData) TransactionRecord {
	return TransactionRecord{
		Type:        RecordDeployERC20,
		Address:     addr.Hex(),
		TxType:      "erc20deploy",
		TxHash:      txHash.Hex(),
		TxTimestamp: at.UnixMilli(),
		TokenData:   &token,
	}
}

// TransferRecord 描述一次加密代币转账。
func TransferRecord(addr common.Address, txHash common.Hash, at time.Time) TransactionRecord {
	return TransactionRecord{
		Type:        RecordTransfer,
		Address:     addr.Hex(),
		TxType:      "encrypted",
		TxHash:      txHash.Hex(),
		TxTimestamp: at.UnixMilli(),
	}
}
