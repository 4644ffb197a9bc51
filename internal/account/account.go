package account

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "FaucetPilot/internal/errors"
)

// Account 是名册中的一条账户凭证，加载后不可变。
type Account struct {
	Index      int
	Address    common.Address
	PrivateKey string
}

// Record 是名册持久化格式，与历史 accounts.json 保持一致。
type Record struct {
	PrivateKey string `json:"privateKey"`
}

// Store 抽象了只追加的账户名册。
type Store interface {
	// List 按写入顺序返回全部账户。
	List(ctx context.Context) ([]Account, error)
	// Mint 生成新账户并追加到名册末尾，实现必须保证追加串行化。
	Mint(ctx context.Context) (Account, error)
	Close() error
}

// Short 返回日志中使用的缩略地址。
func (a Account) Short() string {
	if a.Address == (common.Address{}) {
		return fmt.Sprintf("account#%d", a.Index)
	}
	return ShortAddress(a.Address)
}

// Key 解析私钥；私钥非法时返回 FATAL_PROVISIONING。
func (a Account) Key() (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(a.PrivateKey), "0x"))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeFatalProvisioning, err, fmt.Sprintf("%s 的私钥无法解析", a.Short()))
	}
	return key, nil
}

// ShortAddress 将地址缩写为 0x1234...abcd。
func ShortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// FromRecord 根据持久化记录构造账户。私钥非法时地址保持为空，
// 由执行单元在构造签名器时报告致命错误，其余账户不受影响。
func FromRecord(index int, rec Record) Account {
	acct := Account{Index: index, PrivateKey: rec.PrivateKey}
	if key, err := acct.Key(); err == nil {
		acct.Address = crypto.PubkeyToAddress(key.PublicKey)
	}
	return acct
}

// Generate 随机生成一个新账户。
func Generate() (Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Account{}, xerrors.Wrap(xerrors.CodeFatalProvisioning, err, "生成私钥失败")
	}
	return Account{
		Address:    crypto.PubkeyToAddress(key.PublicKey),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(key)),
	}, nil
}

// Find 在名册中按地址查找账户。
func Find(accounts []Account, addr common.Address) (Account, bool) {
	for _, acct := range accounts {
		if acct.Address == addr {
			return acct, true
		}
	}
	return Account{}, false
}
