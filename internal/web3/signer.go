package web3

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "FaucetPilot/internal/errors"
)

// Signer binds one account key to the configured chain.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewSigner 构造签名器，失败时返回 FATAL_PROVISIONING。
func NewSigner(key *ecdsa.PrivateKey, chainID *big.Int) (*Signer, error) {
	if key == nil {
		return nil, xerrors.New(xerrors.CodeFatalProvisioning, "签名私钥为空")
	}
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeFatalProvisioning, "链 ID 非法")
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: new(big.Int).Set(chainID),
	}, nil
}

// Address returns the signing account.
func (s *Signer) Address() common.Address { return s.address }

// TransactOpts 为单次交易生成签名参数。
func (s *Signer) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeFatalProvisioning, err, "创建交易签名器失败")
	}
	opts.Context = ctx
	return opts, nil
}

// SignMessage produces an EIP-191 personal_sign signature with a 27/28
// recovery byte, matching what browser wallets return.
func (s *Signer) SignMessage(message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), s.key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeFatalProvisioning, err, "消息签名失败")
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
