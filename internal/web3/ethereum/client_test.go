package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/internal/web3"
)

func newSimulated(t *testing.T) (*simulated.Backend, *Client, *web3.Signer) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	funds, _ := new(big.Int).SetString("10000000000000000000", 10)
	alloc := coretypes.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: funds},
	}
	backend := simulated.NewBackend(alloc)
	t.Cleanup(func() { backend.Close() })

	client := NewClientWithBackend(backend.Client(), Config{ChainID: 1337, CallTimeout: 5 * time.Second, ConfirmTimeout: 10 * time.Second})
	signer, err := web3.NewSigner(key, client.ChainID())
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	return backend, client, signer
}

func TestNativeBalance(t *testing.T) {
	_, client, signer := newSimulated(t)

	balance, err := client.NativeBalance(context.Background(), signer.Address())
	if err != nil {
		t.Fatalf("native balance: %v", err)
	}
	if balance.String() != "10000000000000000000" {
		t.Fatalf("unexpected balance %s", balance)
	}
}

func TestInvokeAndAwaitConfirmation(t *testing.T) {
	backend, client, signer := newSimulated(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	receiver := common.HexToAddress("0x91f5b89988f094566d7d0545a89fcb4d41269db4")
	tx, err := client.Invoke(ctx, signer, web3.Call{
		Contract: receiver,
		Method:   MethodTransfer,
		Args:     []any{receiver, big.NewInt(1)},
		GasLimit: 300000,
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if tx.Gas() != 300000 {
		t.Fatalf("unexpected gas limit %d", tx.Gas())
	}
	backend.Commit()

	confirmation, err := client.AwaitConfirmation(ctx, tx)
	if err != nil {
		t.Fatalf("await confirmation: %v", err)
	}
	if confirmation.Status != web3.StatusSuccess {
		t.Fatalf("unexpected status %s", confirmation.Status)
	}
	if confirmation.TxHash != tx.Hash() {
		t.Fatalf("unexpected hash %s", confirmation.TxHash.Hex())
	}
}

func TestAvailableWithoutContractCode(t *testing.T) {
	_, client, signer := newSimulated(t)

	_, err := client.Available(context.Background(), common.HexToAddress("0x1e37834a08FC05036a0395a0f22bC103C0c00423"), MethodFaucetAvailable, signer.Address())
	if err == nil {
		t.Fatal("expected error for missing contract code")
	}
	if xerrors.CodeOf(err) != xerrors.CodeChainRevert {
		t.Fatalf("unexpected code %s", xerrors.CodeOf(err))
	}
}

func TestABIPacksCreateToken(t *testing.T) {
	supply := new(big.Int).Mul(big.NewInt(1_234_567), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	data, err := cypherABI.Pack(MethodCreateToken, "AbCdEfGhIj", "$BCD", uint8(18), supply)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if got, want := common.Bytes2Hex(data[:4]), common.Bytes2Hex(cypherABI.Methods[MethodCreateToken].ID); got != want {
		t.Fatalf("unexpected selector %s", got)
	}
	if _, err := cypherABI.Pack(MethodFaucetToken); err != nil {
		t.Fatalf("pack faucetToken: %v", err)
	}
}
