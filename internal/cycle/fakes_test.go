package cycle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cypher"
	"FaucetPilot/internal/web3"
)

var testContracts = Contracts{
	FaucetEncrypted:  common.HexToAddress("0x65C58fBAc4b80E89992469242D5BbDfB3D9bbf85"),
	ERC20Deployer:    common.HexToAddress("0x82180b36C7261c0Aaee14d17a6e1c018009906a6"),
	WrappedToken:     common.HexToAddress("0xb7229F1209d4c5bdc47996da3C64BecD84084025"),
	TransferReceiver: common.HexToAddress("0x91f5b89988f094566d7d0545a89fcb4d41269db4"),
}

func testParams() Params {
	return Params{
		ChainID:           big.NewInt(10112),
		Contracts:         testContracts,
		ActionDelay:       5 * time.Second,
		TransferDelay:     5 * time.Second,
		RetryBackoff:      5 * time.Second,
		TransferThreshold: decimal.NewFromInt(1),
		TransferAmount:    decimal.NewFromInt(1),
		TransferCap:       10,
		TransferGasLimit:  300000,
	}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// fakeClock 记录每次等待并按等待时长推进时间。
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	onSleep func(d time.Duration) error
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		if err := hook(d); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *fakeClock) slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// fakeChain 模拟链上余额与交易。转账不会减少余额，计数由 fakeService 维护。
type fakeChain struct {
	mu       sync.Mutex
	native   *big.Int
	wrapped  *big.Int
	nonce    uint64
	invokes  []web3.Call
	failWith error
	await    func(call web3.Call) (web3.Status, error)
	pending  map[common.Hash]web3.Call
}

func newFakeChain(wrapped *big.Int) *fakeChain {
	return &fakeChain{native: ether(3), wrapped: wrapped, pending: map[common.Hash]web3.Call{}}
}

func (f *fakeChain) NativeBalance(context.Context, common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.native), nil
}

func (f *fakeChain) TokenBalance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != testContracts.WrappedToken {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.wrapped), nil
}

func (f *fakeChain) Available(context.Context, common.Address, string, common.Address) (bool, error) {
	return false, nil
}

func (f *fakeChain) Invoke(_ context.Context, _ *web3.Signer, call web3.Call) (*coretypes.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.nonce++
	tx := coretypes.NewTx(&coretypes.LegacyTx{Nonce: f.nonce, Gas: call.GasLimit, To: &call.Contract})
	f.invokes = append(f.invokes, call)
	f.pending[tx.Hash()] = call
	return tx, nil
}

func (f *fakeChain) AwaitConfirmation(_ context.Context, tx *coretypes.Transaction) (web3.Confirmation, error) {
	f.mu.Lock()
	call := f.pending[tx.Hash()]
	hook := f.await
	f.mu.Unlock()

	status := web3.StatusSuccess
	if hook != nil {
		var err error
		if status, err = hook(call); err != nil {
			return web3.Confirmation{TxHash: tx.Hash()}, err
		}
	}
	return web3.Confirmation{Status: status, TxHash: tx.Hash(), BlockNumber: 1}, nil
}

func (f *fakeChain) Close() {}

func (f *fakeChain) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.invokes))
	for _, call := range f.invokes {
		out = append(out, call.Method)
	}
	return out
}

// fakeService 以服务端为准维护转账计数：记录 transfer 时计数加一。
type fakeService struct {
	mu           sync.Mutex
	points       int64
	count        int64
	availability cypher.Availability
	claimResult  cypher.ClaimResult
	claims       int
	records      []cypher.TransactionRecord
	updates      int
	pointsErrs   []error
	recordErr    error
}

func (f *fakeService) Endpoint() string { return "https://cypher.z1labs.ai/testnet/" }

func (f *fakeService) Points(context.Context, common.Address) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pointsErrs) > 0 {
		err := f.pointsErrs[0]
		f.pointsErrs = f.pointsErrs[1:]
		return 0, err
	}
	return f.points, nil
}

func (f *fakeService) TransferCount(context.Context, common.Address) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeService) UpdatePoints(context.Context, common.Address) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.points += 10
	return f.points, nil
}

func (f *fakeService) CheckAvailability(context.Context, common.Address) (cypher.Availability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.availability, nil
}

func (f *fakeService) ClaimFaucet(_ context.Context, _ common.Address, token string) (cypher.ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	return f.claimResult, nil
}

func (f *fakeService) RecordTransaction(_ context.Context, record cypher.TransactionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.records = append(f.records, record)
	if record.Type == cypher.RecordTransfer {
		f.count++
	}
	return nil
}

func (f *fakeService) recordTypes() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, r := range f.records {
		out[r.Type]++
	}
	return out
}

type fakeMinter struct {
	mu     sync.Mutex
	minted []account.Account
}

func (m *fakeMinter) Mint(context.Context) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, err := account.Generate()
	if err != nil {
		return account.Account{}, err
	}
	acct.Index = len(m.minted) + 1
	m.minted = append(m.minted, acct)
	return acct, nil
}
