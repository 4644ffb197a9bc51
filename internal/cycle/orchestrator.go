package cycle

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"math/big"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cypher"
	xerrors "FaucetPilot/internal/errors"
	"FaucetPilot/internal/observability/metrics"
	"FaucetPilot/internal/web3"
	"FaucetPilot/internal/web3/ethereum"
	"FaucetPilot/pkg/logger"
)

const tokenUnitExp = 18

// Contracts 是周期中会发起交易的合约地址。
type Contracts struct {
	FaucetEncrypted  common.Address
	ERC20Deployer    common.Address
	WrappedToken     common.Address
	TransferReceiver common.Address
}

// Params 汇总周期的固定参数。
type Params struct {
	ChainID           *big.Int
	Contracts         Contracts
	ActionDelay       time.Duration
	TransferDelay     time.Duration
	RetryBackoff      time.Duration
	TransferThreshold decimal.Decimal
	TransferAmount    decimal.Decimal
	TransferCap       int64
	TransferGasLimit  uint64
	// CycleLimit 大于 0 时，执行单元完成指定轮数后结束，不再等待零点轮换。
	CycleLimit int
}

// Orchestrator 驱动账户完成每日周期。同一个实例可以被多个执行单元并发使用。
type Orchestrator struct {
	chain  web3.Client
	svc    Service
	minter Minter
	params Params
	clock  Clock
	intn   func(int) int
	log    *slog.Logger
}

// Option 自定义 Orchestrator。
type Option func(*Orchestrator)

// WithClock 替换时间来源，测试中用于跳过等待。
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithRandom 替换部署代币时使用的随机数来源。
func WithRandom(intn func(int) int) Option {
	return func(o *Orchestrator) {
		if intn != nil {
			o.intn = intn
		}
	}
}

// WithLogger 指定日志实例。
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// New 构造 Orchestrator。
func New(chain web3.Client, svc Service, minter Minter, params Params, opts ...Option) (*Orchestrator, error) {
	if chain == nil || svc == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "链客户端与服务客户端不能为空")
	}
	if params.ChainID == nil || params.ChainID.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "链 ID 非法")
	}
	if params.TransferCap <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "转账上限必须大于 0")
	}
	if params.TransferThreshold.IsZero() {
		params.TransferThreshold = decimal.NewFromInt(1)
	}
	if params.TransferAmount.IsZero() {
		params.TransferAmount = decimal.NewFromInt(1)
	}
	o := &Orchestrator{
		chain:  chain,
		svc:    svc,
		minter: minter,
		params: params,
		clock:  realClock{},
		intn:   rand.IntN,
		log:    logger.Named("cycle"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// Run 驱动执行单元：每完成一个账户的周期就通过 emit 发出终止信号，
// 随后等待 UTC 零点、生成新账户并继续。致命错误或 ctx 取消时返回。
func (o *Orchestrator) Run(ctx context.Context, acct account.Account, emit func(Completion)) error {
	if emit == nil {
		emit = func(Completion) {}
	}
	current := acct
	for cycleNo := 1; ; cycleNo++ {
		report, err := o.Drive(ctx, current)
		emit(Completion{Account: current, Cycle: cycleNo, Report: report, Err: err})
		if err != nil {
			return err
		}
		if o.params.CycleLimit > 0 && cycleNo >= o.params.CycleLimit {
			return nil
		}

		if err := o.WaitForReset(ctx, current); err != nil {
			return err
		}
		next, err := o.mintWithRetry(ctx, current)
		if err != nil {
			return err
		}
		o.log.Info("账户轮换",
			"account", current.Short(),
			"next", next.Short(),
			"cycle", cycleNo+1)
		metrics.ObserveRollover()
		current = next
	}
}

// Drive 运行一个完整周期；周期体抛出的非致命错误会在退避后从头重试。
func (o *Orchestrator) Drive(ctx context.Context, acct account.Account) (*Report, error) {
	signer, err := o.signerFor(acct)
	if err != nil {
		o.log.Error("无法构造签名器，放弃该账户", "account", acct.Short(), "error", err)
		return nil, err
	}
	for {
		report, err := o.RunCycle(ctx, acct, signer)
		if err == nil {
			return report, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if xerrors.IsFatal(err) {
			o.log.Error("周期遇到致命错误", "account", acct.Short(), "error", err)
			return nil, err
		}
		o.log.Warn("周期执行失败，退避后重新开始",
			"account", acct.Short(),
			"error", err,
			"error_code", xerrors.CodeOf(err),
			"backoff", o.params.RetryBackoff)
		metrics.ObserveRetry()
		if err := o.clock.Sleep(ctx, o.params.RetryBackoff); err != nil {
			return nil, err
		}
	}
}

// WaitForReset 挂起到下一个 UTC 零点。
func (o *Orchestrator) WaitForReset(ctx context.Context, acct account.Account) error {
	o.transition(acct, StateWaitingForReset)
	wait := ResetWait(o.clock.Now())
	o.log.Info("等待每日重置", "account", acct.Short(), "wait", wait.Round(time.Second))
	return o.clock.Sleep(ctx, wait)
}

// RunCycle 执行一次从 FetchingStats 到 Reporting 的完整流程。
func (o *Orchestrator) RunCycle(ctx context.Context, acct account.Account, signer *web3.Signer) (report *Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			report = nil
			err = xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("周期内部 panic: %v", r))
		}
	}()

	addr := signer.Address()
	report = &Report{Account: addr, StartedAt: o.clock.Now()}

	o.transition(acct, StateFetchingStats)
	initial, err := o.FetchStats(ctx, addr)
	if err != nil {
		return nil, err
	}
	report.Initial = initial
	o.logStats(acct, "当前状态", initial)

	o.transition(acct, StateEvaluatingActions)
	claims := []struct {
		enabled bool
		action  Action
		run     func(context.Context) (common.Hash, error)
	}{
		{initial.Availability.Native, ActionNativeClaim, func(ctx context.Context) (common.Hash, error) {
			return o.claimNative(ctx, signer)
		}},
		{initial.Availability.Wrapped, ActionWrappedClaim, func(ctx context.Context) (common.Hash, error) {
			return o.claimWrapped(ctx, signer)
		}},
		{initial.Availability.Deploy, ActionDeployToken, func(ctx context.Context) (common.Hash, error) {
			return o.deployToken(ctx, signer)
		}},
	}
	for _, claim := range claims {
		if !claim.enabled {
			continue
		}
		report.Outcomes = append(report.Outcomes, o.guard(ctx, acct, claim.action, claim.run))
		if err := o.clock.Sleep(ctx, o.params.ActionDelay); err != nil {
			return nil, err
		}
	}

	snapshot, err := o.FetchStats(ctx, addr)
	if err != nil {
		return nil, err
	}
	if o.canTransfer(snapshot.WrappedBalance, snapshot.TransfersToday) {
		o.transition(acct, StateTransferLooping)
		if err := o.transferLoop(ctx, acct, signer, report); err != nil {
			return nil, err
		}
	}

	o.transition(acct, StateReporting)
	final, err := o.FetchStats(ctx, addr)
	if err != nil {
		return nil, err
	}
	report.Final = final
	report.FinishedAt = o.clock.Now()
	o.log.Info("每日任务完成", "account", acct.Short(), "succeeded_actions", report.Succeeded(), "transfers", report.Transfers)
	o.logStats(acct, "最终状态", final)
	return report, nil
}

// FetchStats 查询积分、转账次数、两种余额与三个可领取标记。
func (o *Orchestrator) FetchStats(ctx context.Context, addr common.Address) (Stats, error) {
	var (
		stats Stats
		err   error
	)
	if stats.Points, err = o.svc.Points(ctx, addr); err != nil {
		return Stats{}, err
	}
	if stats.TransfersToday, err = o.svc.TransferCount(ctx, addr); err != nil {
		return Stats{}, err
	}
	native, err := o.chain.NativeBalance(ctx, addr)
	if err != nil {
		return Stats{}, err
	}
	stats.NativeBalance = fromWei(native)
	if stats.WrappedBalance, err = o.wrappedBalance(ctx, addr); err != nil {
		return Stats{}, err
	}
	if stats.Availability, err = o.svc.CheckAvailability(ctx, addr); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// transferLoop 每轮都重新读取链上余额与服务端计数，不维护本地计数器。
func (o *Orchestrator) transferLoop(ctx context.Context, acct account.Account, signer *web3.Signer, report *Report) error {
	addr := signer.Address()
	for {
		balance, err := o.wrappedBalance(ctx, addr)
		if err != nil {
			return err
		}
		count, err := o.svc.TransferCount(ctx, addr)
		if err != nil {
			return err
		}
		if !o.canTransfer(balance, count) {
			o.log.Info("转账循环结束", "account", acct.Short(), "wrapped_balance", balance.StringFixed(2), "transfers_today", count)
			return nil
		}

		o.log.Info("发起转账", "account", acct.Short(), "progress", fmt.Sprintf("%d/%d", count+1, o.params.TransferCap))
		outcome := o.guard(ctx, acct, ActionTransfer, func(ctx context.Context) (common.Hash, error) {
			return o.transfer(ctx, signer)
		})
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Succeeded {
			report.Transfers++
		}
		if err := o.clock.Sleep(ctx, o.params.TransferDelay); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) canTransfer(balance decimal.Decimal, count int64) bool {
	return balance.GreaterThanOrEqual(o.params.TransferThreshold) && count < o.params.TransferCap
}

// guard 把动作内的错误与 panic 统一转换为失败结果。
func (o *Orchestrator) guard(ctx context.Context, acct account.Account, action Action, run func(context.Context) (common.Hash, error)) (outcome ActionOutcome) {
	started := time.Now()
	outcome.Action = action
	defer func() {
		if r := recover(); r != nil {
			outcome.Succeeded = false
			outcome.Err = xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("动作 panic: %v", r))
		}
		if outcome.Err != nil {
			outcome.Error = outcome.Err.Error()
			o.log.Warn("动作失败",
				"account", acct.Short(),
				"action", action,
				"error", outcome.Err,
				"error_code", xerrors.CodeOf(outcome.Err))
		} else {
			o.log.Info("动作完成", "account", acct.Short(), "action", action, "tx", outcome.TxHash.Hex())
		}
		metrics.ObserveAction(string(action), outcome.Succeeded, time.Since(started))
	}()

	hash, err := run(ctx)
	outcome.TxHash = hash
	outcome.Err = err
	outcome.Succeeded = err == nil
	return outcome
}

func (o *Orchestrator) claimNative(ctx context.Context, signer *web3.Signer) (common.Hash, error) {
	token, err := cypher.BuildFaucetProof(signer, o.svc.Endpoint(), o.clock.Now())
	if err != nil {
		return common.Hash{}, err
	}
	result, err := o.svc.ClaimFaucet(ctx, signer.Address(), token)
	if err != nil {
		return common.Hash{}, err
	}
	if !result.Success {
		msg := result.ErrorMessage
		if msg == "" {
			msg = "Claim failed"
		}
		return common.Hash{}, xerrors.New(xerrors.CodeClaimRejected, msg)
	}
	return common.Hash{}, o.settle(ctx, cypher.FaucetClaimRecord(signer.Address()))
}

func (o *Orchestrator) claimWrapped(ctx context.Context, signer *web3.Signer) (common.Hash, error) {
	hash, err := o.invokeAndConfirm(ctx, signer, web3.Call{
		Contract: o.params.Contracts.FaucetEncrypted,
		Method:   ethereum.MethodFaucetToken,
	})
	if err != nil {
		return hash, err
	}
	return hash, o.settle(ctx, cypher.EncryptedFaucetClaimRecord(signer.Address()))
}

func (o *Orchestrator) deployToken(ctx context.Context, signer *web3.Signer) (common.Hash, error) {
	name := randomTokenName(o.intn)
	token := cypher.TokenData{Name: name, Ticker: TokenSymbol(name), Supply: randomSupply(o.intn)}
	supply := decimal.NewFromInt(token.Supply).Shift(tokenDecimals).BigInt()

	hash, err := o.invokeAndConfirm(ctx, signer, web3.Call{
		Contract: o.params.Contracts.ERC20Deployer,
		Method:   ethereum.MethodCreateToken,
		Args:     []any{token.Name, token.Ticker, uint8(tokenDecimals), supply},
	})
	if err != nil {
		return hash, err
	}
	return hash, o.settle(ctx, cypher.DeployRecord(signer.Address(), hash, o.clock.Now(), token))
}

func (o *Orchestrator) transfer(ctx context.Context, signer *web3.Signer) (common.Hash, error) {
	hash, err := o.invokeAndConfirm(ctx, signer, web3.Call{
		Contract: o.params.Contracts.WrappedToken,
		Method:   ethereum.MethodTransfer,
		Args:     []any{o.params.Contracts.TransferReceiver, o.params.TransferAmount.Shift(tokenUnitExp).BigInt()},
		GasLimit: o.params.TransferGasLimit,
	})
	if err != nil {
		return hash, err
	}
	return hash, o.settle(ctx, cypher.TransferRecord(signer.Address(), hash, o.clock.Now()))
}

func (o *Orchestrator) invokeAndConfirm(ctx context.Context, signer *web3.Signer, call web3.Call) (common.Hash, error) {
	tx, err := o.chain.Invoke(ctx, signer, call)
	if err != nil {
		return common.Hash{}, err
	}
	confirmation, err := o.chain.AwaitConfirmation(ctx, tx)
	if err != nil {
		return tx.Hash(), err
	}
	if confirmation.Status != web3.StatusSuccess {
		return confirmation.TxHash, xerrors.New(xerrors.CodeChainRevert, fmt.Sprintf("%s 交易执行失败", call.Method))
	}
	return confirmation.TxHash, nil
}

// settle 在动作成功后上报记录并刷新积分，各调用一次。
// 链上已确认的动作不会因上报失败而被视为失败，上报错误只记录日志。
func (o *Orchestrator) settle(ctx context.Context, record cypher.TransactionRecord) error {
	addr := common.HexToAddress(record.Address)
	if err := o.svc.RecordTransaction(ctx, record); err != nil {
		o.log.Warn("上报交易记录失败", "account", account.ShortAddress(addr), "type", record.Type, "error", err)
	}
	if _, err := o.svc.UpdatePoints(ctx, addr); err != nil {
		o.log.Warn("刷新积分失败", "account", account.ShortAddress(addr), "error", err)
	}
	return ctx.Err()
}

func (o *Orchestrator) wrappedBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	wei, err := o.chain.TokenBalance(ctx, o.params.Contracts.WrappedToken, addr)
	if err != nil {
		return decimal.Zero, err
	}
	return fromWei(wei), nil
}

func (o *Orchestrator) signerFor(acct account.Account) (*web3.Signer, error) {
	key, err := acct.Key()
	if err != nil {
		return nil, err
	}
	return web3.NewSigner(key, o.params.ChainID)
}

func (o *Orchestrator) mintWithRetry(ctx context.Context, previous account.Account) (account.Account, error) {
	if o.minter == nil {
		return account.Account{}, xerrors.New(xerrors.CodeFatalProvisioning, "未配置账户生成器，无法轮换")
	}
	for {
		next, err := o.minter.Mint(ctx)
		if err == nil {
			return next, nil
		}
		if ctx.Err() != nil {
			return account.Account{}, ctx.Err()
		}
		if xerrors.IsFatal(err) {
			return account.Account{}, err
		}
		o.log.Warn("生成新账户失败，退避后重试", "account", previous.Short(), "error", err)
		if err := o.clock.Sleep(ctx, o.params.RetryBackoff); err != nil {
			return account.Account{}, err
		}
	}
}

func (o *Orchestrator) transition(acct account.Account, state State) {
	o.log.Info("状态切换", "account", acct.Short(), "state", state.String())
}

func (o *Orchestrator) logStats(acct account.Account, title string, s Stats) {
	o.log.Info(title,
		"account", acct.Short(),
		"points", s.Points,
		"native_balance", s.NativeBalance.StringFixed(2),
		"wrapped_balance", s.WrappedBalance.StringFixed(2),
		"transfers_today", s.TransfersToday,
		"native_available", s.Availability.Native,
		"wrapped_available", s.Availability.Wrapped,
		"deploy_available", s.Availability.Deploy)
}

func fromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -tokenUnitExp)
}

// IsCancellation 判断执行单元是否因关停而结束。
func IsCancellation(err error) bool {
	return stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded)
}
