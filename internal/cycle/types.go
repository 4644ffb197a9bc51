package cycle

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"FaucetPilot/internal/account"
	"FaucetPilot/internal/cypher"
)

// State 是周期状态机的当前阶段。
type State int

const (
	StateFetchingStats State = iota
	StateEvaluatingActions
	StateTransferLooping
	StateReporting
	StateWaitingForReset
)

func (s State) String() string {
	switch s {
	case StateFetchingStats:
		return "fetching_stats"
	case StateEvaluatingActions:
		return "evaluating_actions"
	case StateTransferLooping:
		return "transfer_looping"
	case StateReporting:
		return "reporting"
	case StateWaitingForReset:
		return "waiting_for_reset"
	default:
		return "unknown"
	}
}

// Action 标识一次可执行的动作。
type Action string

const (
	ActionNativeClaim  Action = "native_claim"
	ActionWrappedClaim Action = "wrapped_claim"
	ActionDeployToken  Action = "deploy_token"
	ActionTransfer     Action = "transfer"
)

// Stats 是账户的瞬时快照，每次都从服务端与链上重新查询。
type Stats struct {
	Points         int64               `json:"points"`
	TransfersToday int64               `json:"transfers_today"`
	NativeBalance  decimal.Decimal     `json:"native_balance"`
	WrappedBalance decimal.Decimal     `json:"wrapped_balance"`
	Availability   cypher.Availability `json:"availability"`
}

// ActionOutcome 是一次动作的结果，错误不会越过动作边界。
type ActionOutcome struct {
	Action    Action      `json:"action"`
	Succeeded bool        `json:"succeeded"`
	TxHash    common.Hash `json:"tx_hash,omitempty"`
	Err       error       `json:"-"`
	Error     string      `json:"error,omitempty"`
}

// Report 是一个完整周期的结果。
type Report struct {
	Account    common.Address  `json:"account"`
	Initial    Stats           `json:"initial"`
	Final      Stats           `json:"final"`
	Outcomes   []ActionOutcome `json:"outcomes"`
	Transfers  int             `json:"transfers"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Succeeded 统计成功的动作数。
func (r *Report) Succeeded() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, o := range r.Outcomes {
		if o.Succeeded {
			n++
		}
	}
	return n
}

// Completion 是执行单元在结束当前账户职责时发出的终止信号。
// Err 为空表示周期完成；否则为致命错误或取消。
type Completion struct {
	Account account.Account
	Cycle   int
	Report  *Report
	Err     error
}

// Service 是周期依赖的服务端能力。
type Service interface {
	Endpoint() string
	Points(ctx context.Context, addr common.Address) (int64, error)
	TransferCount(ctx context.Context, addr common.Address) (int64, error)
	UpdatePoints(ctx context.Context, addr common.Address) (int64, error)
	CheckAvailability(ctx context.Context, addr common.Address) (cypher.Availability, error)
	ClaimFaucet(ctx context.Context, addr common.Address, token string) (cypher.ClaimResult, error)
	RecordTransaction(ctx context.Context, record cypher.TransactionRecord) error
}

// Minter 为轮换生成新账户，account.Store 满足该接口。
type Minter interface {
	Mint(ctx context.Context) (account.Account, error)
}
