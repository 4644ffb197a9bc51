package task

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"

	"FaucetPilot/internal/cycle"
	xerrors "FaucetPilot/internal/errors"
)

// Status 描述一次执行记录的终态。
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsValidStatus 判断状态是否合法。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

const (
	CodeRunNotFound xerrors.Code = "RUN_NOT_FOUND"
	CodeUnitPanic   xerrors.Code = "UNIT_PANIC"
)

func init() {
	xerrors.Register(CodeRunNotFound, xerrors.Attributes{Message: "run not found", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeUnitPanic, xerrors.Attributes{Message: "execution unit panicked", Severity: xerrors.SeverityCritical})
}

// ErrRunNotFound 表示执行记录不存在。
var ErrRunNotFound = xerrors.New(CodeRunNotFound, "执行记录不存在")

// Run 是一次终止信号的持久化形式。
type Run struct {
	ID             string                `json:"id"`
	Address        string                `json:"address"`
	AccountIndex   int                   `json:"account_index"`
	Cycle          int                   `json:"cycle"`
	Status         Status                `json:"status"`
	ErrorCode      string                `json:"error_code,omitempty"`
	Error          string                `json:"error,omitempty"`
	Points         int64                 `json:"points"`
	NativeBalance  string                `json:"native_balance"`
	WrappedBalance string                `json:"wrapped_balance"`
	TransfersToday int64                 `json:"transfers_today"`
	Transfers      int                   `json:"transfers"`
	Actions        []cycle.ActionOutcome `json:"actions,omitempty"`
	StartedAt      int64                 `json:"started_at"`
	FinishedAt     int64                 `json:"finished_at"`
}

// NewRun 将 Completion 转换为执行记录。
func NewRun(c cycle.Completion, now time.Time) *Run {
	run := &Run{
		ID:             uuid.NewString(),
		Address:        c.Account.Address.Hex(),
		AccountIndex:   c.Account.Index,
		Cycle:          c.Cycle,
		Status:         StatusSucceeded,
		NativeBalance:  "0",
		WrappedBalance: "0",
		StartedAt:      now.Unix(),
		FinishedAt:     now.Unix(),
	}
	if c.Err != nil {
		run.Status = StatusFailed
		if stdErrors.Is(c.Err, context.Canceled) || stdErrors.Is(c.Err, context.DeadlineExceeded) {
			run.Status = StatusCancelled
		}
		run.ErrorCode = string(xerrors.CodeOf(c.Err))
		run.Error = c.Err.Error()
	}
	if r := c.Report; r != nil {
		run.Points = r.Final.Points
		run.NativeBalance = r.Final.NativeBalance.String()
		run.WrappedBalance = r.Final.WrappedBalance.String()
		run.TransfersToday = r.Final.TransfersToday
		run.Transfers = r.Transfers
		run.Actions = make([]cycle.ActionOutcome, len(r.Outcomes))
		for i, o := range r.Outcomes {
			if o.Error == "" && o.Err != nil {
				o.Error = o.Err.Error()
			}
			run.Actions[i] = o
		}
		if !r.StartedAt.IsZero() {
			run.StartedAt = r.StartedAt.Unix()
		}
		if !r.FinishedAt.IsZero() {
			run.FinishedAt = r.FinishedAt.Unix()
		}
	}
	return run
}

// Succeeded 统计成功的动作数。
func (r *Run) Succeeded() int {
	n := 0
	for _, a := range r.Actions {
		if a.Succeeded {
			n++
		}
	}
	return n
}

func cloneRun(run *Run) *Run {
	clone := *run
	if run.Actions != nil {
		clone.Actions = append([]cycle.ActionOutcome(nil), run.Actions...)
	}
	return &clone
}

// RunStats 汇总执行记录，常用于仪表盘或健康检查。
type RunStats struct {
	Total            int   `json:"total"`
	Succeeded        int   `json:"succeeded"`
	Failed           int   `json:"failed"`
	Cancelled        int   `json:"cancelled"`
	Transfers        int   `json:"transfers"`
	OldestFinishedAt int64 `json:"oldest_finished_at,omitempty"`
	NewestFinishedAt int64 `json:"newest_finished_at,omitempty"`
}

func (s *RunStats) add(run *Run) {
	s.Total++
	switch run.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusCancelled:
		s.Cancelled++
	}
	s.Transfers += run.Transfers
	if run.FinishedAt > s.NewestFinishedAt {
		s.NewestFinishedAt = run.FinishedAt
	}
	if s.OldestFinishedAt == 0 || (run.FinishedAt != 0 && run.FinishedAt < s.OldestFinishedAt) {
		s.OldestFinishedAt = run.FinishedAt
	}
}

// RunStore 抽象了执行记录的持久化。
type RunStore interface {
	Record(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, opts ListOptions) ([]*Run, error)
	Stats(ctx context.Context, opts ListOptions) (RunStats, error)
	Close() error
}
