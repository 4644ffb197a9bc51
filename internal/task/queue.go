package task

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "FaucetPilot/internal/errors"
)

// Dispatch 是投递给 worker 的账户分配消息。
type Dispatch struct {
	Address      string `json:"address"`
	DispatchedAt int64  `json:"dispatched_at"`
}

// Handler 处理来自消息队列的账户分配。
type Handler func(ctx context.Context, msg Dispatch) error

// Producer 负责向队列投递账户。
type Producer interface {
	Publish(ctx context.Context, msg Dispatch) error
	Close() error
}

// Consumer 负责从队列中消费账户。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

func encodeDispatch(msg Dispatch) ([]byte, error) {
	if !common.IsHexAddress(strings.TrimSpace(msg.Address)) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "分配消息中的地址无效")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "编码分配消息失败")
	}
	return data, nil
}

func decodeDispatch(data []byte) (Dispatch, error) {
	var msg Dispatch
	if err := json.Unmarshal(data, &msg); err != nil {
		return Dispatch{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析分配消息失败")
	}
	if !common.IsHexAddress(strings.TrimSpace(msg.Address)) {
		return Dispatch{}, xerrors.New(xerrors.CodeInvalidArgument, "分配消息中的地址无效")
	}
	return msg, nil
}
