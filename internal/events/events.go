// Package events delivers cycle results to external consumers. Kafka is the
// only transport; when no brokers are configured a no-op publisher is used.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	xerrors "FaucetPilot/internal/errors"
)

// Publisher 投递以 key 分区的 JSON 事件。
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

// KafkaConfig 描述 Kafka 投递参数。
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// messageWriter 是 kafka.Writer 中用到的部分，测试时可以替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher 将事件写入 Kafka，同一账户的事件落在同一分区。
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaPublisher 创建 Kafka 投递器。
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Kafka brokers 不能为空")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Kafka topic 不能为空")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		WriteTimeout:           timeout,
	}
	return &KafkaPublisher{writer: writer, timeout: timeout}, nil
}

// Publish 实现 Publisher。
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码事件失败")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "写入 Kafka 失败")
	}
	return nil
}

// Close 刷新并关闭 writer。
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Noop 丢弃所有事件。
type Noop struct{}

// Publish 实现 Publisher。
func (Noop) Publish(context.Context, string, any) error { return nil }

// Close 实现 Publisher。
func (Noop) Close() error { return nil }

// New 根据配置选择投递器，未配置 brokers 时返回 Noop。
func New(cfg KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return Noop{}, nil
	}
	return NewKafkaPublisher(cfg)
}
