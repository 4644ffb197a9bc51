package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	xerrors "FaucetPilot/internal/errors"
)

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaPublisherKeysByAccount(t *testing.T) {
	writer := &recordingWriter{}
	pub := &KafkaPublisher{writer: writer, timeout: 1e9}

	if err := pub.Publish(context.Background(), "0xabc", map[string]int{"transfers": 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.msgs))
	}
	msg := writer.msgs[0]
	if string(msg.Key) != "0xabc" {
		t.Fatalf("unexpected key %s", msg.Key)
	}
	var decoded map[string]int
	if err := json.Unmarshal(msg.Value, &decoded); err != nil || decoded["transfers"] != 7 {
		t.Fatalf("unexpected value %s", msg.Value)
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	pub := &KafkaPublisher{writer: &recordingWriter{err: errors.New("broker down")}, timeout: 1e9}
	err := pub.Publish(context.Background(), "k", struct{}{})
	if xerrors.CodeOf(err) != xerrors.CodeQueueFailure {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestNewWithoutBrokersIsNoop(t *testing.T) {
	pub, err := New(KafkaConfig{Topic: "t"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok := pub.(Noop); !ok {
		t.Fatalf("expected noop publisher, got %T", pub)
	}
	if _, err := New(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatal("missing topic must be rejected")
	}
}
