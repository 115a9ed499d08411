package recorder

import (
	"context"
	"time"

	"tradeflow/pkg/kafka"
)

// Recorder 订单流水记录器
type Recorder interface {
	Record(result any) error
}

// Keyed 可选：提供 kafka 分区 key
type Keyed interface {
	RecordKey() string
}

// Nop 不记录
type Nop struct{}

func (Nop) Record(any) error { return nil }

// KafkaRecorder 把流水写入 kafka topic
type KafkaRecorder struct {
	producer kafka.ProducerService
	timeout  time.Duration
}

func NewKafkaRecorder(p kafka.ProducerService) *KafkaRecorder {
	return &KafkaRecorder{producer: p, timeout: 5 * time.Second}
}

func (r *KafkaRecorder) Record(result any) error {
	var key []byte
	if k, ok := result.(Keyed); ok {
		key = []byte(k.RecordKey())
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.producer.Produce(ctx, key, result)
}

func (r *KafkaRecorder) Close() {
	r.producer.Close()
}
