package kafka

import (
	"context"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"tradeflow/pkg/logger"
)

// ProducerService Kafka 生产者
type ProducerService interface {
	// Produce 把 v 序列化为 json 写入固定 topic
	Produce(ctx context.Context, key []byte, v any) error
	Close()
}

type kafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokerURL, topic string) ProducerService {
	return &kafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokerURL),
			Topic:    topic,
			Balancer: &kafka.Hash{}, // 同一个 key 进入同一个分区，保证顺序
		},
	}
}

func (p *kafkaProducer) Produce(ctx context.Context, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: data,
	})
}

func (p *kafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		logger.Errorf("error closing kafka writer %s: %v", p.writer.Topic, err)
	}
}
