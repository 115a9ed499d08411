package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"tradeflow/pkg/logger"
)

// ConsumerService 定义了消费 Kafka 消息的通用接口
type ConsumerService interface {
	// Consume 启动一个协程消费指定主题，将消息发送到返回的通道
	Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error)
	Close()
}

type kafkaConsumer struct {
	brokerURL string
	bufSize   int
}

func NewKafkaConsumer(brokerURL string) ConsumerService {
	return &kafkaConsumer{
		brokerURL: brokerURL,
		bufSize:   256,
	}
}

func (c *kafkaConsumer) Consume(ctx context.Context, topic string, groupID string) (<-chan kafka.Message, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{c.brokerURL},
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6,
		// 只关心最新的 K 线通知
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second, // 自动提交
		MaxAttempts:    3,
	})
	outputCh := make(chan kafka.Message, c.bufSize)

	go func() {
		defer close(outputCh)
		defer r.Close()
		for {
			m, err := r.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Infof("kafka consumer for topic %s finished", topic)
					return
				}
				logger.Errorf("kafka read error on topic %s: %v", topic, err)
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			select {
			case outputCh <- m:
			case <-ctx.Done():
				return
			default:
				// 通知是电平触发的，队列满时丢弃不影响结果
				logger.Warnf("kafka consumer queue full, drop message on %s key=%s", topic, string(m.Key))
			}
		}
	}()

	return outputCh, nil
}

func (c *kafkaConsumer) Close() {
	logger.Info("kafka consumer service closing")
}
