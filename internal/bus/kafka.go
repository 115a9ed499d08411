package bus

import (
	"context"

	"tradeflow/pkg/kafka"
)

// KafkaSource 从 topic 消费 K 线通知，消息 key 为代码
type KafkaSource struct {
	consumer kafka.ConsumerService
	topic    string
	groupID  string
}

func NewKafkaSource(consumer kafka.ConsumerService, topic, groupID string) *KafkaSource {
	return &KafkaSource{consumer: consumer, topic: topic, groupID: groupID}
}

func (s *KafkaSource) Subscribe(ctx context.Context) (<-chan Notification, error) {
	msgs, err := s.consumer.Consume(ctx, s.topic, s.groupID)
	if err != nil {
		return nil, err
	}

	out := make(chan Notification, 64)
	go func() {
		defer close(out)
		for m := range msgs {
			sym := string(m.Key)
			if sym == "" {
				continue
			}
			select {
			case out <- Notification{Symbol: sym, Payload: m.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
