package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
)

// RedisSource 按模式订阅 tick_bars:*，运行中新注册的代码不需要重新订阅
type RedisSource struct {
	client *redis.Client
	prefix string
}

func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	if prefix == "" {
		prefix = "tick_bars:"
	}
	return &RedisSource{client: client, prefix: prefix}
}

func (s *RedisSource) Subscribe(ctx context.Context) (<-chan Notification, error) {
	ps := s.client.PSubscribe(ctx, s.prefix+"*")
	// 等待订阅确认
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan Notification, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					logger.Warn("redis tick bar channel closed")
					return
				}
				n := Notification{Symbol: strings.TrimPrefix(m.Channel, s.prefix), Payload: []byte(m.Payload)}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// RedisHistory 读取 zset bars_history:<symbol>，score 为时间戳
type RedisHistory struct {
	client *redis.Client
	prefix string
}

func NewRedisHistory(client *redis.Client, prefix string) *RedisHistory {
	if prefix == "" {
		prefix = "bars_history:"
	}
	return &RedisHistory{client: client, prefix: prefix}
}

// RecentBars 先按新到旧取，再翻转成旧到新
func (h *RedisHistory) RecentBars(ctx context.Context, symbol string, count int) ([]model.Bar, error) {
	if count <= 0 {
		return nil, nil
	}
	zs, err := h.client.ZRevRangeWithScores(ctx, h.prefix+symbol, 0, int64(count-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read bars history %s: %w", symbol, err)
	}

	bars := make([]model.Bar, 0, len(zs))
	for i := len(zs) - 1; i >= 0; i-- {
		member, ok := zs[i].Member.(string)
		if !ok {
			continue
		}
		bar, err := DecodeBar([]byte(member), int64(zs[i].Score))
		if err != nil {
			logger.Warnf("skip bad bar in %s: %v", h.prefix+symbol, err)
			continue
		}
		bars = append(bars, bar)
	}
	return model.NormalizeBars(bars), nil
}
