package bus

import (
	"context"
	"time"
)

// WakeFlag 电平触发的唤醒标记：多次 Set 在被消费前只算一次
type WakeFlag struct {
	ch chan struct{}
}

func NewWakeFlag() *WakeFlag {
	return &WakeFlag{ch: make(chan struct{}, 1)}
}

// Set 非阻塞，已经置位时直接返回
func (f *WakeFlag) Set() {
	select {
	case f.ch <- struct{}{}:
	default:
	}
}

// IsSet 只看不清
func (f *WakeFlag) IsSet() bool {
	return len(f.ch) > 0
}

// Wait 等到被置位（同时清除）或超时。超时返回 false，ctx 结束返回 ctx.Err()
func (f *WakeFlag) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-f.ch:
		return true, nil
	case <-t.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
