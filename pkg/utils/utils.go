package utils

import (
	"context"
	"fmt"
	"time"
)

// Retry 尝试执行 fn，如果失败则重试，最多 retries 次
// delay 是两次重试之间的间隔，backoff=true 表示指数退避
func Retry(ctx context.Context, retries int, delay time.Duration, backoff bool, fn func() error) error {
	var err error
	for i := 0; i < retries; i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if i < retries-1 { // 最后一次就不用 sleep 了
			wait := delay
			if backoff {
				wait = delay * time.Duration(1<<i) // 1x,2x,4x,8x...
			}
			if serr := Sleep(ctx, wait); serr != nil {
				return fmt.Errorf("retry interrupted after %d attempts: %w", i+1, err)
			}
		}
	}
	return fmt.Errorf("after %d attempts, last error: %w", retries, err)
}

// Sleep 可被 ctx 打断的 sleep，被打断时返回 ctx.Err()
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
