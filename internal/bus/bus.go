package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"tradeflow/internal/metrics"
	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
)

// Notification 总线上一根新的 tick K 线
type Notification struct {
	Symbol  string
	Payload []byte
}

// Source 订阅全部代码的 K 线通知，由 Consumer 按注册的路由过滤
type Source interface {
	Subscribe(ctx context.Context) (<-chan Notification, error)
}

// History 最近的 tick K 线
type History interface {
	// RecentBars 按时间升序返回最多 count 根
	RecentBars(ctx context.Context, symbol string, count int) ([]model.Bar, error)
}

// Consumer 一个总线代码可能对应多个品种（同一合约的不同参数），收到通知时每个品种置位一次
type Consumer struct {
	src Source

	mu     sync.RWMutex
	routes map[string]map[string]*WakeFlag // 总线代码 -> 品种 -> 唤醒标记
}

func NewConsumer(src Source) *Consumer {
	return &Consumer{
		src:    src,
		routes: make(map[string]map[string]*WakeFlag),
	}
}

// Register 可以在 Run 之前或运行中调用，注册后的下一条通知即生效
func (c *Consumer) Register(busSymbol, instrument string) *WakeFlag {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.routes[busSymbol]
	if !ok {
		m = make(map[string]*WakeFlag)
		c.routes[busSymbol] = m
	}
	if f, ok := m[instrument]; ok {
		return f
	}
	f := NewWakeFlag()
	m[instrument] = f
	return f
}

func (c *Consumer) Unregister(busSymbol, instrument string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.routes[busSymbol], instrument)
	if len(c.routes[busSymbol]) == 0 {
		delete(c.routes, busSymbol)
	}
}

func (c *Consumer) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.routes))
	for s := range c.routes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Run 订阅并分发，直到 ctx 结束
func (c *Consumer) Run(ctx context.Context) error {
	if c.src == nil {
		<-ctx.Done()
		return nil
	}
	ch, err := c.src.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe tick bars: %w", err)
	}
	logger.Infof("subscribed to tick bars, registered symbols: %v", c.Symbols())

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("tick bar subscription closed")
			}
			c.Dispatch(n)
		}
	}
}

// Dispatch 返回被唤醒的品种数，没有注册的代码直接忽略
func (c *Consumer) Dispatch(n Notification) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	routes := c.routes[n.Symbol]
	if len(routes) == 0 {
		return 0
	}

	if bar, err := DecodeBar(n.Payload, 0); err == nil {
		logger.Infof("received new bar for %s: close=%v", n.Symbol, bar.Close)
	} else {
		logger.Warnf("undecodable bar for %s: %v", n.Symbol, err)
	}

	woke := 0
	for instrument, f := range routes {
		f.Set()
		metrics.BusWakeupsTotal.WithLabelValues(instrument).Inc()
		woke++
	}
	return woke
}

// DecodeBar 生产者写入的 json K 线；timestamp 缺失时使用 fallbackMs
func DecodeBar(data []byte, fallbackMs int64) (model.Bar, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Bar{}, err
	}

	var bar model.Bar
	var err error
	if ts, ok := raw["timestamp"]; ok && ts != nil {
		if f, isNum := ts.(float64); isNum {
			// 数字时间戳：大于 1e12 视为毫秒
			if f > 1e12 {
				ts = time.UnixMilli(int64(f))
			} else {
				ts = time.Unix(int64(f), 0)
			}
		}
		if bar.Timestamp, err = cast.ToTimeE(ts); err != nil {
			return model.Bar{}, fmt.Errorf("bar timestamp: %w", err)
		}
	} else if fallbackMs > 0 {
		bar.Timestamp = time.UnixMilli(fallbackMs)
	}
	if bar.Close, err = cast.ToFloat64E(raw["close"]); err != nil {
		return model.Bar{}, fmt.Errorf("bar close: %w", err)
	}
	bar.Open = cast.ToFloat64(raw["open"])
	bar.High = cast.ToFloat64(raw["high"])
	bar.Low = cast.ToFloat64(raw["low"])
	return bar, nil
}
