package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"tradeflow/internal/bus"
	"tradeflow/internal/metrics"
	"tradeflow/pkg/logger"
)

var (
	ErrWorkerExists  = errors.New("worker already running")
	ErrUnknownWorker = errors.New("worker not running")
	ErrNotRunning    = errors.New("engine not running")
)

type EngineOption func(*Engine)

// WithConsumer tick 周期的品种通过总线唤醒
func WithConsumer(c *bus.Consumer) EngineOption {
	return func(e *Engine) { e.consumer = c }
}

func WithLocker(l Locker) EngineOption {
	return func(e *Engine) { e.locker = l }
}

// WithLogFactory 默认每个品种一个日志文件
func WithLogFactory(f func(id string) Log) EngineOption {
	return func(e *Engine) { e.newLog = f }
}

// Engine 管理全部品种的 worker，同一品种同时只有一个
type Engine struct {
	deps     Deps
	consumer *bus.Consumer
	locker   Locker
	newLog   func(id string) Log

	mu      sync.Mutex
	g       *errgroup.Group
	ctx     context.Context
	workers map[string]*running
}

type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewEngine(d Deps, opts ...EngineOption) *Engine {
	e := &Engine{
		deps:    d,
		workers: make(map[string]*running),
		newLog: func(id string) Log {
			return logger.NewInstrumentLogger(id)
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run 启动 ids 对应的 worker 和总线消费，直到 ctx 结束
func (e *Engine) Run(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	e.mu.Lock()
	if e.g != nil {
		e.mu.Unlock()
		return errors.New("engine already running")
	}
	e.g, e.ctx = g, gctx
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.g, e.ctx = nil, nil
		e.mu.Unlock()
	}()

	for _, id := range ids {
		if err := e.Start(id); err != nil {
			logger.Errorf("start worker %s: %v", id, err)
		}
	}

	// worker 运行中随时注册，订阅不依赖启动顺序
	g.Go(func() error {
		if e.consumer == nil {
			<-gctx.Done()
			return nil
		}
		return e.consumer.Run(gctx)
	})
	return g.Wait()
}

// Start 引擎运行时启动一个品种
func (e *Engine) Start(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.g == nil {
		return ErrNotRunning
	}
	if _, ok := e.workers[id]; ok {
		return fmt.Errorf("%w: %s", ErrWorkerExists, id)
	}

	var lease Lease
	if e.locker != nil {
		var err error
		if lease, err = e.locker.Acquire(e.ctx, id); err != nil {
			return err
		}
	}

	log := e.newLog(id)
	wctx, cancel := context.WithCancel(e.ctx)
	r := &running{cancel: cancel, done: make(chan struct{})}
	var sub Subscriber
	if e.consumer != nil {
		sub = e.consumer
	}
	w := New(id, e.deps, log, sub)
	e.workers[id] = r
	metrics.Workers.Inc()

	e.g.Go(func() error {
		defer close(r.done)
		defer e.finish(id, r, log, lease)
		if lease != nil {
			go func() {
				select {
				case <-lease.Lost():
					log.Errorf("lost ownership of %s, stopping worker", id)
					cancel()
				case <-wctx.Done():
				}
			}()
		}
		return w.Run(wctx)
	})
	logger.Infof("worker %s started", id)
	return nil
}

func (e *Engine) finish(id string, r *running, log Log, lease Lease) {
	r.cancel()
	e.mu.Lock()
	if e.workers[id] == r {
		delete(e.workers, id)
	}
	e.mu.Unlock()
	metrics.Workers.Dec()

	if lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := lease.Release(ctx); err != nil {
			logger.Warnf("release lock for %s: %v", id, err)
		}
		cancel()
	}
	if c, ok := log.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	logger.Infof("worker %s stopped", id)
}

// Stop 停止一个品种并等待其退出
func (e *Engine) Stop(id string) error {
	e.mu.Lock()
	r, ok := e.workers[id]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}
	r.cancel()
	<-r.done
	return nil
}

func (e *Engine) Running() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.workers))
	for id := range e.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
