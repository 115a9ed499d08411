package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"tradeflow/internal/bus"
	"tradeflow/internal/config"
	"tradeflow/internal/metrics"
	"tradeflow/internal/model"
	"tradeflow/internal/position"
	"tradeflow/internal/store"
	"tradeflow/internal/timegate"
	"tradeflow/pkg/utils"
)

// BarFetcher 券商历史 K 线
type BarFetcher interface {
	FetchBars(ctx context.Context, symbol string, iv model.Interval) ([]model.Bar, error)
}

// SymbolResolver 连续合约 -> 当前合约
type SymbolResolver interface {
	Resolve(id string, now time.Time) (string, error)
}

// Subscriber 总线路由，bus.Consumer 实现
type Subscriber interface {
	Register(busSymbol, instrument string) *bus.WakeFlag
	Unregister(busSymbol, instrument string)
}

// Log 每个品种的日志，收盘后归档
type Log interface {
	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
	Rotate() error
}

type Timing struct {
	WindowPoll      time.Duration // 不在周运行窗口
	DisabledPoll    time.Duration // 关闭交易
	MarketPoll      time.Duration // 休市、未开盘
	TickWaitTimeout time.Duration // 等待新 tick K 线
	TickHistory     int           // tick K 线在最大周期之外多取的数量
}

// Deps worker 依赖，Engine 里所有 worker 共享（Log 除外）
type Deps struct {
	Params   config.ParamSource
	Gate     *timegate.Gate
	Store    store.Store
	Machine  *position.Machine
	Bars     BarFetcher
	History  bus.History    // tick 周期使用
	Resolver SymbolResolver // 为空时品种代码即下单代码
	Timing   Timing

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Worker 一个品种一个，独占该品种的仓位记录
type Worker struct {
	id   string
	d    Deps
	log  Log
	sub  Subscriber // 为空时没有总线，tick 周期只会超时
	wake *bus.WakeFlag

	busSymbol string // 当前注册在总线上的代码
	rotated   string // 已经归档过日志的交易日
}

func New(id string, d Deps, log Log, sub Subscriber) *Worker {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = utils.Sleep
	}
	return &Worker{id: id, d: d, log: log, sub: sub, wake: bus.NewWakeFlag()}
}

func (w *Worker) ID() string {
	return w.id
}

// Run 循环直到 ctx 结束
func (w *Worker) Run(ctx context.Context) error {
	w.log.Infof("MAIN STRATEGY STARTED for %s", w.id)
	defer w.log.Infof("strategy loop for %s stopped", w.id)
	defer w.unsubscribe()
	if params, err := w.d.Params.Get(w.id); err == nil {
		w.syncBus(params, w.d.Now())
	}
	for ctx.Err() == nil {
		if err := w.safeStep(ctx); err != nil && ctx.Err() == nil {
			w.log.Errorf("loop step: %v", err)
		}
	}
	return nil
}

func (w *Worker) safeStep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CycleErrorsTotal.WithLabelValues(w.id).Inc()
			w.log.Errorf("panic in main loop for %s: %v\n%s", w.id, r, debug.Stack())
			err = w.d.Sleep(ctx, w.d.Timing.WindowPoll)
		}
	}()
	return w.step(ctx)
}

// step 循环的一次迭代：时间窗口 -> 交易开关 -> 交易时段 -> 等待触发 -> 决策
func (w *Worker) step(ctx context.Context) error {
	now := w.d.Now()
	if !w.d.Gate.IsWithinWeeklyWindow(now) {
		w.log.Debugf("outside weekly trading window")
		return w.d.Sleep(ctx, w.d.Timing.WindowPoll)
	}

	params, err := w.d.Params.Get(w.id)
	if err != nil {
		w.log.Errorf("load params: %v", err)
		return w.d.Sleep(ctx, w.d.Timing.MarketPoll)
	}
	w.syncBus(params, now)
	if !params.TradeEnabled {
		w.log.Infof("Skipping strategy for %s, trade flag is FALSE", w.id)
		if err := w.resetToFlat(ctx); err != nil {
			w.log.Errorf("reset position: %v", err)
		}
		return w.d.Sleep(ctx, w.d.Timing.DisabledPoll)
	}

	if params.Continuous() {
		if w.d.Gate.IsHoliday(now) {
			w.log.Infof("Market closed due to holiday")
			return w.d.Sleep(ctx, w.d.Timing.MarketPoll)
		}
	} else {
		open, last, ok := w.d.Gate.MarketHours(now)
		switch {
		case !ok:
			w.log.Infof("Market closed today")
			return w.d.Sleep(ctx, w.d.Timing.MarketPoll)
		case now.Before(open):
			return w.sleepUntil(ctx, minTime(open, now.Add(w.d.Timing.MarketPoll)))
		case now.After(last):
			w.afterClose(now)
			next := w.d.Gate.NextSessionOpen(now)
			return w.sleepUntil(ctx, minTime(next, now.Add(w.d.Timing.MarketPoll)))
		}
	}

	if params.Interval.IsTick() {
		woke, err := w.wake.Wait(ctx, w.d.Timing.TickWaitTimeout)
		if err != nil {
			return err
		}
		if !woke {
			w.log.Debugf("No new bar received for %s in %s", w.id, w.d.Timing.TickWaitTimeout)
			return nil
		}
		w.runCycle(ctx, params)
		return nil
	}

	at, err := w.d.Gate.NextAlignedWake(now, params.Interval, params.Continuous())
	if err != nil {
		w.log.Errorf("schedule %s: %v", params.Interval, err)
		return w.d.Sleep(ctx, w.d.Timing.MarketPoll)
	}
	if err := w.sleepUntil(ctx, at); err != nil {
		return err
	}
	w.runCycle(ctx, params)
	return nil
}

// syncBus tick 周期的品种注册到总线；参数改成时间周期或换月后随之调整
func (w *Worker) syncBus(params model.InstrumentParams, now time.Time) {
	if w.sub == nil {
		return
	}
	want := ""
	if params.Interval.IsTick() {
		s, err := w.symbol(now)
		if err != nil {
			w.log.Errorf("bus symbol for %s: %v", w.id, err)
			return
		}
		want = s
	}
	if want == w.busSymbol {
		return
	}
	w.unsubscribe()
	if want != "" {
		w.wake = w.sub.Register(want, w.id)
		w.busSymbol = want
		w.log.Infof("listening for %s tick bars on %s", w.id, want)
	}
}

func (w *Worker) unsubscribe() {
	if w.sub == nil || w.busSymbol == "" {
		return
	}
	w.sub.Unregister(w.busSymbol, w.id)
	w.busSymbol = ""
	w.wake = bus.NewWakeFlag()
}

// runCycle 决策过程中的错误和 panic 都不会结束循环
func (w *Worker) runCycle(ctx context.Context, params model.InstrumentParams) {
	defer func() {
		if r := recover(); r != nil {
			metrics.CycleErrorsTotal.WithLabelValues(w.id).Inc()
			w.log.Errorf("panic in strategy for %s: %v\n%s", w.id, r, debug.Stack())
		}
	}()
	if err := w.Cycle(ctx, params); err != nil {
		metrics.CycleErrorsTotal.WithLabelValues(w.id).Inc()
		w.log.Errorf("Error in strategy for %s: %v", w.id, err)
	}
}

// resetToFlat 关闭交易时把记录改成 FLAT，不下单
func (w *Worker) resetToFlat(ctx context.Context) error {
	rec, err := w.d.Store.Load(ctx, w.id)
	if err != nil {
		return err
	}
	if rec.IsFlat() {
		return nil
	}
	w.log.Warnf("trade disabled with %s on record, reset to FLAT without orders", rec.Action)
	flat := model.FlatRecord(w.id)
	flat.UpdatedAt = w.d.Now()
	if err := w.d.Store.Save(ctx, flat); err != nil {
		return fmt.Errorf("save flat record: %w", err)
	}
	metrics.Position.WithLabelValues(w.id).Set(0)
	return nil
}

// afterClose 每个交易日收盘后归档一次日志
func (w *Worker) afterClose(now time.Time) {
	day := now.In(w.d.Gate.Location()).Format("2006-01-02")
	if w.rotated == day {
		return
	}
	w.log.Infof("Market closed")
	if err := w.log.Rotate(); err != nil {
		w.log.Errorf("rotate log: %v", err)
	}
	w.rotated = day
}

func (w *Worker) sleepUntil(ctx context.Context, at time.Time) error {
	return w.d.Sleep(ctx, at.Sub(w.d.Now()))
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
