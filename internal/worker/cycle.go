package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"tradeflow/internal/metrics"
	"tradeflow/internal/model"
	"tradeflow/internal/position"
	"tradeflow/internal/trend"
)

// Cycle 一次决策：取 K 线 -> 计算交叉 -> 状态迁移 -> 保存。
// params 为本次迭代读到的参数；开始下单之后不再响应 ctx 取消
func (w *Worker) Cycle(ctx context.Context, params model.InstrumentParams) error {
	now := w.d.Now()
	symbol, err := w.symbol(now)
	if err != nil {
		return err
	}
	w.log.Infof("Running strategy for %s (%s) with params: interval=%s trend1=%s trend2=%s qty=%v",
		w.id, symbol, params.Interval, params.Trend1, params.Trend2, params.Quantities)

	bars, err := w.bars(ctx, symbol, params, now)
	if err != nil {
		return err
	}

	res, err := trend.Evaluate(bars, params.Trend1, params.Trend2)
	if err != nil {
		return err
	}
	metrics.SignalsTotal.WithLabelValues(w.id, res.Signal.String()).Inc()
	if res.Signal == trend.SignalInsufficient {
		w.log.Infof("Insufficient data for %s: %d bars, need %d", symbol, len(bars), params.MaxPeriod())
		return nil
	}
	w.log.Infof("trend1=%.4f->%.4f trend2=%.4f->%.4f signal=%s",
		res.Trend1[0], res.Trend1[1], res.Trend2[0], res.Trend2[1], res.Signal)

	rec, err := w.d.Store.Load(ctx, w.id)
	if err != nil {
		return err
	}
	// 停止请求只在下单前生效
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	next, changed, applyErr := w.d.Machine.Apply(ctx, rec, res.Signal, position.Target{
		Instrument: w.id,
		Symbol:     symbol,
		Quantities: params.Quantities,
	})
	if changed {
		if err := w.d.Store.Save(ctx, next); err != nil {
			return multierr.Append(applyErr, fmt.Errorf("save position: %w", err))
		}
		metrics.Position.WithLabelValues(w.id).Set(positionValue(next.Action))
		w.log.Infof("position %s -> %s refs=%v", rec.Action, next.Action, next.OrderRefs)
	}
	if position.IsRejection(applyErr) {
		w.log.Warnf("order rejected for %s: %v", w.id, applyErr)
		return nil
	}
	if applyErr != nil {
		return applyErr
	}
	w.log.Infof("Strategy for %s completed", w.id)
	return nil
}

// symbol 实际下单和订阅的代码，期货换成当前合约
func (w *Worker) symbol(now time.Time) (string, error) {
	if w.d.Resolver == nil {
		return w.id, nil
	}
	s, err := w.d.Resolver.Resolve(w.id, now)
	if err != nil {
		return "", fmt.Errorf("resolve contract: %w", err)
	}
	return s, nil
}

func (w *Worker) bars(ctx context.Context, symbol string, params model.InstrumentParams, now time.Time) ([]model.Bar, error) {
	if params.Interval.IsTick() {
		if w.d.History == nil {
			return nil, fmt.Errorf("no tick bar history configured for %s", params.Interval)
		}
		w.log.Infof("Using tick data for %s", symbol)
		return w.d.History.RecentBars(ctx, symbol, params.MaxPeriod()+w.d.Timing.TickHistory)
	}

	w.log.Infof("Using historical data for %s", symbol)
	bars, err := w.d.Bars.FetchBars(ctx, symbol, params.Interval)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	return model.DropUnclosed(model.NormalizeBars(bars), now), nil
}

func positionValue(a model.PositionAction) float64 {
	switch a {
	case model.Long:
		return 1
	case model.Short:
		return -1
	}
	return 0
}
