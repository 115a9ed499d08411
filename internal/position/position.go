package position

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/multierr"
	"tradeflow/internal/model"
	"tradeflow/internal/trend"
	"tradeflow/pkg/logger"
)

// Executor 下单并确认成交
type Executor interface {
	Execute(ctx context.Context, leg model.Leg) (model.Fill, error)
}

// Phase 一组可以独立执行的腿，每个 venue 一条
type Phase struct {
	Closing bool
	Legs    []model.Leg
}

// Target 本次下单的品种和各 venue 数量
type Target struct {
	Instrument string
	Symbol     string         // 实际下单代码，期货为具体合约
	Quantities map[string]int // venue -> 数量
}

type transition struct {
	to    model.PositionAction
	close model.OrderSide // 为空表示不需要平仓
	open  model.OrderSide
}

var transitions = map[model.PositionAction]map[trend.Signal]transition{
	model.Flat: {
		trend.SignalUp:   {to: model.Long, open: model.BuyToOpen},
		trend.SignalDown: {to: model.Short, open: model.SellToOpen},
	},
	model.Long: {
		trend.SignalDown: {to: model.Short, close: model.SellToClose, open: model.SellToOpen},
	},
	model.Short: {
		trend.SignalUp: {to: model.Long, close: model.BuyToClose, open: model.BuyToOpen},
	},
}

// Next 状态迁移表，其它组合不动
func Next(current model.PositionAction, sig trend.Signal) (model.PositionAction, bool) {
	if current == "" {
		current = model.Flat
	}
	tr, ok := transitions[current][sig]
	if !ok {
		return current, false
	}
	return tr.to, true
}

// Plan 返回目标状态和按顺序执行的阶段：先平仓后开仓。数量为 0 的 venue 不下单
func Plan(current model.PositionAction, sig trend.Signal, t Target) (model.PositionAction, []Phase) {
	if current == "" {
		current = model.Flat
	}
	tr, ok := transitions[current][sig]
	if !ok {
		return current, nil
	}

	venues := make([]string, 0, len(t.Quantities))
	for v, q := range t.Quantities {
		if q > 0 {
			venues = append(venues, v)
		}
	}
	sort.Strings(venues)

	legs := func(side model.OrderSide) []model.Leg {
		out := make([]model.Leg, 0, len(venues))
		for _, v := range venues {
			out = append(out, model.Leg{
				Instrument: t.Instrument,
				Venue:      v,
				Symbol:     t.Symbol,
				Side:       side,
				Quantity:   t.Quantities[v],
			})
		}
		return out
	}

	var phases []Phase
	if tr.close != "" {
		phases = append(phases, Phase{Closing: true, Legs: legs(tr.close)})
	}
	phases = append(phases, Phase{Legs: legs(tr.open)})
	return tr.to, phases
}

// Machine 执行状态迁移
type Machine struct {
	exec Executor
	now  func() time.Time
}

func NewMachine(exec Executor) *Machine {
	return &Machine{exec: exec, now: time.Now}
}

// Apply 根据信号执行迁移，返回需要整条写入的新记录。
// changed=false 表示记录不需要写。
// 一旦开始下单就执行到底，不受 ctx 取消影响，调用方需要在调用前检查 ctx。
// 平仓腿失败：放弃本次反手，保留原状态；
// 开仓腿失败：该 venue 不记录订单号，只要有一条开仓腿成交就进入新状态，全部失败则为 FLAT
func (m *Machine) Apply(ctx context.Context, rec model.PositionRecord, sig trend.Signal, t Target) (model.PositionRecord, bool, error) {
	target, phases := Plan(rec.Action, sig, t)
	if len(phases) == 0 {
		return rec, false, nil
	}
	ctx = context.WithoutCancel(ctx)
	logger.Infof("[%s] %s on %s -> %s", t.Instrument, sig, actionOf(rec), target)

	var errs error
	for _, ph := range phases {
		if !ph.Closing {
			continue
		}
		for _, leg := range ph.Legs {
			if _, err := m.exec.Execute(ctx, leg); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", leg.Venue, leg.Side, err))
			}
		}
	}
	if errs != nil {
		logger.Error("ALERT close leg failed, reversal aborted, position kept",
			logger.Pair("instrument", t.Instrument),
			logger.Pair("state", actionOf(rec)),
			logger.Pair("signal", sig.String()),
			logger.Pair("err", errs.Error()))
		return rec, false, errs
	}

	next := model.PositionRecord{
		Instrument: t.Instrument,
		Action:     target,
		OrderRefs:  make(map[string]model.OrderRef),
		UpdatedAt:  m.now(),
	}
	var opened, attempted int
	for _, ph := range phases {
		if ph.Closing {
			continue
		}
		for _, leg := range ph.Legs {
			attempted++
			fill, err := m.exec.Execute(ctx, leg)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("%s %s: %w", leg.Venue, leg.Side, err))
				continue
			}
			opened++
			next.OrderRefs[leg.Venue] = fill.Ref
		}
	}

	if errs != nil {
		level := "partially"
		if opened == 0 && attempted > 0 {
			// 平仓已完成，开仓全部失败，实际是空仓
			next.Action = model.Flat
			level = "entirely"
		}
		logger.Error("ALERT open leg failed",
			logger.Pair("instrument", t.Instrument),
			logger.Pair("failed", level),
			logger.Pair("state", next.Action),
			logger.Pair("err", errs.Error()))
	}
	if len(next.OrderRefs) == 0 {
		next.OrderRefs = nil
	}
	return next, true, errs
}

// IsRejection 所有失败都是拒单
func IsRejection(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, model.ErrOrderRejected) {
			return false
		}
	}
	return true
}

func actionOf(rec model.PositionRecord) model.PositionAction {
	if rec.Action == "" {
		return model.Flat
	}
	return rec.Action
}
