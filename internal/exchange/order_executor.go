package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"tradeflow/internal/metrics"
	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
	"tradeflow/pkg/recorder"
	"tradeflow/pkg/utils"
)

// Broker 券商适配器，鉴权和 HTTP 细节由实现负责
type Broker interface {
	// 历史 K 线，按时间升序
	FetchBars(ctx context.Context, symbol string, iv model.Interval) ([]model.Bar, error)
	// 下单，返回券商订单号
	PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderRef, error)
	// 查询订单状态
	OrderStatus(ctx context.Context, account string, ref model.OrderRef) (model.OrderStatus, error)
	// 把配置里的账户号换成券商内部账户
	ResolveAccount(ctx context.Context, accountID string) (string, error)
}

// OrderLookup 可选：按客户端订单号查询，下单重试前用来避免重复下单
type OrderLookup interface {
	LookupOrder(ctx context.Context, account, clientOrderID string) (model.OrderRef, bool, error)
}

// Venue 一个下单通道：券商 + 账户
type Venue struct {
	Name      string
	AccountID string
	Broker    Broker
}

type placed struct {
	ref     model.OrderRef
	account string
}

// Executor 下单并确认成交
type Executor struct {
	venues       map[string]Venue
	order        []string // 配置顺序，第一个 venue 同时提供历史 K 线
	retryDelay   time.Duration
	pollInterval time.Duration
	rec          recorder.Recorder

	mu       sync.RWMutex
	accounts map[string]string
}

type Option func(*Executor)

// WithRetryDelay 下单失败后的重试间隔
func WithRetryDelay(d time.Duration) Option {
	return func(e *Executor) { e.retryDelay = d }
}

// WithPollInterval 订单状态的轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(e *Executor) { e.pollInterval = d }
}

func WithRecorder(r recorder.Recorder) Option {
	return func(e *Executor) { e.rec = r }
}

func NewExecutor(venues []Venue, opts ...Option) *Executor {
	e := &Executor{
		venues:       make(map[string]Venue, len(venues)),
		retryDelay:   10 * time.Second,
		pollInterval: time.Second,
		rec:          recorder.Nop{},
		accounts:     make(map[string]string),
	}
	for _, v := range venues {
		e.venues[v.Name] = v
		e.order = append(e.order, v.Name)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Venues 按配置顺序
func (e *Executor) Venues() []string {
	return append([]string(nil), e.order...)
}

// Execute 下单 + 确认。下单失败（网络、鉴权）按固定间隔从下单开始重试，直到 ctx 结束；
// ctx 已经结束时不下单，已经被券商接受的订单不会因为 ctx 取消而放弃确认
func (e *Executor) Execute(ctx context.Context, leg model.Leg) (model.Fill, error) {
	v, ok := e.venues[leg.Venue]
	if !ok {
		return model.Fill{}, fmt.Errorf("unknown venue %q", leg.Venue)
	}
	if leg.ClientOrderID == "" {
		leg.ClientOrderID = uuid.NewString()
	}

	p, err := e.place(ctx, v, leg)
	if err != nil {
		e.record(leg, "", 0, model.OrderPending, err)
		return model.Fill{}, err
	}
	logger.Info("order placed",
		logger.Pair("instrument", leg.Instrument),
		logger.Pair("venue", leg.Venue),
		logger.Pair("side", leg.Side),
		logger.Pair("qty", leg.Quantity),
		logger.Pair("ref", p.ref),
		logger.Pair("client_id", leg.ClientOrderID))

	fill, err := e.Confirm(context.WithoutCancel(ctx), leg.Venue, p.account, p.ref)
	if err != nil {
		state := model.OrderPending
		if errors.Is(err, model.ErrOrderRejected) {
			state = model.OrderRejected
		}
		e.record(leg, p.ref, 0, state, err)
		return model.Fill{Ref: p.ref}, err
	}
	e.record(leg, p.ref, fill.Quantity, model.OrderFilled, nil)
	return fill, nil
}

func (e *Executor) place(ctx context.Context, v Venue, leg model.Leg) (placed, error) {
	// 还没发出任何请求时才允许因 ctx 放弃
	if err := ctx.Err(); err != nil {
		return placed{}, err
	}
	lookup, canLookup := v.Broker.(OrderLookup)
	attempts := 0
	var accepted *placed

	policy := retrypolicy.NewBuilder[placed]().
		HandleIf(func(_ placed, err error) bool {
			return err != nil && !errors.Is(err, model.ErrOrderRejected)
		}).
		WithDelay(e.retryDelay).
		WithMaxRetries(-1).
		OnRetry(func(ev failsafe.ExecutionEvent[placed]) {
			metrics.PlaceRetriesTotal.WithLabelValues(leg.Venue).Inc()
			logger.Warnf("[%s] place %s %s on %s failed, retry #%d in %s: %v",
				leg.Instrument, leg.Side, leg.Symbol, leg.Venue, ev.Attempts(), e.retryDelay, ev.LastError())
		}).
		Build()

	p, err := failsafe.With[placed](policy).WithContext(ctx).Get(func() (placed, error) {
		attempts++
		account, err := e.account(ctx, v)
		if err != nil {
			return placed{}, fmt.Errorf("resolve account %s: %w", v.Name, err)
		}
		// 上一次可能已经被券商接受，只是没拿到回包
		if attempts > 1 && canLookup {
			ref, found, err := lookup.LookupOrder(ctx, account, leg.ClientOrderID)
			if err != nil {
				return placed{}, fmt.Errorf("lookup order %s: %w", leg.ClientOrderID, err)
			}
			if found {
				logger.Infof("[%s] adopt accepted order %s for client id %s", leg.Instrument, ref, leg.ClientOrderID)
				accepted = &placed{ref: ref, account: account}
				return *accepted, nil
			}
		}
		ref, err := v.Broker.PlaceOrder(ctx, model.OrderRequest{
			Symbol:        leg.Symbol,
			Side:          leg.Side,
			Quantity:      leg.Quantity,
			Account:       account,
			ClientOrderID: leg.ClientOrderID,
		})
		if err != nil {
			return placed{}, err
		}
		accepted = &placed{ref: ref, account: account}
		return *accepted, nil
	})
	if err == nil {
		return p, nil
	}
	// ctx 结束时 failsafe 会丢掉最后一次的结果，券商已经接受的订单仍然要确认
	if accepted != nil {
		return *accepted, nil
	}
	if ctx.Err() != nil && attempts > 0 && canLookup {
		if adopted, ok := e.adoptAfterCancel(ctx, v, lookup, leg); ok {
			return adopted, nil
		}
	}
	return placed{}, err
}

// adoptAfterCancel 重试被 ctx 打断时，最后一次下单可能已经被接受
func (e *Executor) adoptAfterCancel(ctx context.Context, v Venue, lookup OrderLookup, leg model.Leg) (placed, bool) {
	dctx := context.WithoutCancel(ctx)
	account, err := e.account(dctx, v)
	if err != nil {
		return placed{}, false
	}
	ref, found, err := lookup.LookupOrder(dctx, account, leg.ClientOrderID)
	if err != nil || !found {
		return placed{}, false
	}
	logger.Warnf("[%s] placement cancelled but order %s already accepted, confirming", leg.Instrument, ref)
	return placed{ref: ref, account: account}, true
}

// Confirm 轮询订单状态直到终态：成交返回 Fill，拒单立即返回 ErrOrderRejected，
// 其余情况（未成交、查询失败）等待后继续查询
func (e *Executor) Confirm(ctx context.Context, venue, account string, ref model.OrderRef) (model.Fill, error) {
	v, ok := e.venues[venue]
	if !ok {
		return model.Fill{}, fmt.Errorf("unknown venue %q", venue)
	}
	for {
		st, err := v.Broker.OrderStatus(ctx, account, ref)
		switch {
		case err != nil:
			logger.Warnf("order %s status on %s: %v", ref, venue, err)
		case st.State == model.OrderFilled:
			return model.Fill{Ref: ref, Quantity: st.Filled}, nil
		case st.State == model.OrderRejected:
			return model.Fill{Ref: ref}, fmt.Errorf("%w: %s on %s", model.ErrOrderRejected, ref, venue)
		}
		if err := utils.Sleep(ctx, e.pollInterval); err != nil {
			return model.Fill{Ref: ref}, err
		}
	}
}

// FetchBars 从第一个 venue 取历史 K 线，失败按固定间隔重试直到 ctx 结束
func (e *Executor) FetchBars(ctx context.Context, symbol string, iv model.Interval) ([]model.Bar, error) {
	if len(e.order) == 0 {
		return nil, errors.New("no venue configured")
	}
	v := e.venues[e.order[0]]

	policy := retrypolicy.NewBuilder[[]model.Bar]().
		HandleIf(func(_ []model.Bar, err error) bool { return err != nil }).
		WithDelay(e.retryDelay).
		WithMaxRetries(-1).
		OnRetry(func(ev failsafe.ExecutionEvent[[]model.Bar]) {
			logger.Warnf("fetch %s %s bars failed, retry #%d: %v", symbol, iv, ev.Attempts(), ev.LastError())
		}).
		Build()

	return failsafe.With[[]model.Bar](policy).WithContext(ctx).Get(func() ([]model.Bar, error) {
		return v.Broker.FetchBars(ctx, symbol, iv)
	})
}

// account 每个 venue 只解析一次
func (e *Executor) account(ctx context.Context, v Venue) (string, error) {
	e.mu.RLock()
	acc, ok := e.accounts[v.Name]
	e.mu.RUnlock()
	if ok {
		return acc, nil
	}

	acc, err := v.Broker.ResolveAccount(ctx, v.AccountID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.accounts[v.Name] = acc
	e.mu.Unlock()
	return acc, nil
}

func (e *Executor) record(leg model.Leg, ref model.OrderRef, filled int, state model.OrderState, cause error) {
	metrics.OrdersTotal.WithLabelValues(leg.Venue, string(leg.Side), string(state)).Inc()
	rec := &model.OrderRecord{
		Instrument:    leg.Instrument,
		Symbol:        leg.Symbol,
		Venue:         leg.Venue,
		Side:          leg.Side,
		Quantity:      leg.Quantity,
		Filled:        filled,
		OrderRef:      ref,
		ClientOrderID: leg.ClientOrderID,
		State:         state,
		CreatedAt:     time.Now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := e.rec.Record(rec); err != nil {
		logger.Errorf("[%s] record order %s: %v", leg.Instrument, ref, err)
	}
}
