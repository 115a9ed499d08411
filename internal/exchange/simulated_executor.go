package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"tradeflow/internal/model"
)

type paperOrder struct {
	req      model.OrderRequest
	placedAt time.Time
	polls    int
	state    model.OrderState
}

// PaperBroker 模拟券商，本地联调和测试使用
type PaperBroker struct {
	mu          sync.Mutex
	orders      map[model.OrderRef]*paperOrder
	byClient    map[string]model.OrderRef
	placed      []model.OrderRequest
	bars        map[string][]model.Bar
	prices      map[string]float64
	fillLatency time.Duration
	pendingPoll int // 每个订单成交前先返回几次 PENDING

	failPlace  int // 接下来 n 次下单直接失败
	loseAck    int // 接下来 n 次下单被接受但返回错误
	rejectNext int // 接下来 n 笔订单被拒
	failStatus int // 接下来 n 次状态查询失败
}

func NewPaperBroker(fillLatency time.Duration) *PaperBroker {
	return &PaperBroker{
		orders:      make(map[model.OrderRef]*paperOrder),
		byClient:    make(map[string]model.OrderRef),
		bars:        make(map[string][]model.Bar),
		prices:      make(map[string]float64),
		fillLatency: fillLatency,
	}
}

// SetBars 指定某个代码返回的 K 线
func (s *PaperBroker) SetBars(symbol string, bars []model.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[symbol] = bars
}

// 设置初始价格，没有指定 K 线时用来生成随机 K 线
func (s *PaperBroker) SetInitialPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

func (s *PaperBroker) SetPendingPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingPoll = n
}

func (s *PaperBroker) FailNextPlacements(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPlace = n
}

func (s *PaperBroker) LoseNextAcks(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loseAck = n
}

func (s *PaperBroker) RejectNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = n
}

func (s *PaperBroker) FailNextStatus(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = n
}

// Placed 被券商接受的下单请求，按时间顺序
func (s *PaperBroker) Placed() []model.OrderRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OrderRequest(nil), s.placed...)
}

func (s *PaperBroker) ResolveAccount(_ context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", fmt.Errorf("%w: empty account id", model.ErrTransient)
	}
	return "paper-" + accountID, nil
}

func (s *PaperBroker) PlaceOrder(_ context.Context, req model.OrderRequest) (model.OrderRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failPlace > 0 {
		s.failPlace--
		return "", fmt.Errorf("%w: simulated connection reset", model.ErrTransient)
	}
	if req.Quantity <= 0 {
		return "", fmt.Errorf("invalid quantity %d", req.Quantity)
	}

	// 创建订单id
	ref := model.OrderRef(uuid.NewString())
	o := &paperOrder{req: req, placedAt: time.Now(), state: model.OrderPending}
	if s.rejectNext > 0 {
		s.rejectNext--
		o.state = model.OrderRejected
	}
	s.orders[ref] = o
	if req.ClientOrderID != "" {
		s.byClient[req.Account+"|"+req.ClientOrderID] = ref
	}
	s.placed = append(s.placed, req)

	if s.loseAck > 0 {
		s.loseAck--
		return "", fmt.Errorf("%w: simulated timeout after accept", model.ErrTransient)
	}
	return ref, nil
}

func (s *PaperBroker) LookupOrder(_ context.Context, account, clientOrderID string) (model.OrderRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.byClient[account+"|"+clientOrderID]
	return ref, ok, nil
}

func (s *PaperBroker) OrderStatus(_ context.Context, account string, ref model.OrderRef) (model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failStatus > 0 {
		s.failStatus--
		return model.OrderStatus{}, fmt.Errorf("%w: simulated status timeout", model.ErrTransient)
	}
	o, ok := s.orders[ref]
	if !ok || o.req.Account != account {
		return model.OrderStatus{}, fmt.Errorf("order %s not found", ref)
	}
	if o.state == model.OrderPending {
		o.polls++
		if o.polls > s.pendingPoll && time.Since(o.placedAt) >= s.fillLatency {
			o.state = model.OrderFilled
		}
	}
	st := model.OrderStatus{Ref: ref, State: o.state}
	if o.state == model.OrderFilled {
		st.Filled = o.req.Quantity
	}
	return st, nil
}

// FetchBars 有指定 K 线时直接返回，否则按初始价格生成 ±0.5% 波动的随机 K 线
func (s *PaperBroker) FetchBars(_ context.Context, symbol string, iv model.Interval) ([]model.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bars, ok := s.bars[symbol]; ok {
		return append([]model.Bar(nil), bars...), nil
	}

	price, ok := s.prices[symbol]
	if !ok {
		price = 100 + rand.Float64()*100
	}
	step := time.Minute
	switch {
	case iv.Kind == model.IntervalMinute:
		step = time.Duration(iv.Minutes) * time.Minute
	case iv.Raw == "1h":
		step = time.Hour
	case iv.Raw == "4h":
		step = 4 * time.Hour
	case iv.Raw == "1d":
		step = 24 * time.Hour
	}

	const n = 200
	end := time.Now().Truncate(step)
	bars := make([]model.Bar, n)
	for i := 0; i < n; i++ {
		open := price
		price += (rand.Float64()*0.01 - 0.005) * price
		bars[i] = model.Bar{
			Timestamp: end.Add(-time.Duration(n-i) * step),
			Open:      open,
			High:      max(open, price),
			Low:       min(open, price),
			Close:     price,
		}
	}
	s.prices[symbol] = price
	return bars, nil
}
