package model

import (
	"errors"
	"time"
)

// OrderSide 下单指令，同时表达方向和开平
type OrderSide string

const (
	// 买入开多
	BuyToOpen OrderSide = "buy_to_open"
	// 卖出平多
	SellToClose OrderSide = "sell_to_close"
	// 卖出开空
	SellToOpen OrderSide = "sell_to_open"
	// 买入平空
	BuyToClose OrderSide = "buy_to_close"
)

// Opening 是否为开仓指令
func (s OrderSide) Opening() bool {
	return s == BuyToOpen || s == SellToOpen
}

// OrderRef 券商返回的订单号
type OrderRef string

// OrderState 订单在券商侧的状态
type OrderState string

const (
	OrderFilled   OrderState = "FILLED"
	OrderRejected OrderState = "REJECTED"
	OrderPending  OrderState = "PENDING"
)

// Terminal 成交或拒单都是终态
func (s OrderState) Terminal() bool {
	return s == OrderFilled || s == OrderRejected
}

type OrderStatus struct {
	Ref    OrderRef
	State  OrderState
	Filled int // 已成交数量
}

// OrderRequest 一条下单请求，对应一个 venue 的一条腿
type OrderRequest struct {
	Symbol        string
	Side          OrderSide
	Quantity      int
	Account       string // ResolveAccount 之后的券商账户
	ClientOrderID string // 幂等键，重试时复用
}

// Fill 确认成交的结果
type Fill struct {
	Ref      OrderRef
	Quantity int
}

// 订单流水，用于记录每一条腿的执行结果
type OrderRecord struct {
	ID            uint       `gorm:"column:id;primary_key;" json:"id"`
	Instrument    string     `gorm:"column:instrument" json:"instrument"`
	Symbol        string     `gorm:"column:symbol" json:"symbol"`
	Venue         string     `gorm:"column:venue" json:"venue"`
	Side          OrderSide  `gorm:"column:side" json:"side"`
	Quantity      int        `gorm:"column:quantity" json:"quantity"`
	Filled        int        `gorm:"column:filled" json:"filled"`
	OrderRef      OrderRef   `gorm:"column:order_ref" json:"order_ref"`
	ClientOrderID string     `gorm:"column:client_order_id" json:"client_order_id"`
	State         OrderState `gorm:"column:state" json:"state"`
	Error         string     `gorm:"column:error" json:"error,omitempty"`
	CreatedAt     time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (OrderRecord) TableName() string {
	return "order_record"
}

var (
	// 券商明确拒单，对这条腿是终态
	ErrOrderRejected = errors.New("order rejected")
	// 网络、鉴权等可重试错误
	ErrTransient = errors.New("transient broker error")
)

// Leg 状态迁移中的一笔订单，一个 venue 一条
type Leg struct {
	Instrument    string
	Venue         string
	Symbol        string // 下单使用的代码，期货为具体合约
	Side          OrderSide
	Quantity      int
	ClientOrderID string
}

func (r OrderRecord) RecordKey() string {
	return r.Instrument
}
