package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidInterval = errors.New("invalid interval")

// IntervalKind K 线周期的种类
type IntervalKind int

const (
	// 分钟周期 1/2/5/15/30
	IntervalMinute IntervalKind = iota + 1
	// 1h / 4h / 1d，按交易时段对齐
	IntervalSymbolic
	// 按成交笔数聚合的 tick K 线，由总线驱动
	IntervalTick
)

// 支持的分钟周期
var minuteIntervals = map[int]bool{1: true, 2: true, 5: true, 15: true, 30: true}

type Interval struct {
	Raw     string
	Kind    IntervalKind
	Minutes int // IntervalMinute
	Ticks   int // IntervalTick
}

func (i Interval) String() string {
	return i.Raw
}

func (i Interval) IsTick() bool {
	return i.Kind == IntervalTick
}

// ParseInterval 解析配置里的周期字符串："5"、"1h"、"4h"、"1d"、"500t"
func ParseInterval(s string) (Interval, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	switch raw {
	case "1h", "4h", "1d":
		return Interval{Raw: raw, Kind: IntervalSymbolic}, nil
	}

	if strings.HasSuffix(raw, "t") {
		n, err := strconv.Atoi(strings.TrimSuffix(raw, "t"))
		if err != nil || n <= 0 {
			return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
		}
		return Interval{Raw: raw, Kind: IntervalTick, Ticks: n}, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || !minuteIntervals[n] {
		return Interval{}, fmt.Errorf("%w: %q", ErrInvalidInterval, s)
	}
	return Interval{Raw: raw, Kind: IntervalMinute, Minutes: n}, nil
}

// TrendKind 均线类型
type TrendKind string

const (
	EMA            TrendKind = "EMA"
	SMA            TrendKind = "SMA"
	WilderSmoother TrendKind = "WilderSmoother"
)

// ParseTrendKind 未知类型在加载配置时就拒绝
func ParseTrendKind(s string) (TrendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ema":
		return EMA, nil
	case "sma":
		return SMA, nil
	case "wildersmoother", "wilder":
		return WilderSmoother, nil
	default:
		return "", fmt.Errorf("unknown trend kind %q", s)
	}
}

type TrendDef struct {
	Kind   TrendKind `json:"kind"`
	Period int       `json:"period"`
}

func (d TrendDef) String() string {
	return fmt.Sprintf("%s(%d)", d.Kind, d.Period)
}

// InstrumentParams 单个品种的策略参数，每次循环重新读取，核心逻辑只读不写
type InstrumentParams struct {
	ID           string
	Interval     Interval
	TradeEnabled bool
	Trend1       TrendDef
	Trend2       TrendDef
	Quantities   map[string]int // venue -> 下单数量，0 表示该 venue 不下单
}

// Continuous 期货类品种（/ES）全天交易，股票按交易时段
func (p InstrumentParams) Continuous() bool {
	return IsContinuous(p.ID)
}

func IsContinuous(id string) bool {
	return strings.HasPrefix(id, "/")
}

// MaxPeriod 计算交叉所需的最少 K 线数量
func (p InstrumentParams) MaxPeriod() int {
	if p.Trend1.Period > p.Trend2.Period {
		return p.Trend1.Period
	}
	return p.Trend2.Period
}
