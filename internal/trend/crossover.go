package trend

import (
	"math"

	"tradeflow/internal/model"
)

// Signal 一次计算的交叉结果
type Signal int

const (
	SignalNone Signal = iota
	// 快线上穿慢线
	SignalUp
	// 快线下穿慢线
	SignalDown
	// K 线不足或最后两根存在 NaN，本轮跳过
	SignalInsufficient
)

func (s Signal) String() string {
	switch s {
	case SignalUp:
		return "up-cross"
	case SignalDown:
		return "down-cross"
	case SignalInsufficient:
		return "insufficient-data"
	default:
		return "none"
	}
}

// CrossedUp 最新一对 a > b，且前一对 a < b
func CrossedUp(a, b []float64) bool {
	if !crossable(a, b) {
		return false
	}
	n := len(a)
	return a[n-1] > b[n-1] && a[n-2] < b[n-2]
}

// CrossedDown CrossedUp 的镜像
func CrossedDown(a, b []float64) bool {
	if !crossable(a, b) {
		return false
	}
	n := len(a)
	return a[n-1] < b[n-1] && a[n-2] > b[n-2]
}

func crossable(a, b []float64) bool {
	return len(a) >= 2 && len(a) == len(b) && !tailNaN(a) && !tailNaN(b)
}

func tailNaN(s []float64) bool {
	n := len(s)
	return math.IsNaN(s[n-1]) || math.IsNaN(s[n-2])
}

// Result 附带最后两根的均线值，方便日志
type Result struct {
	Signal Signal
	Trend1 [2]float64 // 前一根、最新一根
	Trend2 [2]float64
}

// Evaluate 计算两条均线并判断交叉
func Evaluate(bars []model.Bar, t1, t2 model.TrendDef) (Result, error) {
	need := t1.Period
	if t2.Period > need {
		need = t2.Period
	}
	if len(bars) < need || len(bars) < 2 {
		return Result{Signal: SignalInsufficient}, nil
	}

	closes := model.Closes(bars)
	s1, err := Compute(closes, t1)
	if err != nil {
		return Result{}, err
	}
	s2, err := Compute(closes, t2)
	if err != nil {
		return Result{}, err
	}

	n := len(closes)
	res := Result{
		Trend1: [2]float64{s1[n-2], s1[n-1]},
		Trend2: [2]float64{s2[n-2], s2[n-1]},
	}
	switch {
	case tailNaN(s1) || tailNaN(s2):
		res.Signal = SignalInsufficient
	case CrossedUp(s1, s2):
		res.Signal = SignalUp
	case CrossedDown(s1, s2):
		res.Signal = SignalDown
	default:
		res.Signal = SignalNone
	}
	return res, nil
}
