package trend

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"tradeflow/internal/model"
)

// Compute 计算一条均线序列，长度与 closes 相同，数据不足的前段为 NaN
func Compute(closes []float64, def model.TrendDef) ([]float64, error) {
	switch def.Kind {
	case model.EMA:
		return ema(closes, def.Period), nil
	case model.SMA:
		return sma(closes, def.Period), nil
	case model.WilderSmoother:
		return wilder(closes, def.Period), nil
	default:
		return nil, fmt.Errorf("unknown trend kind %q", def.Kind)
	}
}

// EMA 以前 period 根的简单均值作为种子（与 talib 一致）
func ema(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nans(len(closes))
	}
	out := talib.Ema(closes, period)
	maskLookback(out, period)
	return out
}

func sma(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nans(len(closes))
	}
	out := talib.Sma(closes, period)
	maskLookback(out, period)
	return out
}

// wilder Wilder 平滑：种子为前 period 根收盘价的均值，
// 之后 v[i] = v[i-1] + (close[i] - v[i-1]) / period
func wilder(closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 || len(closes) < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev
	for i := period; i < len(closes); i++ {
		prev += (closes[i] - prev) / float64(period)
		out[i] = prev
	}
	return out
}

// talib 对 lookback 区间填 0，这里统一改成 NaN
func maskLookback(out []float64, period int) {
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
