package trend

import (
	"math"
	"testing"
	"time"

	"tradeflow/internal/model"
)

func barsFromCloses(closes []float64) []model.Bar {
	base := time.Date(2025, 3, 3, 9, 30, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{Timestamp: base.Add(time.Duration(i) * time.Minute), Open: c, High: c, Low: c, Close: c}
	}
	return bars
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWilderSeedIsMeanOfFirstPeriod(t *testing.T) {
	closes := []float64{10, 12, 14, 16, 18, 20, 22}
	out, err := Compute(closes, model.TrendDef{Kind: model.WilderSmoother, Period: 4})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if !math.IsNaN(out[i]) {
			t.Errorf("out[%d] = %v, want NaN", i, out[i])
		}
	}
	if !approx(out[3], 13) {
		t.Errorf("seed = %v, want 13", out[3])
	}
	// 13 + (18-13)/4
	if !approx(out[4], 14.25) {
		t.Errorf("out[4] = %v, want 14.25", out[4])
	}
}

func TestConstantSeriesConverges(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 42.5
	}
	for _, kind := range []model.TrendKind{model.EMA, model.SMA, model.WilderSmoother} {
		out, err := Compute(closes, model.TrendDef{Kind: kind, Period: 7})
		if err != nil {
			t.Fatal(err)
		}
		if !approx(out[len(out)-1], 42.5) {
			t.Errorf("%s last = %v, want 42.5", kind, out[len(out)-1])
		}
	}
}

func TestComputeShortSeriesIsNaN(t *testing.T) {
	out, err := Compute([]float64{1, 2, 3}, model.TrendDef{Kind: model.EMA, Period: 10})
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range out {
		if !math.IsNaN(v) {
			t.Fatalf("expected NaN, got %v", v)
		}
	}
}

func TestComputeUnknownKind(t *testing.T) {
	if _, err := Compute([]float64{1, 2}, model.TrendDef{Kind: "HMA", Period: 1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestCrossoverSymmetry(t *testing.T) {
	cases := [][2][]float64{
		{{1, 3}, {2, 2}},
		{{3, 1}, {2, 2}},
		{{1, 1}, {2, 2}},
		{{2, 3}, {2, 2}},
		{{1, math.NaN()}, {2, 2}},
	}
	for i, c := range cases {
		a, b := c[0], c[1]
		if CrossedUp(a, b) != CrossedDown(b, a) {
			t.Errorf("case %d: CrossedUp(a,b) != CrossedDown(b,a)", i)
		}
		if CrossedDown(a, b) != CrossedUp(b, a) {
			t.Errorf("case %d: CrossedDown(a,b) != CrossedUp(b,a)", i)
		}
	}
	if !CrossedUp([]float64{1, 3}, []float64{2, 2}) {
		t.Error("expected up-cross")
	}
	// 前一根相等不算交叉
	if CrossedUp([]float64{2, 3}, []float64{2, 2}) {
		t.Error("touching is not a cross")
	}
}

// 25 根 K 线：前 24 根单调下跌，最后一根大阳线，EMA10 上穿 SMA20
func TestEvaluateScenarioUpCross(t *testing.T) {
	closes := make([]float64, 25)
	for i := 0; i < 24; i++ {
		closes[i] = 100 - float64(i)
	}
	closes[24] = 150

	t1 := model.TrendDef{Kind: model.EMA, Period: 10}
	t2 := model.TrendDef{Kind: model.SMA, Period: 20}
	res, err := Evaluate(barsFromCloses(closes), t1, t2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != SignalUp {
		t.Fatalf("signal = %v, want up-cross (trend1=%v trend2=%v)", res.Signal, res.Trend1, res.Trend2)
	}
	if !(res.Trend1[0] < res.Trend2[0] && res.Trend1[1] > res.Trend2[1]) {
		t.Errorf("unexpected trend values %v %v", res.Trend1, res.Trend2)
	}
}

func TestEvaluateInsufficient(t *testing.T) {
	t1 := model.TrendDef{Kind: model.EMA, Period: 10}
	t2 := model.TrendDef{Kind: model.SMA, Period: 20}

	res, err := Evaluate(barsFromCloses(make([]float64, 19)), t1, t2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != SignalInsufficient {
		t.Errorf("19 bars: signal = %v, want insufficient", res.Signal)
	}

	// 20 根时 SMA20 只有最后一个值，倒数第二个是 NaN
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	res, err = Evaluate(barsFromCloses(closes), t1, t2)
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != SignalInsufficient {
		t.Errorf("20 bars: signal = %v, want insufficient", res.Signal)
	}
}

func TestEvaluateDownCross(t *testing.T) {
	closes := make([]float64, 25)
	for i := 0; i < 24; i++ {
		closes[i] = 100 + float64(i)
	}
	closes[24] = 50

	res, err := Evaluate(barsFromCloses(closes),
		model.TrendDef{Kind: model.EMA, Period: 10},
		model.TrendDef{Kind: model.SMA, Period: 20})
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal != SignalDown {
		t.Fatalf("signal = %v, want down-cross", res.Signal)
	}
}
