package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradeflow/internal/model"
)

const tickers = `{
  "/ES":  ["500t", "1", "TRUE", "10", "EMA", "20", "SMA", "2"],
  "AAPL": ["5", 10, "FALSE", 7, "WilderSmoother", 30, "EMA", 0],
  "MSFT": {"interval": "1h", "trade": true,
           "trend1": {"kind": "sma", "period": 5}, "trend2": {"kind": "ema", "period": "12"},
           "quantities": {"schwab": 3}},
  "TSLA": ["5", "1", "TRUE", "10", "HMA", "20", "SMA", "1"],
  "NVDA": ["7", "1", "TRUE", "10", "EMA", "0", "SMA", "1"]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestFileParamSourceLegacyRow(t *testing.T) {
	src := NewFileParamSource(writeFile(t, t.TempDir(), "tickers.json", tickers), []string{"schwab", "tastytrade"})

	p, err := src.Get("/ES")
	require.NoError(t, err)
	assert.True(t, p.Interval.IsTick())
	assert.Equal(t, 500, p.Interval.Ticks)
	assert.True(t, p.TradeEnabled)
	assert.Equal(t, model.TrendDef{Kind: model.EMA, Period: 10}, p.Trend1)
	assert.Equal(t, model.TrendDef{Kind: model.SMA, Period: 20}, p.Trend2)
	assert.Equal(t, map[string]int{"schwab": 1, "tastytrade": 2}, p.Quantities)
	assert.True(t, p.Continuous())

	p, err = src.Get("AAPL")
	require.NoError(t, err)
	assert.False(t, p.TradeEnabled)
	assert.Equal(t, model.WilderSmoother, p.Trend1.Kind)
	assert.Equal(t, 0, p.Quantities["tastytrade"])
}

func TestFileParamSourceObject(t *testing.T) {
	src := NewFileParamSource(writeFile(t, t.TempDir(), "tickers.json", tickers), nil)
	p, err := src.Get("MSFT")
	require.NoError(t, err)
	assert.Equal(t, "1h", p.Interval.Raw)
	assert.Equal(t, 12, p.Trend2.Period)
	assert.Equal(t, 12, p.MaxPeriod())
	assert.Equal(t, map[string]int{"schwab": 3}, p.Quantities)
}

func TestFileParamSourceRejectsInvalid(t *testing.T) {
	src := NewFileParamSource(writeFile(t, t.TempDir(), "tickers.json", tickers), []string{"schwab", "tastytrade"})

	_, err := src.Get("TSLA")
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = src.Get("NVDA")
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = src.Get("GOOG")
	assert.True(t, errors.Is(err, ErrUnknownInstrument))

	ids, err := src.IDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"/ES", "AAPL", "MSFT", "NVDA", "TSLA"}, ids)

	err = src.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TSLA")
	assert.Contains(t, err.Error(), "NVDA")
}

func TestFileParamSourceReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tickers.json", `{"AAPL": ["5", "1", "TRUE", "10", "EMA", "20", "SMA", "0"]}`)
	src := NewFileParamSource(path, []string{"schwab", "tastytrade"})

	p, err := src.Get("AAPL")
	require.NoError(t, err)
	assert.True(t, p.TradeEnabled)

	require.NoError(t, os.WriteFile(path, []byte(`{"AAPL": ["5", "1", "FALSE", "10", "EMA", "20", "SMA", "0"]}`), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	p, err = src.Get("AAPL")
	require.NoError(t, err)
	assert.False(t, p.TradeEnabled)
}

func TestFileParamSourceMissingFile(t *testing.T) {
	src := NewFileParamSource(filepath.Join(t.TempDir(), "missing.json"), nil)
	_, err := src.Get("AAPL")
	assert.Error(t, err)
}

const instruments = `product-code,active-month,next-active-month,exchange-symbol,expires-at
ES,true,false,ESZ5,2025-12-19T14:30:00Z
ES,false,true,ESH6,2026-03-20T13:30:00Z
NQ,true,false,NQZ5,2025-12-19T14:30:00Z
CL,false,true,CLG6,2026-01-20T19:30:00Z
`

func TestContractResolver(t *testing.T) {
	r := NewContractResolver(writeFile(t, t.TempDir(), "instruments.csv", instruments))
	before := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	after := time.Date(2025, 12, 19, 14, 30, 0, 0, time.UTC)

	sym, err := r.Resolve("/ES", before)
	require.NoError(t, err)
	assert.Equal(t, "ESZ5", sym)

	sym, err = r.Resolve("/ES", after)
	require.NoError(t, err)
	assert.Equal(t, "ESH6", sym, "expired contract rolls to next active")

	_, err = r.Resolve("/NQ", after)
	assert.Error(t, err, "no next contract")

	_, err = r.Resolve("/CL", before)
	assert.Error(t, err, "no active contract")

	sym, err = r.Resolve("AAPL", before)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", sym)
}

func TestContractResolverMissingColumn(t *testing.T) {
	r := NewContractResolver(writeFile(t, t.TempDir(), "instruments.csv", "product-code,exchange-symbol\nES,ESZ5\n"))
	_, err := r.Resolve("/ES", time.Now())
	assert.Error(t, err)
}
