package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradeflow/conf"
	"tradeflow/pkg/logger"
)

func testConfig(t *testing.T) conf.Config {
	t.Helper()
	dir := t.TempDir()
	params := filepath.Join(dir, "tickers.json")
	require.NoError(t, os.WriteFile(params, []byte(`{
		"AAPL": ["5", "10", "FALSE", "10", "EMA", "20", "SMA", "0"],
		"/ES": ["1h", "1", "FALSE", "10", "EMA", "20", "SMA", "0"]
	}`), 0o644))

	cfg := conf.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.Mode = "test"
	cfg.Log.FileName = ""
	cfg.Log.Console = false
	cfg.Log.Dir = filepath.Join(dir, "logs")
	cfg.Engine.ParamsPath = params
	cfg.Engine.InstrumentsCSV = filepath.Join(dir, "instruments.csv")
	cfg.Bus.Transport = "none"
	cfg.Store.Dir = filepath.Join(dir, "trades")
	cfg.Recorder.Driver = "none"
	cfg.Broker.Venues = []conf.Venue{{Name: "schwab", AccountID: "1"}, {Name: "tastytrade", AccountID: "2"}}
	logger.InitLogger(&cfg.Log, cfg.AppName)
	return cfg
}

func TestInitAppAndRun(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := InitApp(ctx, cfg)
	require.NoError(t, err)
	defer app.Close()
	assert.ElementsMatch(t, []string{"AAPL", "/ES"}, app.ids)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	require.Eventually(t, func() bool { return len(app.engine.Running()) == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestInitAppUsesConfiguredInstruments(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Instruments = []string{"AAPL"}
	app, err := InitApp(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()
	assert.Equal(t, []string{"AAPL"}, app.ids)
}

func TestInitAppRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*conf.Config){
		"time zone":  func(c *conf.Config) { c.Engine.TimeZone = "Mars/Olympus" },
		"weekday":    func(c *conf.Config) { c.Engine.ResetWeekday = "someday" },
		"clock":      func(c *conf.Config) { c.Calendar.SessionOpen = "9h30" },
		"broker":     func(c *conf.Config) { c.Broker.Driver = "ib" },
		"venues":     func(c *conf.Config) { c.Broker.Venues = nil },
		"store":      func(c *conf.Config) { c.Store.Driver = "etcd" },
		"transport":  func(c *conf.Config) { c.Bus.Transport = "carrier-pigeon" },
		"recorder":   func(c *conf.Config) { c.Recorder.Driver = "fax" },
		"holiday":    func(c *conf.Config) { c.Calendar.ExtraHolidays = []string{"12/25"} },
		"gorm no db": func(c *conf.Config) { c.Store.Driver = "gorm" },
	}
	for name, mutate := range cases {
		cfg := testConfig(t)
		mutate(&cfg)
		_, err := InitApp(context.Background(), cfg)
		assert.Error(t, err, name)
	}
}

func TestFileRecorder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recorder.Driver = "file"
	cfg.Recorder.Path = filepath.Join(t.TempDir(), "orders.json")
	app, err := InitApp(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, app.closers, 1)
	app.Close()
	assert.Empty(t, app.closers)
}
