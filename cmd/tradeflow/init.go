package api

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"tradeflow/conf"
	"tradeflow/internal/bus"
	"tradeflow/internal/config"
	"tradeflow/internal/consts"
	"tradeflow/internal/dao"
	"tradeflow/internal/exchange"
	"tradeflow/internal/handler/admin"
	"tradeflow/internal/handler/position"
	"tradeflow/internal/middleware"
	posm "tradeflow/internal/position"
	"tradeflow/internal/router"
	"tradeflow/internal/store"
	"tradeflow/internal/timegate"
	"tradeflow/internal/worker"
	"tradeflow/pkg/cache"
	"tradeflow/pkg/db"
	"tradeflow/pkg/kafka"
	"tradeflow/pkg/logger"
	"tradeflow/pkg/recorder"
)

// App 交易引擎和状态服务
type App struct {
	cfg     conf.Config
	engine  *worker.Engine
	ids     []string
	server  *Server
	router  *router.ApiRouter
	closers []func()
}

// InitApp 按配置组装所有组件
func InitApp(ctx context.Context, cfg conf.Config) (app *App, err error) {
	app = &App{cfg: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	gate, err := newGate(cfg)
	if err != nil {
		return app, err
	}

	var gdb *gorm.DB
	if cfg.Store.Driver == "mysql" || cfg.Recorder.Driver == "mysql" {
		if gdb, err = db.Init(db.FromAppConfig(cfg.Db)); err != nil {
			return app, err
		}
		app.closers = append(app.closers, db.Close)
	}

	var rc *redis.Client
	if cfg.Bus.Transport != "none" || cfg.Lock.Enabled {
		if err = cache.InitRedis(ctx, cfg.Redis); err != nil {
			return app, fmt.Errorf("init redis %s: %w", cfg.Redis.Addr, err)
		}
		rc = cache.GetRedisClient()
		app.closers = append(app.closers, cache.CloseRedis)
	}

	st, err := store.New(cfg.Store, gdb)
	if err != nil {
		return app, err
	}

	rec, ledger, err := app.newRecorder(gdb)
	if err != nil {
		return app, err
	}

	venues, err := newVenues(cfg.Broker)
	if err != nil {
		return app, err
	}
	exec := exchange.NewExecutor(venues,
		exchange.WithRetryDelay(cfg.Broker.RetryDelay),
		exchange.WithPollInterval(cfg.Broker.PollInterval),
		exchange.WithRecorder(rec),
	)

	params := config.NewFileParamSource(cfg.Engine.ParamsPath, exec.Venues())
	if err := params.Validate(); err != nil {
		// 无效品种的 worker 会一直报错，不影响其他品种
		logger.Errorf("invalid instrument params: %v", err)
	}

	deps := worker.Deps{
		Params:   params,
		Gate:     gate,
		Store:    st,
		Machine:  posm.NewMachine(exec),
		Bars:     exec,
		Resolver: config.NewContractResolver(cfg.Engine.InstrumentsCSV),
		Timing: worker.Timing{
			WindowPoll:      cfg.Engine.WindowPoll,
			DisabledPoll:    cfg.Engine.DisabledPoll,
			MarketPoll:      cfg.Engine.MarketPoll,
			TickWaitTimeout: cfg.Engine.TickWaitTimeout,
			TickHistory:     cfg.Engine.TickHistory,
		},
	}

	var opts []worker.EngineOption
	switch cfg.Bus.Transport {
	case "redis":
		deps.History = bus.NewRedisHistory(rc, cfg.Bus.HistoryPrefix)
		opts = append(opts, worker.WithConsumer(bus.NewConsumer(bus.NewRedisSource(rc, cfg.Bus.ChannelPrefix))))
	case "kafka":
		// 通知走 kafka，历史 K 线仍然在 redis
		consumer := kafka.NewKafkaConsumer(cfg.Kafka.Broker)
		app.closers = append(app.closers, consumer.Close)
		deps.History = bus.NewRedisHistory(rc, cfg.Bus.HistoryPrefix)
		opts = append(opts, worker.WithConsumer(bus.NewConsumer(bus.NewKafkaSource(consumer, cfg.Kafka.Topic, cfg.Kafka.GroupID))))
	case "none":
	default:
		return app, fmt.Errorf("unknown bus transport %q", cfg.Bus.Transport)
	}
	if cfg.Lock.Enabled {
		opts = append(opts, worker.WithLocker(worker.NewRedisLocker(rc, consts.LockPrefix, cfg.Lock.TTL)))
	}
	app.engine = worker.NewEngine(deps, opts...)

	app.ids = cfg.Engine.Instruments
	if len(app.ids) == 0 {
		if app.ids, err = params.IDs(); err != nil {
			return app, err
		}
	}

	app.server = NewServer(&app.cfg)
	app.router = router.NewApiRouter(
		position.NewPositionHandler(st, ledger),
		admin.NewAdminHandler(app.engine, cfg.Jwt.Secret, rc),
		cfg.Jwt.Secret, rc,
	)
	return app, nil
}

// Run 引擎或服务任一退出都会结束
func (a *App) Run(ctx context.Context) error {
	logger.Infof("starting %d instruments: %v", len(a.ids), a.ids)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.engine.Run(gctx, a.ids)
	})
	g.Go(func() error {
		return a.server.Run(gctx, middleware.NewMiddleware(), a.router)
	})
	return g.Wait()
}

// Close 逆序释放资源
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newGate(cfg conf.Config) (*timegate.Gate, error) {
	loc, err := time.LoadLocation(cfg.Engine.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time zone %q: %w", cfg.Engine.TimeZone, err)
	}
	open, err := timegate.ParseClock(cfg.Calendar.SessionOpen)
	if err != nil {
		return nil, err
	}
	closeAt, err := timegate.ParseClock(cfg.Calendar.SessionClose)
	if err != nil {
		return nil, err
	}
	reset, err := timegate.ParseClock(cfg.Engine.ResetTime)
	if err != nil {
		return nil, err
	}
	resetDay, err := timegate.ParseWeekday(cfg.Engine.ResetWeekday)
	if err != nil {
		return nil, err
	}
	cal, err := timegate.NewNYSECalendar(loc, open, closeAt, cfg.Calendar.ExtraHolidays)
	if err != nil {
		return nil, err
	}
	return timegate.New(timegate.Options{
		Location:     loc,
		ResetWeekday: resetDay,
		Reset:        reset,
		Calendar:     cal,
		SessionOpen:  open,
		SessionClose: closeAt,
	}), nil
}

// newVenues 目前只有 paper 券商；所有 venue 共用一个模拟账户簿
func newVenues(cfg conf.BrokerConfig) ([]exchange.Venue, error) {
	if len(cfg.Venues) == 0 {
		return nil, fmt.Errorf("no broker venues configured")
	}
	var broker exchange.Broker
	switch cfg.Driver {
	case "", "paper":
		broker = exchange.NewPaperBroker(cfg.FillLatency)
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Driver)
	}
	venues := make([]exchange.Venue, 0, len(cfg.Venues))
	for _, v := range cfg.Venues {
		venues = append(venues, exchange.Venue{Name: v.Name, AccountID: v.AccountID, Broker: broker})
	}
	return venues, nil
}

// newRecorder 订单流水；mysql 时同时提供查询
func (a *App) newRecorder(gdb *gorm.DB) (recorder.Recorder, position.OrderLedger, error) {
	cfg := a.cfg
	switch cfg.Recorder.Driver {
	case "", "none":
		return recorder.Nop{}, nil, nil
	case "file":
		r := recorder.NewJSONFileRecorder(cfg.Recorder.Path)
		a.closers = append(a.closers, func() { _ = r.Close() })
		return r, nil, nil
	case "kafka":
		r := recorder.NewKafkaRecorder(kafka.NewKafkaProducer(cfg.Kafka.Broker, cfg.Kafka.Events))
		a.closers = append(a.closers, r.Close)
		return r, nil, nil
	case "mysql":
		d, err := dao.NewOrderDao(gdb)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	default:
		return nil, nil, fmt.Errorf("unknown recorder driver %q", cfg.Recorder.Driver)
	}
}
