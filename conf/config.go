package conf

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 配置加载（券商账户、总线、存储等）

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	Dir        string `yaml:"dir"` // 每个品种单独的日志目录
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type KafkaConfig struct {
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`    // tick K 线通知
	GroupID string `yaml:"group-id"` // 消费组
	Events  string `yaml:"events"`   // 订单流水 topic
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// EngineConfig 交易引擎的调度参数
type EngineConfig struct {
	TimeZone        string        `yaml:"time-zone"`         // America/New_York
	ResetWeekday    string        `yaml:"reset-weekday"`     // 每周开始运行的日期 Sunday
	ResetTime       string        `yaml:"reset-time"`        // 18:00
	WindowPoll      time.Duration `yaml:"window-poll"`       // 不在周运行窗口内时的检查间隔
	DisabledPoll    time.Duration `yaml:"disabled-poll"`     // 品种被关闭交易时的检查间隔
	MarketPoll      time.Duration `yaml:"market-poll"`       // 休市/未开盘时的检查间隔
	TickWaitTimeout time.Duration `yaml:"tick-wait-timeout"` // 等待新 tick K 线的超时
	TickHistory     int           `yaml:"tick-history"`      // 额外多取的 tick K 线数量
	ParamsPath      string        `yaml:"params-path"`       // 品种参数 json
	InstrumentsCSV  string        `yaml:"instruments-csv"`   // 期货合约表
	Instruments     []string      `yaml:"instruments"`       // 为空时使用参数文件中的全部品种
}

type Venue struct {
	Name      string `yaml:"name"`
	AccountID string `yaml:"account-id"`
}

type BrokerConfig struct {
	Driver       string        `yaml:"driver"` // paper
	Venues       []Venue       `yaml:"venues"`
	RetryDelay   time.Duration `yaml:"retry-delay"`   // 下单失败的重试间隔
	PollInterval time.Duration `yaml:"poll-interval"` // 订单状态轮询间隔
	FillLatency  time.Duration `yaml:"fill-latency"`  // paper 模拟成交延迟
}

type BusConfig struct {
	Transport     string `yaml:"transport"`      // redis / kafka
	ChannelPrefix string `yaml:"channel-prefix"` // tick_bars:
	HistoryPrefix string `yaml:"history-prefix"` // bars_history:
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // file / mysql
	Dir    string `yaml:"dir"`    // file 存储目录
}

type RecorderConfig struct {
	Driver string `yaml:"driver"` // file / kafka / mysql / none
	Path   string `yaml:"path"`
}

type CalendarConfig struct {
	SessionOpen   string   `yaml:"session-open"`  // 09:30
	SessionClose  string   `yaml:"session-close"` // 16:00
	ExtraHolidays []string `yaml:"extra-holidays"`
}

type LockConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// JwtConfig 管理接口的 token，Secret 为空时管理接口关闭
type JwtConfig struct {
	Secret string        `yaml:"secret"`
	Expire time.Duration `yaml:"expire"`
}

type Config struct {
	AppName string `yaml:"app_name"`
	Listen  string `yaml:"listen"`
	Mode    string `yaml:"mode"`

	Log      LogConfig   `yaml:"log"`
	Redis    RedisConfig `yaml:"redis"`
	Kafka    KafkaConfig `yaml:"kafka"`
	Db       `yaml:"database"`
	Engine   EngineConfig   `yaml:"engine"`
	Broker   BrokerConfig   `yaml:"broker"`
	Bus      BusConfig      `yaml:"bus"`
	Store    StoreConfig    `yaml:"store"`
	Recorder RecorderConfig `yaml:"recorder"`
	Calendar CalendarConfig `yaml:"calendar"`
	Lock     LockConfig     `yaml:"lock"`
	Jwt      JwtConfig      `yaml:"jwt"`
}

var AppConfig Config

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	AppConfig = cfg
	return nil
}

// ApplyEnv 数据库、redis 账号和 jwt 密钥可以用环境变量覆盖
func (c *Config) ApplyEnv() {
	if dbUser, dbPass, dbHost := os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_HOST"); dbUser != "" && dbPass != "" && dbHost != "" {
		c.Db.Username = dbUser
		c.Db.Password = dbPass
		c.Db.Host = dbHost
		if v := os.Getenv("DB_PORT"); v != "" {
			c.Db.Port = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			c.Db.DbName = v
		}
	}

	redisHost := os.Getenv("REDIS_HOST")
	redisPort := os.Getenv("REDIS_PORT")
	if redisHost != "" && redisPort != "" {
		c.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Jwt.Secret = v
	}
}

// Default 未在 yaml 中配置的字段使用这里的默认值
func Default() Config {
	return Config{
		AppName: "tradeflow",
		Listen:  ":12180",
		Log: LogConfig{
			Level:      "info",
			FileName:   "logs/tradeflow.log",
			Dir:        "logs",
			TimeFormat: "2006-01-02 15:04:05.000",
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			LocalTime:  true,
			Console:    true,
		},
		Redis: RedisConfig{Addr: "localhost:6379", PoolSize: 10},
		Kafka: KafkaConfig{Topic: "tick_bars", GroupID: "tradeflow", Events: "trade_events"},
		Engine: EngineConfig{
			TimeZone:        "America/New_York",
			ResetWeekday:    "Sunday",
			ResetTime:       "18:00",
			WindowPoll:      10 * time.Second,
			DisabledPoll:    time.Minute,
			MarketPoll:      time.Minute,
			TickWaitTimeout: 5 * time.Minute,
			TickHistory:     1,
			ParamsPath:      "jsons/tickers.json",
			InstrumentsCSV:  "jsons/instruments.csv",
		},
		Broker: BrokerConfig{
			Driver:       "paper",
			RetryDelay:   10 * time.Second,
			PollInterval: time.Second,
		},
		Bus: BusConfig{
			Transport:     "redis",
			ChannelPrefix: "tick_bars:",
			HistoryPrefix: "bars_history:",
		},
		Store:    StoreConfig{Driver: "file", Dir: "trades"},
		Recorder: RecorderConfig{Driver: "file", Path: "logs/orders.json"},
		Calendar: CalendarConfig{SessionOpen: "09:30", SessionClose: "16:00"},
		Lock:     LockConfig{TTL: 30 * time.Second},
		Jwt:      JwtConfig{Expire: 24 * time.Hour},
	}
}
