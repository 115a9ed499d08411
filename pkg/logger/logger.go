package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"tradeflow/conf"
)

// Field 日志字段
type Field = zap.Field

var (
	mu    sync.RWMutex
	base  = zap.NewNop()
	sugar = base.Sugar()
	// InitLogger 之后保存一份配置，给每个品种的日志复用
	logCfg = conf.Default().Log
)

// InitLogger 初始化全局日志：控制台 + lumberjack 滚动文件
func InitLogger(cfg *conf.LogConfig, appName string) {
	level := parseLevel(cfg.Level)
	enc := encoder(cfg)

	var cores []zapcore.Core
	if cfg.FileName != "" {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(rolling(cfg, cfg.FileName)), level))
	}
	if cfg.Console || len(cores) == 0 {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), level))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("app", appName))

	mu.Lock()
	base = l
	sugar = l.Sugar()
	logCfg = *cfg
	mu.Unlock()
}

// Sync 退出前刷盘
func Sync() {
	_ = current().Sync()
}

func Pair(key string, v any) Field {
	return zap.Any(key, v)
}

func Debug(msg string, fields ...Field) { current().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { current().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { current().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { current().Error(msg, fields...) }
func Fatal(msg string, fields ...Field) { current().Fatal(msg, fields...) }

func Debugf(format string, args ...any) { currentSugar().Debugf(format, args...) }
func Infof(format string, args ...any)  { currentSugar().Infof(format, args...) }
func Warnf(format string, args ...any)  { currentSugar().Warnf(format, args...) }
func Errorf(format string, args ...any) { currentSugar().Errorf(format, args...) }
func Fatalf(format string, args ...any) { currentSugar().Fatalf(format, args...) }

// L 返回底层 zap.Logger，给需要 With 的组件使用
func L() *zap.Logger {
	return current().WithOptions(zap.AddCallerSkip(-1))
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func currentSugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// InstrumentLogger 每个品种一个日志文件 logs/<id>.log，收盘后归档
type InstrumentLogger struct {
	*zap.SugaredLogger
	file *lumberjack.Logger
}

// NewInstrumentLogger 品种日志同时写入全局日志
func NewInstrumentLogger(id string) *InstrumentLogger {
	mu.RLock()
	cfg := logCfg
	parent := base
	mu.RUnlock()

	name := filepath.Join(cfg.Dir, FileSafe(id)+".log")
	file := rolling(&cfg, name)
	fileCore := zapcore.NewCore(encoder(&cfg), zapcore.AddSync(file), zapcore.DebugLevel)

	l := zap.New(zapcore.NewTee(parent.Core(), fileCore), zap.AddCaller()).
		With(zap.String("instrument", id))
	return &InstrumentLogger{SugaredLogger: l.Sugar(), file: file}
}

// NopInstrumentLogger 测试使用
func NopInstrumentLogger() *InstrumentLogger {
	return &InstrumentLogger{SugaredLogger: zap.NewNop().Sugar()}
}

// Rotate 归档当前日志文件并重新开始写
func (l *InstrumentLogger) Rotate() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Rotate(); err != nil {
		return fmt.Errorf("rotate %s: %w", l.file.Filename, err)
	}
	return nil
}

func (l *InstrumentLogger) Close() error {
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// FileSafe "/ES" -> "_ES"
func FileSafe(id string) string {
	return strings.ReplaceAll(id, "/", "_")
}

func rolling(cfg *conf.LogConfig, filename string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
		LocalTime:  cfg.LocalTime,
	}
}

func encoder(cfg *conf.LogConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	if cfg.TimeFormat != "" {
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(cfg.TimeFormat)
	} else {
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return zapcore.NewConsoleEncoder(ec)
}

func parseLevel(s string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
