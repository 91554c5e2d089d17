// Package logger предоставляет логирование с префиксом сервиса поверх zap.
// Запись буферизована и не блокирует обработчики; поддерживается логирование времени выполнения функций.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// slowThreshold — при уровне info логируются только вызовы дольше этого порога.
const slowThreshold = 100 * time.Millisecond

var (
	mu     sync.RWMutex
	prefix string
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "trace":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func build() {
	level.SetLevel(parseLevel(os.Getenv("LOG_LEVEL")))
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	if os.Getenv("APP_ENV") == "production" {
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05")
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	ws := &zapcore.BufferedWriteSyncer{WS: zapcore.AddSync(os.Stderr), FlushInterval: time.Second}
	base = zap.New(zapcore.NewCore(enc, ws, level))
	sugar = base.Sugar()
}

func get() *zap.SugaredLogger {
	once.Do(build)
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// SetPrefix задаёт имя сервиса для всех последующих логов (например "editor").
func SetPrefix(p string) {
	once.Do(build)
	mu.Lock()
	defer mu.Unlock()
	prefix = p
	if p == "" {
		sugar = base.Sugar()
		return
	}
	sugar = base.With(zap.String("service", p)).Sugar()
}

// SetLevel меняет уровень логирования на лету (значение из конфига перекрывает LOG_LEVEL).
func SetLevel(s string) {
	once.Do(build)
	level.SetLevel(parseLevel(s))
}

// Zap возвращает базовый zap.Logger для библиотек, которые принимают его напрямую.
func Zap() *zap.Logger {
	get()
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return base
	}
	return base.With(zap.String("service", prefix))
}

// Sync сбрасывает буфер; вызывать при остановке сервиса.
func Sync() {
	once.Do(build)
	_ = base.Sync()
}

func Debugf(format string, v ...any) { get().Debugf(format, v...) }

// Info пишет сообщение уровня info.
func Info(v ...any) { get().Info(fmt.Sprint(v...)) }

// Infof форматирует и пишет сообщение уровня info.
func Infof(format string, v ...any) { get().Infof(format, v...) }

func Warnf(format string, v ...any) { get().Warnf(format, v...) }

// Error пишет ошибку.
func Error(v ...any) { get().Error(fmt.Sprint(v...)) }

// Errorf форматирует ошибку.
func Errorf(format string, v ...any) { get().Errorf(format, v...) }

// LogDuration логирует имя функции и время выполнения в миллисекундах.
// При LOG_LEVEL=info логирует только вызовы дольше 100ms; при LOG_LEVEL=debug — все.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if level.Enabled(zapcore.DebugLevel) || elapsed >= slowThreshold {
		get().Infow("duration", "fn", fn, "duration_ms", elapsed.Milliseconds())
	}
}

// DeferLogDuration возвращает функцию для вызова в defer: defer logger.DeferLogDuration("Navigate", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
