package util

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init builds the process logger once; later calls return the first logger.
// Production gets sampled JSON-friendly output, everything else a coloured console.
func Init(environment, level, format string) *zap.Logger {
	once.Do(func() {
		cfg := baseConfig(environment)
		cfg.Level = zap.NewAtomicLevelAt(levelOf(level))
		cfg.Encoding = "console"
		if format == "json" {
			cfg.Encoding = "json"
			cfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		}

		logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
		if err != nil {
			panic("failed to initialize logger: " + err.Error())
		}
		globalLogger = logger
		zap.ReplaceGlobals(logger)
	})
	return globalLogger
}

func baseConfig(environment string) zap.Config {
	if environment != "production" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	return cfg
}

// levelOf falls back to info for anything zap does not recognise.
func levelOf(level string) zapcore.Level {
	if level == "warning" {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// Get returns the global logger, initializing a production one if nothing has yet.
func Get() *zap.Logger {
	if globalLogger == nil {
		return Init("production", "info", "json")
	}
	return globalLogger
}

func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func Debug(msg string, fields ...zap.Field) { Get().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { Get().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { Get().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { Get().Error(msg, fields...) }

// Field helpers keep call sites free of direct zap imports.
var (
	String   = zap.String
	Strings  = zap.Strings
	Bool     = zap.Bool
	Int      = zap.Int
	Duration = zap.Duration
	Time     = zap.Time
)

// ErrorField is zap.Error under a name that does not clash with Error.
func ErrorField(err error) zap.Field { return zap.Error(err) }
