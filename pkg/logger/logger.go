package logger

import (
	"os"

	"go.uber.org/zap"
)

type Logger interface {
	Info(msg string, values ...any)
	Warn(msg string, values ...any)
	Error(msg string, values ...any)
	Debug(msg string, values ...any)
	Panic(message string, values ...any)
	Fatal(err error, values ...any)
	Printf(format string, args ...any)
}

func init() {
	_, err := NewLogger(configFor(os.Getenv("LOG_ENV")))
	if err != nil {
		panic(err)
	}
}

func configFor(env string) zap.Config {
	if env == "production" {
		return zap.NewProductionConfig()
	}
	return zap.NewDevelopmentConfig()
}

// Configure rebuilds the global logger once the application config is known.
// An empty or unknown level keeps the environment default.
func Configure(env string, level string) error {
	config := configFor(env)
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return err
		}
		config.Level = lvl
	}
	_, err := NewLogger(config)
	return err
}

func Info(msg string, values ...any) {
	GetLogger().Info(msg, values...)
}

func Warn(msg string, values ...any) {
	GetLogger().Warn(msg, values...)
}

func Error(msg string, values ...any) {
	GetLogger().Error(msg, values...)
}

func Debug(msg string, values ...any) {
	GetLogger().Debug(msg, values...)
}

func Panic(msg string, values ...any) {
	GetLogger().Panic(msg, values...)
}

func Fatal(err error, values ...any) {
	GetLogger().Fatal(err, values...)
}

// Sync flushes the global logger. Errors from syncing a terminal are ignored.
func Sync() {
	_ = GetLogger().Sync()
}
