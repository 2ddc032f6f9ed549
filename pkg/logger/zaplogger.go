package logger

import "go.uber.org/zap"

type ZapLogger struct {
	log *zap.SugaredLogger
}

var zapLogger *ZapLogger

// NewLogger builds a logger from config and installs it as the global one.
func NewLogger(config zap.Config) (*ZapLogger, error) {
	logger, err := config.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	zapLogger = &ZapLogger{log: logger.Sugar()}
	return zapLogger, nil
}

func GetLogger() *ZapLogger {
	if zapLogger == nil {
		panic("logger not initialized")
	}
	return zapLogger
}

// With returns a child logger that always carries the given key/value pairs.
func (l *ZapLogger) With(values ...any) *ZapLogger {
	return &ZapLogger{log: l.log.With(values...)}
}

// Named returns a child logger for one component, e.g. "xhttp".
func (l *ZapLogger) Named(component string) *ZapLogger {
	return &ZapLogger{log: l.log.Named(component)}
}

// Sync flushes buffered entries. Binaries call it on the way out.
func (l *ZapLogger) Sync() error {
	return l.log.Sync()
}

func (l *ZapLogger) Panic(message string, values ...any) {
	l.log.Panicw(message, values...)
}

func (l *ZapLogger) Fatal(err error, values ...any) {
	l.log.Fatalw(err.Error(), values...)
}

func (l *ZapLogger) Info(message string, values ...any) {
	l.log.Infow(message, values...)
}

func (l *ZapLogger) Warn(message string, values ...any) {
	l.log.Warnw(message, values...)
}

func (l *ZapLogger) Error(message string, values ...any) {
	l.log.Errorw(message, values...)
}

func (l *ZapLogger) Debug(message string, values ...any) {
	l.log.Debugw(message, values...)
}

// Printf lets fasthttp use the logger for its own messages.
func (l *ZapLogger) Printf(format string, args ...any) {
	l.log.Infof(format, args...)
}
