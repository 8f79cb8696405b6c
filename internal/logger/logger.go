package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DEBUG = 4
	INFO  = 3
	WARN  = 2
	ERROR = 1
)

type Logger struct {
	zl       *zap.Logger
	LogLevel byte
}

func New(LogLevel byte, packageStr string) *Logger {
	logger := &Logger{}
	if LogLevel < 1 || LogLevel > 4 {
		fmt.Printf("Unknown log level: %d; Must be: DEBUG(4) / INFO(3) / WARN(2) / ERROR(1)\n", LogLevel)
		logger.LogLevel = DEBUG
	} else {
		logger.LogLevel = LogLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel(logger.LogLevel)),
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		fmt.Printf("Error building logger for %s: %v\n", packageStr, err)
		zl = zap.NewNop()
	}
	logger.zl = zl.Named(packageStr)
	logger.Debug(fmt.Sprintf("Started logger for %s: Level: %d", packageStr, logger.LogLevel))
	return logger
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop(), LogLevel: ERROR}
}

// Named returns a child logger sharing the same output, tagged with name.
func (lg *Logger) Named(name string) *Logger {
	if lg == nil {
		return nil
	}
	return &Logger{zl: lg.zl.Named(name), LogLevel: lg.LogLevel}
}

// ParseLevel maps a config level name to one of the level constants.
func ParseLevel(level string) byte {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG
	case "info", "":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return 0
	}
}

func zapLevel(level byte) zapcore.Level {
	switch level {
	case INFO:
		return zapcore.InfoLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.DebugLevel
	}
}

func (lg *Logger) Debug(message string) {
	if lg == nil {
		return
	}
	lg.zl.Debug(message)
}

func (lg *Logger) Info(message string) {
	if lg == nil {
		return
	}
	lg.zl.Info(message)
}

func (lg *Logger) Warn(message string) {
	if lg == nil {
		return
	}
	lg.zl.Warn(message)
}

func (lg *Logger) Error(message string) {
	if lg == nil {
		return
	}
	lg.zl.Error(message)
}

// Fatal logs and exits. A nil logger falls back to zap's global logger, which
// still exits.
func (lg *Logger) Fatal(message string) {
	if lg == nil {
		zap.L().Fatal(message)
		return
	}
	lg.zl.Fatal(message)
}

func (lg *Logger) Sync() {
	if lg == nil {
		return
	}
	_ = lg.zl.Sync()
}
