// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "options-analyzer", "logs", "analyzer.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, consoleWriter())
	}
	if cfg.File {
		if fw := fileWriter(cfg); fw != nil {
			writers = append(writers, fw)
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).With().Timestamp().Caller().Logger()
}

var levelLabels = map[string]string{
	"debug": "\033[36mDBG\033[0m",
	"info":  "\033[32mINF\033[0m",
	"warn":  "\033[33mWRN\033[0m",
	"error": "\033[31mERR\033[0m",
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		FormatLevel: func(i interface{}) string {
			ll, ok := i.(string)
			if !ok {
				return "???"
			}
			if label, ok := levelLabels[ll]; ok {
				return label
			}
			return ll
		},
	}
}

// fileWriter returns a rotating log writer, or nil when the log
// directory cannot be created.
func fileWriter(cfg LogConfig) io.Writer {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithComponent adds a component name to the logger context.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// LogTick logs one processed analysis tick.
func LogTick(logger zerolog.Logger, symbol string, spot float64, biasTotal float64, verdict string, signals int) {
	logger.Info().
		Str("event", "tick").
		Str("symbol", symbol).
		Float64("spot", spot).
		Float64("bias", biasTotal).
		Str("verdict", verdict).
		Int("signals", signals).
		Msg("Tick processed")
}

// LogSignal logs an emitted signal.
func LogSignal(logger zerolog.Logger, id, kind string, strike float64, side string, entry, target, stop float64) {
	logger.Info().
		Str("event", "signal").
		Str("signal_id", id).
		Str("kind", kind).
		Float64("strike", strike).
		Str("side", side).
		Float64("entry", entry).
		Float64("target", target).
		Float64("stop_loss", stop).
		Msg("Signal emitted")
}

// LogAPICall logs an API call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
