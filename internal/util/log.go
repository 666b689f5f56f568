package util

import (
	"os"
	"time"

	"github.com/thessem/zap-prettyconsole"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogOptions selects the encoding, level and destination of a logger.
type LogOptions struct {
	// JSON switches from the key=value console output to JSON lines.
	JSON bool

	// Level is the minimum enabled level. It can be changed later through
	// the returned zap.AtomicLevel.
	Level zapcore.Level

	// Output defaults to stderr so stdout stays free for command output.
	Output zapcore.WriteSyncer

	// Name, when set, is added as the logger name.
	Name string
}

// ParseLevel maps a config log level to a zap level. Unknown values fall
// back to info.
func ParseLevel(level string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewLogger creates a logger writing to stderr.
func NewLogger(json bool, level zapcore.Level) *zap.Logger {
	log, _ := Build(LogOptions{JSON: json, Level: level})
	return log
}

// NewLoggerWithOutput creates a logger writing to output.
func NewLoggerWithOutput(json bool, level zapcore.Level, output zapcore.WriteSyncer) *zap.Logger {
	log, _ := Build(LogOptions{JSON: json, Level: level, Output: output})
	return log
}

// Build creates a logger from opts and returns the level controlling it.
func Build(opts LogOptions) (*zap.Logger, zap.AtomicLevel) {
	out := opts.Output
	if out == nil {
		out = zapcore.Lock(os.Stderr)
	}
	lvl := zap.NewAtomicLevelAt(opts.Level)

	log := zap.New(zapcore.NewCore(encoder(opts.JSON), out, lvl))
	if opts.Name != "" {
		log = log.Named(opts.Name)
	}
	return log, lvl
}

func encoder(json bool) zapcore.Encoder {
	if json {
		return zapcore.NewJSONEncoder(zapcore.EncoderConfig{
			MessageKey:     "msg",
			LevelKey:       "level",
			TimeKey:        "time",
			NameKey:        "logger",
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
		})
	}

	pcfg := prettyconsole.NewEncoderConfig()
	pcfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format("15:04:05"))
	}
	return prettyconsole.NewEncoder(pcfg)
}
