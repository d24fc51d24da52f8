// Package logger builds the zap logger used to narrate a deploy run.
//
// Humans get a compact console format without timestamps; --json switches
// to one JSON object per line with ISO-8601 timestamps, suitable for CI
// log collectors.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Verbose enables debug-level entries (every git command, container IDs).
	Verbose bool

	// JSON selects the JSON encoder.
	JSON bool

	// Output receives the log stream. Nil means os.Stderr.
	Output io.Writer
}

// New creates a logger for the given options.
func New(opts Options) *zap.Logger {
	level := zap.InfoLevel
	if opts.Verbose {
		level = zap.DebugLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(newEncoder(opts.JSON), zapcore.Lock(zapcore.AddSync(out)), level)
	return zap.New(core)
}

func newEncoder(json bool) zapcore.Encoder {
	if json {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "timestamp"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.TimeKey = ""
	cfg.CallerKey = ""
	cfg.NameKey = ""
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}
