// Copyright 2025 Stefan Prodan.
// SPDX-License-Identifier: AGPL-3.0

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	flagLogEncoding = "log-encoding"
	flagLogLevel    = "log-level"
)

// Options contains the configuration of the logger.
type Options struct {
	// LogEncoding is one of 'json' or 'console'.
	LogEncoding string

	// LogLevel is one of 'trace', 'debug', 'info' or 'error'.
	LogLevel string

	// Output is where the logs are written, defaults to stderr.
	Output io.Writer
}

// BindFlags binds the logger options to the given flag set.
func (o *Options) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.LogEncoding, flagLogEncoding, "json",
		"Log encoding format. Can be 'json' or 'console'.")
	fs.StringVar(&o.LogLevel, flagLogLevel, "info",
		"Log verbosity level. Can be one of 'trace', 'debug', 'info', 'error'.")
}

// Override returns base with the options whose flags were set in fs
// replaced by the flag values.
func (o Options) Override(fs *flag.FlagSet, base Options) Options {
	if fs.Changed(flagLogEncoding) {
		base.LogEncoding = o.LogEncoding
	}
	if fs.Changed(flagLogLevel) {
		base.LogLevel = o.LogLevel
	}
	return base
}

// NewLogger returns a logr.Logger backed by zap.
func NewLogger(opts Options) (logr.Logger, error) {
	level, err := parseLevel(opts.LogLevel)
	if err != nil {
		return logr.Discard(), err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch strings.ToLower(opts.LogEncoding) {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return logr.Discard(), fmt.Errorf("invalid log encoding '%s'", opts.LogEncoding)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), level)
	return zapr.NewLogger(zap.New(core, zap.AddCaller())), nil
}

// parseLevel maps the level names to zap levels.
// Trace is one verbosity level below debug.
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return zapcore.DebugLevel - 1, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level '%s'", level)
	}
}
