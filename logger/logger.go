/*
Copyright 2026 The Flux authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	flagLogEncoding = "log-encoding"
	flagLogLevel    = "log-level"

	// FileName is the name of the log file written inside the logs dir.
	FileName = "artifactory-mirror.log"

	maxFileSizeMB  = 2
	maxFileBackups = 5
)

var levelStrings = map[string]zapcore.Level{
	// zap doesn't include trace level as a const, but it accepts any
	// int8; logr will convert a log.V(n) to zap's scheme, so e.g.,
	// V(2) will be custom debug level -2 in zap (i.e., `trace`
	// below).
	"trace": zapcore.DebugLevel - 1,
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"error": zapcore.ErrorLevel,
}

// These are for convenience when doing log.V(...) to log at a particular level. They correspond to the logr
// equivalents of the zap levels above.
const (
	TraceLevel = 2
	DebugLevel = 1
	InfoLevel  = 0
)

// Options contains the configuration options for the logger.
type Options struct {
	LogEncoding string
	LogLevel    string

	// LogsDir enables a rotated log file in the given directory, next to
	// the console output.
	LogsDir string

	// Output is the console destination, defaults to os.Stderr.
	Output io.Writer
}

// BindFlags will parse the given pflag.FlagSet for logger option flags and set the Options accordingly.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.LogEncoding, flagLogEncoding, "console",
		"Log encoding format. Can be 'json' or 'console'.")
	fs.StringVar(&o.LogLevel, flagLogLevel, "info",
		"Log verbosity level. Can be one of 'trace', 'debug', 'info', 'error'.")
}

// Validate returns an error for unknown encodings or levels.
func (o *Options) Validate() error {
	switch o.LogEncoding {
	case "", "console", "json":
	default:
		return fmt.Errorf("unsupported log encoding %q", o.LogEncoding)
	}
	if _, ok := levelStrings[o.LogLevel]; o.LogLevel != "" && !ok {
		return fmt.Errorf("unsupported log level %q", o.LogLevel)
	}
	return nil
}

// NewLogger returns a logger configured with the given Options, and timestamps set to the ISO8601 format.
// The returned function flushes buffered entries and closes the log file, if any.
func NewLogger(opts Options) (logr.Logger, func(), error) {
	if err := opts.Validate(); err != nil {
		return logr.Discard(), func() {}, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch opts.LogEncoding {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	default:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if l, ok := levelStrings[opts.LogLevel]; ok {
		level.SetLevel(l)
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(out)), level)}

	var file *lumberjack.Logger
	if opts.LogsDir != "" {
		if err := os.MkdirAll(opts.LogsDir, 0o755); err != nil {
			return logr.Discard(), func() {}, fmt.Errorf("failed to create logs dir: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(opts.LogsDir, FileName),
			MaxSize:    maxFileSizeMB,
			MaxBackups: maxFileBackups,
		}
		cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.AddSync(file), level))
	}

	zl := zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.PanicLevel))
	closeFn := func() {
		_ = zl.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
	return zapr.NewLogger(zl), closeFn, nil
}
