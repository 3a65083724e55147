// Package logging builds the zap logger used by euglenins: a console core on
// stderr and, optionally, a second core appending to a log file. Both write
// lines of the form
//
//	[2006-01-02 15:04:05] [WARN] message {"field": ...}
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TimeLayout is the timestamp written at the start of every line.
const TimeLayout = "2006-01-02 15:04:05"

// Options selects the level and destinations.
type Options struct {
	Verbose bool // info
	Debug   bool // debug; wins over Verbose

	// File, if set, receives a copy of every entry. It is appended to.
	File string

	// Console defaults to os.Stderr.
	Console io.Writer
}

// Level is warn unless Verbose or Debug lower it.
func (o Options) Level() zapcore.Level {
	switch {
	case o.Debug:
		return zapcore.DebugLevel
	case o.Verbose:
		return zapcore.InfoLevel
	}
	return zapcore.WarnLevel
}

// EncoderConfig lays entries out as "[time] [LEVEL] message".
func EncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "msg",
		StacktraceKey:    "stacktrace",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout("[" + TimeLayout + "]"),
		EncodeLevel:      bracketLevel,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

func bracketLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + l.CapitalString() + "]")
}

// New builds the logger. The returned close function syncs the logger and
// closes the log file, if any.
func New(o Options) (*zap.Logger, func() error, error) {
	level := zap.NewAtomicLevelAt(o.Level())
	enc := zapcore.NewConsoleEncoder(EncoderConfig())

	console := o.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(console), level)}

	var (
		file    *os.File
		existed bool
	)
	if o.File != "" {
		_, err := os.Stat(o.File)
		existed = err == nil

		file, err = os.OpenFile(o.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(file), level))
	}

	log := zap.New(zapcore.NewTee(cores...), zap.ErrorOutput(zapcore.AddSync(console)))
	if existed {
		log.Warn("log file already exists; appending to it", zap.String("path", o.File))
	}

	closeFn := func() error {
		// Syncing a terminal fails on some platforms; only the file matters.
		_ = log.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}

	return log, closeFn, nil
}

// DefaultFileName is a per-invocation log file name, e.g.
// euglenins_phyloseq_2024_03_01_12_30_00.log.
func DefaultFileName(program, command string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s.log", program, command, t.Format("2006_01_02_15_04_05"))
}
