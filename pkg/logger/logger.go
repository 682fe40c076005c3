// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

type Logger struct {
	prefix string
	slog   *slog.Logger
}

var (
	level   = new(slog.LevelVar)
	base    *slog.Logger
	baseMu  sync.RWMutex
	logFile *os.File
	fileMu  sync.Mutex
	once    sync.Once
)

// Init installs the base handler: colored console output plus JSON lines
// appended to logPath. Optionally enables debug if DEBUG env var is set.
func Init(logPath string) error {
	var err error
	once.Do(func() {
		if os.Getenv("DEBUG") != "" {
			level.Set(slog.LevelDebug)
		}
		console := consoleHandler()

		logFile, err = os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			setBase(slog.New(console))
			return
		}
		file := slog.NewJSONHandler(fileWriter{}, &slog.HandlerOptions{Level: level})
		setBase(slog.New(fanout{console, file}))
	})
	return err
}

// Close cleans up the log file (call on shutdown)
func Close() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// EnableDebug dynamically turns debug logging on/off
func EnableDebug(on bool) {
	if on {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// IsDebug returns current debug state
func IsDebug() bool {
	return level.Level() <= slog.LevelDebug
}

func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		slog:   baseLogger().With("component", prefix),
	}
}

func (l *Logger) Info(fmtstr string, v ...any) {
	l.slog.Info(fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Warn(fmtstr string, v ...any) {
	l.slog.Warn(fmt.Sprintf(fmtstr, v...))
}

func (l *Logger) Error(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	if src, ok := caller(); ok {
		l.slog.Error(formatted, "src", src)
		return
	}
	l.slog.Error(formatted)
}

func (l *Logger) Fatal(fmtstr string, v ...any) {
	formatted := fmt.Sprintf(fmtstr, v...)
	if src, ok := caller(); ok {
		l.slog.Error(formatted, "src", src, "fatal", true)
	} else {
		l.slog.Error(formatted, "fatal", true)
	}
	panic(formatted)
}

func (l *Logger) Debug(fmtstr string, v ...any) {
	if !l.slog.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.slog.Debug(fmt.Sprintf(fmtstr, v...))
}

// Std returns a standard library logger writing through this logger at lvl,
// for third-party packages that want a Printf/Println sink.
func (l *Logger) Std(lvl slog.Level) *log.Logger {
	return slog.NewLogLogger(l.slog.Handler(), lvl)
}

func caller() (string, bool) {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line), true
}

func consoleHandler() slog.Handler {
	return tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
	})
}

func baseLogger() *slog.Logger {
	baseMu.RLock()
	b := base
	baseMu.RUnlock()
	if b != nil {
		return b
	}
	// used before Init (tests, early bootstrap): console only
	return slog.New(consoleHandler())
}

func setBase(l *slog.Logger) {
	baseMu.Lock()
	base = l
	baseMu.Unlock()
}

// fileWriter writes to whichever log file is current, so clearing the log
// does not require rebuilding handlers.
type fileWriter struct{}

func (fileWriter) Write(p []byte) (int, error) {
	fileMu.Lock()
	defer fileMu.Unlock()
	if logFile == nil {
		return len(p), nil
	}
	return logFile.Write(p)
}

// fanout sends every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, lvl slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, lvl) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
