// Copyright 2026 go-polyhedral Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codegen

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/itchyny/timefmt-go"
)

// LogLevel represents the severity level for logs.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel. Unrecognized strings map
// to LevelWarn.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "INFO":
		return LevelInfo
	case "DEBUG":
		return LevelDebug
	default:
		return LevelWarn
	}
}

// Logger is the interface the generator logs through.
type Logger interface {
	// Debugf, Infof, Warnf, Errorf log formatted messages at respective levels.
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With returns a child logger augmented with the provided fields.
	With(fields map[string]any) Logger
}

// noopLogger discards all output.
type noopLogger struct{}

func (l *noopLogger) Debugf(format string, args ...any) {}
func (l *noopLogger) Infof(format string, args ...any)  {}
func (l *noopLogger) Warnf(format string, args ...any)  {}
func (l *noopLogger) Errorf(format string, args ...any) {}
func (l *noopLogger) With(fields map[string]any) Logger { return l }

// NopLogger returns a logger that discards all output.
func NopLogger() Logger {
	return &noopLogger{}
}

var levelColors = map[LogLevel]string{
	LevelError: "\x1b[31m", // red
	LevelWarn:  "\x1b[33m", // yellow
	LevelInfo:  "\x1b[36m", // cyan
	LevelDebug: "\x1b[90m", // gray
}

const colorReset = "\x1b[0m"

// textLogger is a thread-safe logger writing single-line text records:
//
//	[LEVEL] 2026-01-02 15:04:05 msg key1=val1 key2=val2
type textLogger struct {
	out   io.Writer
	level LogLevel
	color bool

	// baseFields are the context fields attached to this logger.
	baseFields map[string]any

	// mu serializes writes and is shared with child loggers.
	mu *sync.Mutex
}

// NewLogger creates a text logger at the given level. If w is nil,
// os.Stderr is used. color enables ANSI coloring of the level tag.
func NewLogger(level LogLevel, w io.Writer, color bool) Logger {
	if w == nil {
		w = os.Stderr
	}
	return &textLogger{
		out:        w,
		level:      level,
		color:      color,
		baseFields: make(map[string]any),
		mu:         &sync.Mutex{},
	}
}

func (l *textLogger) With(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make(map[string]any, len(l.baseFields)+len(fields))
	for k, v := range l.baseFields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &textLogger{
		out:        l.out,
		level:      l.level,
		color:      l.color,
		baseFields: merged,
		mu:         l.mu,
	}
}

func (l *textLogger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *textLogger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *textLogger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *textLogger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *textLogger) logf(level LogLevel, format string, args ...any) {
	if level > l.level {
		return
	}
	var b strings.Builder
	b.Grow(128)

	b.WriteByte('[')
	if l.color {
		b.WriteString(levelColors[level])
		b.WriteString(level.String())
		b.WriteString(colorReset)
	} else {
		b.WriteString(level.String())
	}
	b.WriteString("] ")
	b.WriteString(timefmt.Format(time.Now(), "%Y-%m-%d %H:%M:%S"))
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf(format, args...))

	if len(l.baseFields) > 0 {
		keys := make([]string, 0, len(l.baseFields))
		for k := range l.baseFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(fmt.Sprint(l.baseFields[k]))
		}
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}
