/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package spy

import (
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Event is what the hook hands to a Sink for every captured statement.
type Event struct {
	Statement CapturedStatement
	Line      string
	Slow      bool
	Err       error
}

// Sink receives formatted statements. Ordering across goroutines is up to
// the implementation.
type Sink interface {
	Emit(event Event)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(event Event)

func (f SinkFunc) Emit(event Event) { f(event) }

var (
	categoryColors = map[Category]*color.Color{
		CategoryStatement: color.New(color.FgGreen),
		CategoryCommit:    color.New(color.FgCyan),
		CategoryRollback:  color.New(color.FgMagenta),
		CategoryBatch:     color.New(color.FgBlue),
	}
	slowColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.BgRed)
	unknownColor = color.New(color.FgRed)
)

// WriterSink writes one line per event to an io.Writer, serializing writers.
type WriterSink struct {
	mu      sync.Mutex
	w       io.Writer
	colored bool
}

var _ Sink = (*WriterSink)(nil)

// NewWriterSink returns a sink writing to w; colored enables ANSI colors.
func NewWriterSink(w io.Writer, colored bool) *WriterSink {
	return &WriterSink{w: w, colored: colored}
}

func (s *WriterSink) Emit(event Event) {
	line := event.Line
	if s.colored {
		line = colorize(event)
	}
	if event.Err != nil {
		errText := fmt.Sprintf(" %s: %s ", reflect.TypeOf(event.Err).String(), event.Err.Error())
		if s.colored {
			errText = errorColor.Sprint(errText)
		}
		line += "\t" + errText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.w, line)
}

func colorize(event Event) string {
	if event.Slow {
		return slowColor.Sprint(event.Line)
	}
	if c, ok := categoryColors[event.Statement.Category]; ok {
		return c.Sprint(event.Line)
	}
	return unknownColor.Sprint(event.Line)
}

// LoggerSink writes events through a logrus logger: ordinary statements at
// the sink's level, slow ones at warn and failed ones at error.
type LoggerSink struct {
	logger logrus.FieldLogger
	level  logrus.Level
}

var _ Sink = (*LoggerSink)(nil)

// NewLoggerSink logs ordinary statements at info.
func NewLoggerSink(logger logrus.FieldLogger) *LoggerSink {
	return &LoggerSink{logger: logger, level: logrus.InfoLevel}
}

// WithLevel sets the level of ordinary statements.
func (s *LoggerSink) WithLevel(level logrus.Level) *LoggerSink {
	s.level = level
	return s
}

func (s *LoggerSink) Emit(event Event) {
	entry := s.logger.WithFields(logrus.Fields{
		"category":   event.Statement.Category.Name(),
		"elapsed_ms": event.Statement.ElapsedMillis,
	})
	switch {
	case event.Err != nil:
		entry.WithError(event.Err).Error(event.Line)
	case event.Slow:
		entry.Warn(event.Line)
	default:
		entry.Log(s.level, event.Line)
	}
}
