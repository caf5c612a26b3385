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
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// DefaultEnvName is the variable read by FromEnv when no name is given.
// "0" or "" disables logging, "2" enables verbose logging.
const DefaultEnvName = "SQLSPY"

// QueryHook is the interception layer: it observes every statement Bun
// executes, formats it and forwards it to a Sink.
type QueryHook struct {
	envName       string
	enabled       bool
	verbose       bool
	formatter     Formatter
	sink          Sink
	slowThreshold time.Duration
	metrics       *Metrics
	now           func() time.Time
}

var _ bun.QueryHook = (*QueryHook)(nil)

type HookOption func(*QueryHook)

func WithFormatter(f Formatter) HookOption {
	return func(h *QueryHook) { h.formatter = f }
}

func WithSink(s Sink) HookOption {
	return func(h *QueryHook) { h.sink = s }
}

// WithEnabled turns logging on or off; metrics are recorded either way.
func WithEnabled(on bool) HookOption {
	return func(h *QueryHook) { h.enabled = on }
}

// WithVerbose logs every statement when on, only failed ones when off.
func WithVerbose(on bool) HookOption {
	return func(h *QueryHook) { h.verbose = on }
}

// FromEnv lets the named environment variable override enabled/verbose.
func FromEnv(name string) HookOption {
	if name == "" {
		name = DefaultEnvName
	}
	return func(h *QueryHook) { h.envName = name }
}

// WithSlowThreshold flags statements running at least d as slow.
func WithSlowThreshold(d time.Duration) HookOption {
	return func(h *QueryHook) { h.slowThreshold = d }
}

func WithMetrics(m *Metrics) HookOption {
	return func(h *QueryHook) { h.metrics = m }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) HookOption {
	return func(h *QueryHook) { h.now = now }
}

// NewQueryHook returns an enabled, verbose hook that pretty-prints to stdout
// unless options say otherwise.
func NewQueryHook(opts ...HookOption) *QueryHook {
	h := &QueryHook{
		enabled: true,
		verbose: true,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.formatter == nil {
		h.formatter = NewPrettyFormatter()
	}
	if h.sink == nil {
		h.sink = NewWriterSink(os.Stdout, false)
	}
	return h
}

func (h *QueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	// logging must never break the statement that was just executed
	defer func() { _ = recover() }()

	now := h.now()
	stmt := h.capture(ctx, event, now)
	var elapsed time.Duration
	if !event.StartTime.IsZero() {
		elapsed = now.Sub(event.StartTime)
	}
	h.metrics.observe(stmt.Category, elapsed, event.Err)

	if IsSilent(ctx) || !h.shouldLog(event) {
		return
	}

	slow := h.slowThreshold > 0 && elapsed >= h.slowThreshold
	h.sink.Emit(Event{
		Statement: stmt,
		Line:      h.formatter.Format(stmt),
		Slow:      slow,
		Err:       event.Err,
	})
}

func (h *QueryHook) shouldLog(event *bun.QueryEvent) bool {
	enabled, verbose := h.enabled, h.verbose
	if h.envName != "" {
		if env, ok := os.LookupEnv(h.envName); ok {
			env = strings.TrimSpace(env)
			enabled = env != "" && env != "0"
			verbose = env == "2"
		}
	}
	if !enabled {
		return false
	}
	if verbose {
		return true
	}
	switch {
	case event.Err == nil, errors.Is(event.Err, sql.ErrNoRows), errors.Is(event.Err, sql.ErrTxDone):
		return false
	}
	return true
}

func (h *QueryHook) capture(ctx context.Context, event *bun.QueryEvent, now time.Time) CapturedStatement {
	stmt := CapturedStatement{
		Category:      Categorize(event),
		ConnectionID:  ConnectionIDFromContext(ctx),
		ElapsedMillis: -1,
		Now:           now,
		SQL:           event.Query,
	}
	if !event.StartTime.IsZero() {
		stmt.ElapsedMillis = now.Sub(event.StartTime).Milliseconds()
	}
	return stmt
}

// Categorize maps a Bun query event onto a statement category. Multi-row
// inserts count as batches.
func Categorize(event *bun.QueryEvent) Category {
	op := firstWord(event.Query)
	if event.IQuery != nil {
		op = event.IQuery.Operation()
	}
	switch strings.ToUpper(op) {
	case "COMMIT":
		return CategoryCommit
	case "ROLLBACK":
		return CategoryRollback
	case "INSERT":
		if event.Result != nil {
			if n, err := event.Result.RowsAffected(); err == nil && n > 1 {
				return CategoryBatch
			}
		}
	}
	return CategoryStatement
}

func firstWord(query string) string {
	query = strings.TrimLeft(query, " \t\r\n(")
	if idx := strings.IndexAny(query, " \t\r\n;("); idx >= 0 {
		return query[:idx]
	}
	return query
}
