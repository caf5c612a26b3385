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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type rowsResult int64

func (r rowsResult) LastInsertId() (int64, error) { return 0, nil }
func (r rowsResult) RowsAffected() (int64, error) { return int64(r), nil }

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(e Event) { s.events = append(s.events, e) }

func newTestHook(sink Sink, opts ...HookOption) *QueryHook {
	base := []HookOption{
		WithSink(sink),
		WithClock(func() time.Time { return fixedNow }),
	}
	return NewQueryHook(append(base, opts...)...)
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name  string
		event *bun.QueryEvent
		want  Category
	}{
		{"select", &bun.QueryEvent{Query: "SELECT 1"}, CategoryStatement},
		{"commit", &bun.QueryEvent{Query: "COMMIT"}, CategoryCommit},
		{"rollback", &bun.QueryEvent{Query: "rollback"}, CategoryRollback},
		{"savepoint rollback", &bun.QueryEvent{Query: "ROLLBACK TO SAVEPOINT sp1"}, CategoryRollback},
		{"single insert", &bun.QueryEvent{Query: "INSERT INTO team (name) VALUES ('a')", Result: rowsResult(1)}, CategoryStatement},
		{"multi insert", &bun.QueryEvent{Query: "INSERT INTO team (name) VALUES ('a'), ('b')", Result: rowsResult(2)}, CategoryBatch},
		{"bulk update", &bun.QueryEvent{Query: "UPDATE member SET age = age + 1", Result: rowsResult(3)}, CategoryStatement},
		{"leading whitespace", &bun.QueryEvent{Query: "\n  COMMIT"}, CategoryCommit},
		{"empty", &bun.QueryEvent{}, CategoryStatement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.event))
		})
	}
}

func TestHookEmitsFormattedLine(t *testing.T) {
	sink := &recordingSink{}
	h := newTestHook(sink)
	ctx := WithConnectionID(context.Background(), 3)

	h.AfterQuery(ctx, &bun.QueryEvent{
		Query:     "SELECT *\n FROM member",
		StartTime: fixedNow.Add(-12 * time.Millisecond),
	})

	require.Len(t, sink.events, 1)
	e := sink.events[0]
	assert.Equal(t, "2024-03-09 14:05:07.123 | statement | 12ms | connection 3 | SELECT * FROM member", e.Line)
	assert.Equal(t, int64(3), e.Statement.ConnectionID)
	assert.Equal(t, int64(12), e.Statement.ElapsedMillis)
	assert.False(t, e.Slow)
	assert.NoError(t, e.Err)
}

func TestHookUsesInjectedFormatter(t *testing.T) {
	sink := &recordingSink{}
	h := newTestHook(sink, WithFormatter(FormatterFunc(func(stmt CapturedStatement) string {
		return "custom:" + stmt.SQL
	})))
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "COMMIT"})
	require.Len(t, sink.events, 1)
	assert.Equal(t, "custom:COMMIT", sink.events[0].Line)
	assert.Equal(t, CategoryCommit, sink.events[0].Statement.Category)
	assert.Equal(t, NoConnection, sink.events[0].Statement.ConnectionID)
	assert.Equal(t, int64(-1), sink.events[0].Statement.ElapsedMillis)
}

func TestHookSlowThreshold(t *testing.T) {
	sink := &recordingSink{}
	h := newTestHook(sink, WithSlowThreshold(100*time.Millisecond))
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1", StartTime: fixedNow.Add(-150 * time.Millisecond)})
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", StartTime: fixedNow.Add(-5 * time.Millisecond)})
	require.Len(t, sink.events, 2)
	assert.True(t, sink.events[0].Slow)
	assert.False(t, sink.events[1].Slow)
}

func TestHookNonVerboseOnlyLogsFailures(t *testing.T) {
	sink := &recordingSink{}
	h := newTestHook(sink, WithVerbose(false))
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1"})
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", Err: sql.ErrNoRows})
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 3", Err: errors.New("no such table: member")})
	require.Len(t, sink.events, 1)
	assert.Contains(t, sink.events[0].Line, "SELECT 3")
}

func TestHookDisabledAndSilent(t *testing.T) {
	sink := &recordingSink{}
	newTestHook(sink, WithEnabled(false)).AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1"})
	newTestHook(sink).AfterQuery(Silent(context.Background()), &bun.QueryEvent{Query: "SELECT 1"})
	assert.Empty(t, sink.events)
}

func TestHookEnvOverride(t *testing.T) {
	sink := &recordingSink{}
	h := newTestHook(sink, FromEnv("SQLSPY_TEST"))

	t.Setenv("SQLSPY_TEST", "0")
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1"})
	assert.Empty(t, sink.events)

	t.Setenv("SQLSPY_TEST", "2")
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1"})
	assert.Len(t, sink.events, 1)
}

func TestHookSurvivesPanickingSink(t *testing.T) {
	h := newTestHook(SinkFunc(func(Event) { panic("sink down") }))
	assert.NotPanics(t, func() {
		h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1"})
	})
}

func TestHookBeforeQueryKeepsContext(t *testing.T) {
	ctx := WithConnectionID(context.Background(), 9)
	assert.Equal(t, ctx, NewQueryHook().BeforeQuery(ctx, &bun.QueryEvent{}))
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf, false)
	sink.Emit(Event{Line: "a | SELECT 1"})
	sink.Emit(Event{Line: "b | SELECT 2", Err: errors.New("boom")})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "a | SELECT 1", lines[0])
	assert.Equal(t, "b | SELECT 2\t *errors.errorString: boom ", lines[1])
}

func TestLoggerSinkLevels(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := NewLoggerSink(logger)

	sink.Emit(Event{Line: "ok", Statement: CapturedStatement{Category: CategoryStatement, ElapsedMillis: 1}})
	sink.Emit(Event{Line: "slow", Slow: true})
	sink.Emit(Event{Line: "failed", Err: errors.New("boom")})

	entries := hook.AllEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, logrus.InfoLevel, entries[0].Level)
	assert.Equal(t, "statement", entries[0].Data["category"])
	assert.Equal(t, logrus.WarnLevel, entries[1].Level)
	assert.Equal(t, logrus.ErrorLevel, entries[2].Level)
	assert.Equal(t, "failed", entries[2].Message)

	hook.Reset()
	sink.WithLevel(logrus.DebugLevel).Emit(Event{Line: "quiet"})
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.DebugLevel, hook.LastEntry().Level)
}

func TestLoggerSinkPassesInfoLogger(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.InfoLevel)
	NewLoggerSink(logger).Emit(Event{Line: "select 1"})
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "select 1", hook.LastEntry().Message)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics("test")
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))

	h := newTestHook(&recordingSink{}, WithMetrics(m), WithEnabled(false))
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 1"})
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "SELECT 2", Err: errors.New("boom")})
	h.AfterQuery(context.Background(), &bun.QueryEvent{Query: "COMMIT"})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.statements.WithLabelValues("statement")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statements.WithLabelValues("commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("statement")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.observe(CategoryBatch, time.Second, nil) })
}
