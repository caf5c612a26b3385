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

package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa/spy"
	"github.com/uptrace/bun"
)

type testTeam struct {
	bun.BaseModel `bun:"table:team"`

	TeamID int64  `bun:"team_id,pk,autoincrement"`
	Name   string `bun:"name"`
}

type testMember struct {
	bun.BaseModel `bun:"table:member"`

	ID       int64  `bun:"member_id,pk,autoincrement"`
	Username string `bun:"username"`
	TeamID   *int64 `bun:"team_id"`
}

func testRegistry() ModelRegistry {
	r := NewModelRegistry()
	r.Register(NewModelAdapter((*testMember)(nil), 20), NewModelAdapter((*testTeam)(nil), 10))
	return r
}

type collectSink struct {
	mu     sync.Mutex
	events []spy.Event
}

func (s *collectSink) Emit(e spy.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *collectSink) lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Line)
	}
	return out
}

func memoryConfig(t *testing.T) *ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.DBName = fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg.HealthCheckInterval = 0
	return cfg
}

func connect(t *testing.T, cfg *ConnectionConfig, opts ...ManagerOption) AbstractDatabaseManager {
	t.Helper()
	dm := NewDatabaseManager(cfg, opts...)
	require.NoError(t, dm.Connect(context.Background()))
	t.Cleanup(func() { _ = dm.Disconnect() })
	return dm
}

func TestSqliteDSN(t *testing.T) {
	first, second := sqliteDSN(":memory:"), sqliteDSN("")
	assert.NotEqual(t, first, second)
	assert.NotContains(t, first, "file::memory:")
	for _, dsn := range []string{first, second} {
		assert.True(t, strings.HasPrefix(dsn, "file:datajpa-"), dsn)
		assert.True(t, isSQLiteMemory(dsn), dsn)
	}
	assert.Equal(t, "file:x?mode=memory", sqliteDSN("file:x?mode=memory"))
	assert.Equal(t, "datajpa.db", sqliteDSN("datajpa"))
	assert.Equal(t, "datajpa.db", sqliteDSN("datajpa.db"))
	assert.True(t, isSQLiteMemory("file:x?mode=memory&cache=shared"))
	assert.False(t, isSQLiteMemory("datajpa"))
}

func tableCount(t *testing.T, db *bun.DB, table string) int {
	t.Helper()
	var n int
	err := db.NewRaw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).
		Scan(context.Background(), &n)
	require.NoError(t, err)
	return n
}

func TestManagersOnMemoryAreIsolated(t *testing.T) {
	newMemory := func() *ConnectionConfig {
		cfg := DefaultConnectionConfig()
		cfg.HealthCheckInterval = 0
		return cfg
	}
	a := connect(t, newMemory(), WithModelRegistry(testRegistry()))
	b := connect(t, newMemory(), WithModelRegistry(testRegistry()))
	require.NoError(t, a.RunMigrations(context.Background()))

	assert.Equal(t, 1, tableCount(t, a.GetDB(), "member"))
	assert.Equal(t, 0, tableCount(t, b.GetDB(), "member"))
}

func TestReconnectReopensSameFile(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.DBName = filepath.Join(t.TempDir(), "reconnect")
	cfg.HealthCheckInterval = 0
	dm := connect(t, cfg, WithModelRegistry(testRegistry()))
	ctx := context.Background()
	require.NoError(t, dm.RunMigrations(ctx))

	require.NoError(t, dm.Reconnect(ctx))
	require.NoError(t, dm.Ping(ctx))
	assert.Equal(t, 1, tableCount(t, dm.GetDB(), "member"))
}

func TestReconnectAfterFailure(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.DBName = filepath.Join(t.TempDir(), "health")
	cfg.HealthCheckInterval = 0
	cfg.ReconnectInterval = time.Millisecond
	cfg.MaxReconnectTries = 1
	dm := NewDatabaseManager(cfg).(*defaultDatabaseManager)
	ctx := context.Background()
	require.NoError(t, dm.Connect(ctx))
	t.Cleanup(func() { _ = dm.Disconnect() })

	require.NoError(t, dm.Disconnect())
	assert.False(t, dm.HealthCheck(ctx).Healthy)
	require.NoError(t, dm.reconnectAfterFailure(ctx))
	assert.True(t, dm.HealthCheck(ctx).Healthy)
	assert.Equal(t, 0, dm.reconnectTries)

	dm.reconnectTries = cfg.MaxReconnectTries
	require.NoError(t, dm.Disconnect())
	assert.Error(t, dm.reconnectAfterFailure(ctx))
	assert.Nil(t, dm.GetDB())
}

func TestReconnectAfterFailureSkipsMemory(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.HealthCheckInterval = 0
	dm := NewDatabaseManager(cfg).(*defaultDatabaseManager)
	ctx := context.Background()
	require.NoError(t, dm.Connect(ctx))
	require.NoError(t, dm.Disconnect())

	assert.ErrorIs(t, dm.reconnectAfterFailure(ctx), ErrMemoryReconnect)
	assert.Nil(t, dm.GetDB())
	assert.Equal(t, 0, dm.reconnectTries)
}

func TestManagerPrettyQueryLog(t *testing.T) {
	sink := &collectSink{}
	metrics := spy.NewMetrics("dbtest")
	dm := connect(t, memoryConfig(t),
		WithModelRegistry(testRegistry()),
		WithSQLSink(sink),
		WithMetrics(metrics),
	)
	ctx := context.Background()
	require.NoError(t, dm.RunMigrations(ctx))
	assert.Empty(t, sink.lines(), "migrations run silently")

	db := dm.GetDB()
	_, err := db.NewInsert().Model(&testTeam{Name: "teamA"}).Exec(spy.WithConnectionID(ctx, 3))
	require.NoError(t, err)

	lines := sink.lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], " | statement | ")
	assert.Contains(t, lines[0], " | connection 3 | INSERT INTO \"team\"")
	assert.NotContains(t, lines[0], "\n")
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.Statements().WithLabelValues("statement")), 1.0)
}

func TestManagerQueryLogDisabledStillCountsMetrics(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.EnableQueryLog = false
	sink := &collectSink{}
	metrics := spy.NewMetrics("dbtest_off")
	dm := connect(t, cfg, WithModelRegistry(testRegistry()), WithSQLSink(sink), WithMetrics(metrics))

	var n int
	require.NoError(t, dm.GetDB().NewRaw("SELECT 1").Scan(context.Background(), &n))
	assert.Equal(t, 1, n)
	assert.Empty(t, sink.lines())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Statements().WithLabelValues("statement")))
}

func TestManagerCustomFormatter(t *testing.T) {
	sink := &collectSink{}
	dm := connect(t, memoryConfig(t),
		WithSQLSink(sink),
		WithSQLFormatter(spy.FormatterFunc(func(stmt spy.CapturedStatement) string {
			return "custom: " + spy.CollapseWhitespace(stmt.SQL)
		})),
	)
	_, err := dm.GetDB().ExecContext(context.Background(), "SELECT   1")
	require.NoError(t, err)
	assert.Equal(t, []string{"custom: SELECT 1"}, sink.lines())
}

func TestManagerHealthAndStats(t *testing.T) {
	dm := connect(t, memoryConfig(t))
	status := dm.HealthCheck(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.Connected)
	assert.Equal(t, 1, dm.GetStats().MaxOpenConns)
	require.NoError(t, dm.Ping(context.Background()))

	require.NoError(t, dm.Disconnect())
	assert.Error(t, dm.Ping(context.Background()))
	assert.False(t, dm.HealthCheck(context.Background()).Healthy)
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(context.Background(), &Config{ConnectionConfig: ConnectionConfig{Type: "oracle"}})
	assert.ErrorContains(t, err, "unsupported database type")
	_, err = Open(context.Background(), nil)
	assert.Error(t, err)
	_, err = InitDB(context.Background(), nil)
	assert.Error(t, err)
}

func TestOpenDoesNotShareConfig(t *testing.T) {
	cfg := &Config{ConnectionConfig: *DefaultConnectionConfig()}
	cfg.ConnectionConfig.HealthCheckInterval = 0
	dm, err := Open(context.Background(), cfg, WithModelRegistry(testRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Disconnect() })

	// in-memory SQLite narrows the pool on the manager's own copy
	assert.Equal(t, 1, dm.GetStats().MaxOpenConns)
	assert.Equal(t, 100, cfg.ConnectionConfig.MaxOpenConns)
}

func TestInitDB(t *testing.T) {
	cfg := &Config{
		ConnectionConfig:  *memoryConfig(t),
		DataMigrateConfig: DataMigrateConfig{EnableMigrateOnStartup: true, EnableForeignKey: true},
	}
	cfg.ConnectionConfig.EnableQueryLog = false
	db, err := InitDB(context.Background(), cfg, WithModelRegistry(testRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDB() })

	assert.Same(t, db, GetDB())
	assert.NotNil(t, GetDatabaseManager())
	assert.True(t, GetHealthStatus(context.Background()).Healthy)

	exists, err := db.NewSelect().Model((*testMember)(nil)).Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, CloseDB())
	assert.Nil(t, GetDB())
	assert.False(t, GetHealthStatus(context.Background()).Healthy)
}

func TestMigrations(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.EnableQueryLog = false
	dm := connect(t, cfg)
	db := dm.GetDB()
	ctx := context.Background()

	var applied []string
	mm := NewMigrationManager(db, nil,
		WithRegistry(testRegistry()),
		WithMigrateConfig(DataMigrateConfig{EnableForeignKey: true}),
		WithMigrations(MigrationItem{
			Version: "100",
			Name:    "seed_team",
			Up: func(ctx context.Context, db bun.IDB) error {
				applied = append(applied, "100")
				_, err := db.NewInsert().Model(&testTeam{Name: "seed"}).Exec(ctx)
				return err
			},
		}),
	)
	require.NoError(t, mm.RunMigrations(ctx))
	require.NoError(t, mm.RunMigrations(ctx), "re-running is a no-op")
	assert.Equal(t, []string{"100"}, applied)

	records, err := mm.GetAppliedMigrations(ctx)
	require.NoError(t, err)
	versions := make([]string, 0, len(records))
	for _, r := range records {
		versions = append(versions, r.Version)
	}
	assert.Equal(t, []string{"001", "002", "100"}, versions)

	count, err := db.NewSelect().Model((*testTeam)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.ErrorIs(t, mm.RollbackMigration(ctx, "999"), ErrMigrationNotFound)
	assert.Error(t, mm.RollbackMigration(ctx, "100"), "no down step")
	require.NoError(t, mm.RollbackMigration(ctx, "001"))
	_, err = db.NewSelect().Model((*testTeam)(nil)).Count(ctx)
	ok, kind := IsSqlError(err)
	assert.True(t, ok)
	assert.Equal(t, NoTableErr, kind)
}

func TestForeignKeyConstraint(t *testing.T) {
	fk := DefaultForeignKeyConstraints()[0]
	assert.Equal(t, "fk_member_team_id", fk.GenerateConstraintName())
	assert.Equal(t,
		"ALTER TABLE member ADD CONSTRAINT fk_member_team_id FOREIGN KEY (team_id) REFERENCES team(team_id) ON DELETE SET NULL",
		fk.GenerateSQL())

	fkm := NewForeignKeyManager(nil)
	assert.NoError(t, fkm.ValidateConstraints())
	assert.Len(t, fkm.GetConstraintsByTable("MEMBER"), 1)
	assert.Empty(t, fkm.GetConstraintsByTable("team"))
}

func TestForeignKeyValidationCollectsAllErrors(t *testing.T) {
	fkm := &ForeignKeyManager{constraints: []ForeignKeyConstraint{
		{Table: "member", Column: "team_id", OnDelete: "EXPLODE"},
		{Column: "x", ReferenceTable: "t", ReferenceColumn: "id"},
	}}
	err := fkm.ValidateConstraints()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "reference table name cannot be empty")
	assert.Contains(t, msg, "reference column name cannot be empty")
	assert.Contains(t, msg, "invalid delete policy: EXPLODE")
	assert.Contains(t, msg, "table name cannot be empty")
}

func TestConfigurableForeignKeyManager(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fk", "foreign_keys.yaml")

	fallback := NewConfigurableForeignKeyManager(nil, path)
	assert.Equal(t, DefaultForeignKeyConstraints(), fallback.ListAllConstraints())
	require.NoError(t, fallback.ExportToConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reference_table: team")

	require.NoError(t, os.WriteFile(path, []byte(`foreign_keys:
  - table: member
    column: team_id
    reference_table: team
    reference_column: team_id
    on_delete: CASCADE
    constraint_name: fk_member_team
`), 0644))
	require.NoError(t, fallback.ReloadConfig())
	constraints := fallback.ListAllConstraints()
	require.Len(t, constraints, 1)
	assert.Equal(t, "fk_member_team", constraints[0].GenerateConstraintName())
	assert.Equal(t, "CASCADE", constraints[0].OnDelete)
	assert.Equal(t, path, fallback.GetConfigPath())
}

func TestIsSqlError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   bool
		kind SQLError
	}{
		{"nil", nil, false, UnknownErr},
		{"no rows", fmt.Errorf("find: %w", sql.ErrNoRows), true, NoRowsErr},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true, DuplicateKeyErr},
		{"mysql missing table", &mysql.MySQLError{Number: 1146}, true, NoTableErr},
		{"mysql other", &mysql.MySQLError{Number: 9999}, true, UnknownErr},
		{"postgres unique", &pq.Error{Code: "23505"}, true, DuplicateKeyErr},
		{"postgres fk", fmt.Errorf("wrap: %w", &pq.Error{Code: "23503"}), true, ForeignKeyViolationErr},
		{"sqlite unique", fmt.Errorf("UNIQUE constraint failed: member.username"), true, DuplicateKeyErr},
		{"sqlite no table", fmt.Errorf("SQL logic error: no such table: member (1)"), true, NoTableErr},
		{"sqlite not null", fmt.Errorf("NOT NULL constraint failed: member.username"), true, NotNullViolationErr},
		{"other", fmt.Errorf("connection refused"), false, UnknownErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is, kind := IsSqlError(tt.err)
			assert.Equal(t, tt.is, is)
			assert.Equal(t, tt.kind, kind)
		})
	}
	assert.Equal(t, "duplicate key", DuplicateKeyErr.String())
	assert.Equal(t, "unknown", SQLError(99).String())
}

func TestModelRegistryOrder(t *testing.T) {
	r := testRegistry()
	instances := r.Instances()
	require.Len(t, instances, 2)
	assert.IsType(t, (*testTeam)(nil), instances[0])
	assert.IsType(t, (*testMember)(nil), instances[1])
}

func TestDefaultLoggerFields(t *testing.T) {
	assert.Equal(t, "v", toFields([]interface{}{"k", "v"})["k"])
	assert.Equal(t, "dangling", toFields([]interface{}{"k", 1, "dangling"})["extra"])
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "DEBUG", LogLevel(42).String())
}
