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

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/spy"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.True(t, cfg.Database.Migrate)
	assert.True(t, cfg.SQLLog.Enabled)
	assert.Equal(t, database.QueryLogPretty, cfg.SQLLog.Style)
	assert.Equal(t, spy.DefaultTimestampLayout, cfg.SQLLog.TimestampLayout)
	assert.Equal(t, 2*time.Second, cfg.SQLLog.SlowThreshold)
	assert.Equal(t, OutputStdout, cfg.SQLLog.Output)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5, cfg.HTTP.DefaultPageSize)
	assert.Equal(t, "age", cfg.HTTP.DefaultSort)
	assert.True(t, cfg.Seed)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
database:
  type: mysql
  host: 127.0.0.1
  port: 3306
  dbname: study
  foreignKeys: true
sqlLog:
  verbose: false
  uppercaseKeywords: true
  digest: true
  output: logger
  slowThreshold: 500ms
log:
  level: debug
  format: json
seed: false
`))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, 100, cfg.Database.MaxOpenConns, "unset keys keep their defaults")
	assert.False(t, cfg.SQLLog.Verbose)
	assert.True(t, cfg.SQLLog.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.SQLLog.SlowThreshold)
	assert.Equal(t, LogFormatJSON, cfg.Log.Format)
	assert.False(t, cfg.Seed)

	dbCfg := cfg.ConfigLoader()
	assert.Equal(t, "mysql", dbCfg.ConnectionConfig.Type)
	assert.Equal(t, "study", dbCfg.ConnectionConfig.DBName)
	assert.False(t, dbCfg.ConnectionConfig.QueryLogVerbose)
	assert.Equal(t, 500*time.Millisecond, dbCfg.ConnectionConfig.SlowQueryTime)
	assert.True(t, dbCfg.DataMigrateConfig.EnableMigrateOnStartup)
	assert.True(t, dbCfg.DataMigrateConfig.EnableForeignKey)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("sqlLog:\n  colour: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong file structure")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	cfg.Database.Type = "oracle"
	cfg.SQLLog.Style = "fancy"
	cfg.SQLLog.Output = "file"
	cfg.Log.Level = "loud"
	cfg.HTTP.Addr = " "

	err = cfg.Validate()
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 5)
	assert.Contains(t, err.Error(), "database.type")
	assert.Contains(t, err.Error(), "sqlLog.style")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datajpa.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":9090\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSQLFormatterFollowsConfig(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)
	cfg.SQLLog.UppercaseKeywords = true
	cfg.SQLLog.TimestampLayout = "15:04:05"

	stmt := spy.CapturedStatement{
		Category:      spy.CategoryStatement,
		ConnectionID:  1,
		ElapsedMillis: 4,
		Now:           time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		SQL:           "select *\n  from member",
	}
	assert.Equal(t, "10:20:30 | statement | 4ms | connection 1 | SELECT * FROM member",
		cfg.SQLFormatter().Format(stmt))
}

func TestSQLSinkSelection(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.IsType(t, &spy.WriterSink{}, cfg.SQLSink(logrus.New()))

	cfg.SQLLog.Output = OutputLogger
	assert.IsType(t, &spy.LoggerSink{}, cfg.SQLSink(logrus.New()))
	assert.IsType(t, &spy.WriterSink{}, cfg.SQLSink(nil))

	assert.Len(t, cfg.ManagerOptions(nil, nil), 2)
	assert.Len(t, cfg.ManagerOptions(nil, spy.NewMetrics("cfgtest")), 3)
}

func TestLoggerOutputVisibleAtDefaultLevel(t *testing.T) {
	cfg, err := Parse(strings.NewReader("sqlLog:\n  output: logger\n"))
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.SQLLog.LoggerLevel)

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	require.NoError(t, err)
	logger.SetLevel(level)

	cfg.SQLSink(logger).Emit(spy.Event{Line: "select * from member"})
	assert.Contains(t, buf.String(), "select * from member")

	buf.Reset()
	cfg, err = Parse(strings.NewReader("sqlLog:\n  output: logger\n  loggerLevel: debug\n"))
	require.NoError(t, err)
	cfg.SQLSink(logger).Emit(spy.Event{Line: "select * from team"})
	assert.Empty(t, buf.String())

	_, err = Parse(strings.NewReader("sqlLog:\n  loggerLevel: chatty\n"))
	assert.ErrorContains(t, err, "sqlLog.loggerLevel")
}

func TestApplyEnvOverridesDatabase(t *testing.T) {
	t.Setenv("DB_TYPE", "MySQL")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_QUERY_LOG_STYLE", "bun")
	t.Setenv("DB_SLOW_QUERY_MS", "250")

	cfg, err := Parse(strings.NewReader("database:\n  host: localhost\n  port: 3306\n"))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "bun", cfg.SQLLog.Style)
	assert.Equal(t, 250*time.Millisecond, cfg.SQLLog.SlowThreshold)

	conn := cfg.ConfigLoader().ConnectionConfig
	assert.Equal(t, "mysql", conn.Type)
	assert.Equal(t, "secret", conn.Password)
	assert.Equal(t, database.QueryLogBun, conn.QueryLogStyle)
	assert.Equal(t, int64(250), conn.SlowQueryTime.Milliseconds())
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	t.Setenv("DB_PORT", "http")
	t.Setenv("DB_SLOW_QUERY_MS", "soon")
	_, err := Load("")
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
	assert.Contains(t, err.Error(), "DB_PORT")
}
