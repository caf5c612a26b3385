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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/datajpa/database"
	"github.com/tomoncle/datajpa/spy"
	"gopkg.in/yaml.v3"
)

const (
	OutputStdout = "stdout"
	OutputLogger = "logger"

	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the application configuration read from a YAML file.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	SQLLog   SQLLogConfig   `yaml:"sqlLog"`
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	// Seed inserts user1..user100 on startup.
	Seed bool `yaml:"seed" default:"true"`
}

type DatabaseConfig struct {
	Type           string        `yaml:"type" default:"sqlite"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	DBName         string        `yaml:"dbname" default:"file:datajpa?mode=memory&cache=shared"`
	SSLMode        string        `yaml:"sslmode"`
	MaxOpenConns   int           `yaml:"maxOpenConns" default:"100"`
	MaxIdleConns   int           `yaml:"maxIdleConns" default:"10"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" default:"10s"`
	HealthCheck    time.Duration `yaml:"healthCheckInterval" default:"5m"`
	Migrate        bool          `yaml:"migrate" default:"true"`
	ForeignKeys    bool          `yaml:"foreignKeys"`
	ForeignKeyFile string        `yaml:"foreignKeyFile"`
}

// SQLLogConfig configures the statement log line and where it goes.
type SQLLogConfig struct {
	Enabled           bool          `yaml:"enabled" default:"true"`
	Style             string        `yaml:"style" default:"pretty"`
	Verbose           bool          `yaml:"verbose" default:"true"`
	TimestampLayout   string        `yaml:"timestampLayout" default:"2006-01-02 15:04:05.000"`
	UppercaseKeywords bool          `yaml:"uppercaseKeywords"`
	Digest            bool          `yaml:"digest"`
	Output            string        `yaml:"output" default:"stdout"`
	LoggerLevel       string        `yaml:"loggerLevel" default:"info"`
	Colored           bool          `yaml:"colored" default:"true"`
	SlowThreshold     time.Duration `yaml:"slowThreshold" default:"2s"`
	MetricsNamespace  string        `yaml:"metricsNamespace" default:"datajpa"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"text"`
}

type HTTPConfig struct {
	Addr            string `yaml:"addr" default:":8080"`
	DefaultPageSize int    `yaml:"defaultPageSize" default:"5"`
	DefaultSort     string `yaml:"defaultSort" default:"age"`
	// CORSOrigins enables CORS for the listed origins; empty disables it.
	CORSOrigins []string `yaml:"corsOrigins"`
}

// New returns a configuration holding only default values.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("can't apply default values: %w", err)
	}
	return cfg, nil
}

// Load reads path on top of the defaults, applies DB_* overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg, err := New()
		if err != nil {
			return nil, err
		}
		return cfg, cfg.finish()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes YAML from r on top of the defaults, then applies DB_*
// overrides and validates. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg, err := New()
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("wrong file structure: %w", err)
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) finish() error {
	if err := c.ApplyEnv(); err != nil {
		return err
	}
	return c.Validate()
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if !oneOf(c.Database.Type, "mysql", "postgres", "postgresql", "sqlite", "sqlite3") {
		result = multierror.Append(result, fmt.Errorf("database.type: unsupported value %q", c.Database.Type))
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		result = multierror.Append(result, errors.New("database: connection pool sizes must not be negative"))
	}
	if !oneOf(c.SQLLog.Style, database.QueryLogPretty, database.QueryLogBun) {
		result = multierror.Append(result, fmt.Errorf("sqlLog.style: should be %q or %q, got %q",
			database.QueryLogPretty, database.QueryLogBun, c.SQLLog.Style))
	}
	if !oneOf(c.SQLLog.Output, OutputStdout, OutputLogger) {
		result = multierror.Append(result, fmt.Errorf("sqlLog.output: should be %q or %q, got %q",
			OutputStdout, OutputLogger, c.SQLLog.Output))
	}
	if _, err := logrus.ParseLevel(c.SQLLog.LoggerLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("sqlLog.loggerLevel: %w", err))
	}
	if c.SQLLog.SlowThreshold < 0 {
		result = multierror.Append(result, errors.New("sqlLog.slowThreshold: must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		result = multierror.Append(result, fmt.Errorf("log.level: %w", err))
	}
	if !oneOf(c.Log.Format, LogFormatText, LogFormatJSON) {
		result = multierror.Append(result, fmt.Errorf("log.format: should be %q or %q, got %q",
			LogFormatText, LogFormatJSON, c.Log.Format))
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		result = multierror.Append(result, errors.New("http.addr: must not be empty"))
	}
	if c.HTTP.DefaultPageSize < 1 {
		result = multierror.Append(result, errors.New("http.defaultPageSize: must be positive"))
	}
	return result.ErrorOrNil()
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

var _ database.AbstractDatabaseConfigProvider = (*Config)(nil)

// ConfigLoader maps the configuration onto the database layer's settings.
func (c *Config) ConfigLoader() *database.Config {
	conn := database.DefaultConnectionConfig()
	conn.Type = strings.ToLower(c.Database.Type)
	conn.Host = c.Database.Host
	conn.Port = c.Database.Port
	conn.Username = c.Database.Username
	conn.Password = c.Database.Password
	conn.DBName = c.Database.DBName
	conn.SSLMode = c.Database.SSLMode
	conn.MaxOpenConns = c.Database.MaxOpenConns
	conn.MaxIdleConns = c.Database.MaxIdleConns
	conn.ConnectTimeout = c.Database.ConnectTimeout
	conn.HealthCheckInterval = c.Database.HealthCheck
	conn.EnableQueryLog = c.SQLLog.Enabled
	conn.QueryLogStyle = strings.ToLower(c.SQLLog.Style)
	conn.QueryLogVerbose = c.SQLLog.Verbose
	conn.SlowQueryTime = c.SQLLog.SlowThreshold

	return &database.Config{
		ConnectionConfig: *conn,
		DataMigrateConfig: database.DataMigrateConfig{
			EnableMigrateOnStartup: c.Database.Migrate,
			EnableForeignKey:       c.Database.ForeignKeys,
			ForeignKeyFile:         c.Database.ForeignKeyFile,
		},
	}
}

// SQLFormatter builds the statement formatter described by the sqlLog section.
func (c *Config) SQLFormatter() *spy.PrettyFormatter {
	opts := []spy.FormatterOption{spy.WithTimestampLayout(c.SQLLog.TimestampLayout)}
	if c.SQLLog.UppercaseKeywords {
		opts = append(opts, spy.WithUppercaseKeywords())
	}
	if c.SQLLog.Digest {
		opts = append(opts, spy.WithDigest())
	}
	return spy.NewPrettyFormatter(opts...)
}

// SQLSink returns where formatted statements are written: stdout, or logger
// at sqlLog.loggerLevel when output is "logger".
func (c *Config) SQLSink(logger logrus.FieldLogger) spy.Sink {
	if strings.EqualFold(c.SQLLog.Output, OutputLogger) && logger != nil {
		level, err := logrus.ParseLevel(c.SQLLog.LoggerLevel)
		if err != nil {
			level = logrus.InfoLevel
		}
		return spy.NewLoggerSink(logger).WithLevel(level)
	}
	return spy.NewWriterSink(os.Stdout, c.SQLLog.Colored)
}

// ManagerOptions wires formatter, sink and metrics into the database manager.
func (c *Config) ManagerOptions(logger logrus.FieldLogger, metrics *spy.Metrics) []database.ManagerOption {
	opts := []database.ManagerOption{
		database.WithSQLFormatter(c.SQLFormatter()),
		database.WithSQLSink(c.SQLSink(logger)),
	}
	if metrics != nil {
		opts = append(opts, database.WithMetrics(metrics))
	}
	return opts
}
