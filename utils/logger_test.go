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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel(" warning "))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("nonsense"))
}

func TestLoggerRegistry(t *testing.T) {
	var buf bytes.Buffer
	ConfigureConsoleOutput(&buf)
	t.Cleanup(func() { ConfigureConsoleOutput(os.Stdout) })
	l := NewLogger("REGTEST")

	assert.True(t, SetLoggerLevel("REGTEST", "error"))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("NOBODY", "error"))

	l.Info("hidden")
	assert.Empty(t, buf.String())
	l.Error("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "REGTEST")
}

func TestLog4jColorFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DB", NameWidth: 4, PathFmt: PathFormatFilenameOnly}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "connected",
		Data:    logrus.Fields{"b": 2, "a": 1},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2024-05-01 10:20:30.000 "))
	assert.Contains(t, line, "connected a=1 b=2\n")
	assert.Contains(t, line, colorCyan("  DB"))
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "DB", TimestampFormat: time.RFC3339}
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow",
		Data:    logrus.Fields{"error": errors.New("boom"), "ms": 2100},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "2024-05-01T10:20:30Z", rec["time"])
	assert.Equal(t, "warning", rec["level"])
	assert.Equal(t, "DB", rec["logger"])
	assert.Equal(t, "slow", rec["message"])
	fields := rec["fields"].(map[string]interface{})
	assert.Equal(t, "boom", fields["error"])
	assert.EqualValues(t, 2100, fields["ms"])
}

func TestCallerLocation(t *testing.T) {
	assert.Equal(t, "database/manager.go:42", callerLocation("/src/datajpa/database/manager.go", 42, PathFormatShortRelative))
	assert.Equal(t, "manager.go:42", callerLocation("/src/datajpa/database/manager.go", 42, PathFormatFilenameOnly))
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("DATAJPA_TEST_STR", "x")
	t.Setenv("DATAJPA_TEST_BOOL", "not-a-bool")
	assert.Equal(t, "x", EnvDefaultString("DATAJPA_TEST_STR", "y"))
	assert.Equal(t, "y", EnvDefaultString("DATAJPA_TEST_MISSING", "y"))
	assert.True(t, EnvDefaultBool("DATAJPA_TEST_BOOL", true))
	assert.False(t, EnvDefaultBool("DATAJPA_TEST_MISSING", false))
}
