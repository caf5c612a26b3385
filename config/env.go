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
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/tomoncle/datajpa/utils"
)

// ApplyEnv overrides settings from DB_* variables so credentials and
// endpoints can stay out of the config file.
func (c *Config) ApplyEnv() error {
	var result *multierror.Error
	envInt := func(key string, dst *int) {
		v := os.Getenv(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	db := &c.Database
	db.Type = utils.EnvDefaultString("DB_TYPE", db.Type)
	db.Host = utils.EnvDefaultString("DB_HOST", db.Host)
	envInt("DB_PORT", &db.Port)
	db.Username = utils.EnvDefaultString("DB_USERNAME", db.Username)
	db.Password = utils.EnvDefaultString("DB_PASSWORD", db.Password)
	db.DBName = utils.EnvDefaultString("DB_NAME", db.DBName)
	db.SSLMode = utils.EnvDefaultString("DB_SSLMODE", db.SSLMode)
	envInt("DB_MAX_OPEN_CONNS", &db.MaxOpenConns)
	envInt("DB_MAX_IDLE_CONNS", &db.MaxIdleConns)
	db.Migrate = utils.EnvDefaultBool("DB_MIGRATE", db.Migrate)

	c.SQLLog.Enabled = utils.EnvDefaultBool("DB_ENABLE_QUERY_LOG", c.SQLLog.Enabled)
	c.SQLLog.Style = utils.EnvDefaultString("DB_QUERY_LOG_STYLE", c.SQLLog.Style)
	slowMillis := -1
	envInt("DB_SLOW_QUERY_MS", &slowMillis)
	if slowMillis >= 0 {
		c.SQLLog.SlowThreshold = time.Duration(slowMillis) * time.Millisecond
	}
	return result.ErrorOrNil()
}
