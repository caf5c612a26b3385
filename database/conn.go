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
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalManager AbstractDatabaseManager
)

var supportedTypes = []string{"mysql", "postgres", "postgresql", "sqlite", "sqlite3"}

// GetDB returns the Bun database opened by InitDB, or nil.
func GetDB() *bun.DB {
	if dm := GetDatabaseManager(); dm != nil {
		return dm.GetDB()
	}
	return nil
}

// GetDatabaseManager returns the manager created by InitDB, or nil.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// Open connects a new manager for cfg and runs migrations when
// cfg.DataMigrateConfig enables them. The manager is not made global.
func Open(ctx context.Context, cfg *Config, opts ...ManagerOption) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if !isSupportedType(cfg.ConnectionConfig.Type) {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v",
			cfg.ConnectionConfig.Type, supportedTypes)
	}

	conn := cfg.ConnectionConfig
	opts = append([]ManagerOption{WithDataMigrateConfig(cfg.DataMigrateConfig)}, opts...)
	manager := NewDatabaseManager(&conn, opts...)
	manager.SetLogger(GetLogger())

	if err := manager.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.DataMigrateConfig.EnableMigrateOnStartup {
		if err := manager.RunMigrations(ctx); err != nil {
			_ = manager.Disconnect()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	GetLogger().Info("Database initialization completed", "type", conn.Type)
	return manager, nil
}

// InitDB opens cfg like Open and makes the resulting DB available through
// GetDB, closing any database opened before.
func InitDB(ctx context.Context, cfg *Config, opts ...ManagerOption) (*bun.DB, error) {
	manager, err := Open(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	previous := globalManager
	globalManager = manager
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Disconnect()
	}
	return manager.GetDB(), nil
}

// CloseDB closes the database opened by InitDB.
func CloseDB() error {
	globalMu.Lock()
	manager := globalManager
	globalManager = nil
	globalMu.Unlock()
	if manager != nil {
		return manager.Disconnect()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if dm := GetDatabaseManager(); dm != nil {
		return dm.HealthCheck(ctx)
	}
	return &HealthStatus{LastError: "Database not initialized"}
}

// GetDatabaseStats returns connection pool statistics.
func GetDatabaseStats() *DBStats {
	if dm := GetDatabaseManager(); dm != nil {
		return dm.GetStats()
	}
	return &DBStats{}
}

func isSupportedType(t string) bool {
	for _, s := range supportedTypes {
		if t == s {
			return true
		}
	}
	return false
}
