// Package database provides connection management for MySQL, PostgreSQL and
// SQLite on top of Bun: pooling, health checks, reconnects, query logging
// through the spy hook or bundebug, migrations, foreign keys, the model
// registry and SQL error classification.
package database
