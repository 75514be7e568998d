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
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/schema"
)

// QueryLogEnv switches the colored statement log on at runtime ("1" failures,
// "2" everything).
const QueryLogEnv = "LISTKIT_SQL_LOG"

// ErrNotConnected is returned by manager operations before Connect.
var ErrNotConnected = errors.New("database not connected")

// driverSpec knows how to open one database type.
type driverSpec struct {
	driver  string
	dsn     func(cfg *ConnectionConfig) string
	dialect func() schema.Dialect
}

var (
	mysqlDriver = driverSpec{
		driver: "mysql",
		dsn: func(cfg *ConnectionConfig) string {
			return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
				cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
				cfg.ConnectTimeout, cfg.ReadTimeout, cfg.WriteTimeout)
		},
		dialect: func() schema.Dialect { return mysqldialect.New() },
	}
	postgresDriver = driverSpec{
		driver: "postgres",
		dsn: func(cfg *ConnectionConfig) string {
			sslMode := cfg.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
				cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.DBName,
				sslMode, int(cfg.ConnectTimeout.Seconds()))
		},
		dialect: func() schema.Dialect { return pgdialect.New() },
	}
	sqliteDriver = driverSpec{
		driver: sqliteshim.ShimName,
		dsn: func(cfg *ConnectionConfig) string {
			return fmt.Sprintf("file:%s.db?cache=shared", cfg.DBName)
		},
		dialect: func() schema.Dialect { return sqlitedialect.New() },
	}
)

var drivers = map[string]driverSpec{
	"mysql":      mysqlDriver,
	"postgres":   postgresDriver,
	"postgresql": postgresDriver,
	"sqlite":     sqliteDriver,
	"sqlite3":    sqliteDriver,
}

// SupportedTypes lists the accepted ConnectionConfig.Type values.
func SupportedTypes() []string {
	return slices.Sorted(maps.Keys(drivers))
}

type manager struct {
	config *ConnectionConfig

	mu     sync.RWMutex
	db     *bun.DB
	logger Logger
}

// NewDatabaseManager returns a manager for config, or for
// DefaultConnectionConfig when config is nil.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	return &manager{config: config, logger: GetLogger()}
}

func (m *manager) SetLogger(logger Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if logger == nil {
		logger = GetLogger()
	}
	m.logger = logger
}

func (m *manager) log() Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.logger
}

// Connect opens the pool, installs the query hooks and pings within
// ConnectTimeout. Connecting twice is a no-op.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.db != nil {
		return nil
	}

	spec, ok := drivers[m.config.Type]
	if !ok {
		return fmt.Errorf("unsupported database type: %s", m.config.Type)
	}
	if m.config.ConnectTimeout <= 0 {
		m.config.ConnectTimeout = 30 * time.Second
	}
	dsn := m.config.DSN
	if dsn == "" {
		dsn = spec.dsn(m.config)
	}

	sqldb, err := sql.Open(spec.driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	sqldb.SetMaxIdleConns(m.config.MaxIdleConns)
	sqldb.SetMaxOpenConns(m.config.MaxOpenConns)
	sqldb.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)

	db := bun.NewDB(sqldb, spec.dialect())
	if m.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	db.AddQueryHook(NewQueryHook(QueryLogEnv, false, false, nil))
	if m.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(m.config.SlowQueryTime, m.logger))
	}

	pingCtx, cancel := context.WithTimeout(ctx, m.config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database connection test failed: %w", err)
	}

	m.db = db
	m.logger.Info("Database connected", "type", m.config.Type, "host", m.config.Host)
	return nil
}

func (m *manager) Disconnect() error {
	m.mu.Lock()
	db := m.db
	m.db = nil
	logger := m.logger
	m.mu.Unlock()

	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		logger.Error("Failed to close database connection", "error", err)
		return err
	}
	logger.Info("Database connection closed")
	return nil
}

func (m *manager) GetDB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

func (m *manager) Ping(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return ErrNotConnected
	}
	return db.PingContext(ctx)
}

// CreateTables creates the tables of every registered model that do not
// exist yet.
func (m *manager) CreateTables(ctx context.Context) error {
	db := m.GetDB()
	if db == nil {
		return ErrNotConnected
	}
	registered := RegisteredModels()
	if err := CreateTables(ctx, db, registered...); err != nil {
		return err
	}
	names := make([]string, len(registered))
	for i, model := range registered {
		names[i] = TableName(db, model)
	}
	m.log().Info("Tables ready", "tables", names)
	return nil
}

// HealthCheck pings the database, then reads one row from the table of
// each registered model so a missing list table marks the status unhealthy.
func (m *manager) HealthCheck(ctx context.Context) *HealthStatus {
	start := time.Now()
	status := &HealthStatus{LastCheckTime: start}
	db := m.GetDB()
	if db == nil {
		status.LastError = ErrNotConnected.Error()
		return status
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(checkCtx); err != nil {
		status.LastError = err.Error()
		status.ResponseTime = time.Since(start)
		return status
	}
	status.Connected = true
	status.Healthy = true

	for _, model := range RegisteredModels() {
		table := probeTable(checkCtx, db, model)
		if !table.Present {
			status.Healthy = false
		}
		status.Tables = append(status.Tables, table)
	}
	if missing := status.MissingTables(); len(missing) > 0 {
		status.LastError = fmt.Sprintf("missing tables: %v", missing)
	}

	stats := db.Stats()
	status.ActiveConns = stats.InUse
	status.IdleConns = stats.Idle
	status.MaxOpenConns = stats.MaxOpenConnections
	status.ResponseTime = time.Since(start)
	return status
}

func probeTable(ctx context.Context, db bun.IDB, model interface{}) TableStatus {
	status := TableStatus{Name: TableName(db, model)}
	_, err := db.NewSelect().Model(model).Limit(1).Exists(ctx)
	switch {
	case err == nil:
		status.Present = true
	case KindOf(err) != NoTableErr:
		status.Error = err.Error()
	}
	return status
}

func (m *manager) GetStats() *DBStats {
	db := m.GetDB()
	if db == nil {
		return &DBStats{}
	}
	stats := db.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}
