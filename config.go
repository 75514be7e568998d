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

package listkit

import (
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/tomoncle/listkit/database"
	"github.com/tomoncle/listkit/notify/natsbridge"
	"github.com/tomoncle/listkit/query"
	"github.com/tomoncle/listkit/types"
	"github.com/tomoncle/listkit/utils"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
//
//	database:
//	  connection:
//	    type: sqlite
//	    dbname: listkit
//	  create_tables_on_startup: true
//	query:
//	  page_size: 20
//	  logical_operator: or
//	logging:
//	  level: debug
//	  format: json
//	nats:
//	  url: nats://127.0.0.1:4222
type Config struct {
	Database database.Config `yaml:"database"`
	Query    QueryConfig     `yaml:"query"`
	Logging  LoggingConfig   `yaml:"logging"`
	NATS     NATSConfig      `yaml:"nats"`
}

type QueryConfig struct {
	PageSize        int    `yaml:"page_size"`
	LogicalOperator string `yaml:"logical_operator"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// NATSConfig enables change notices between processes when URL is set.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns the configuration used for keys a document omits.
func DefaultConfig() *Config {
	return &Config{
		Database: database.Config{
			ConnectionConfig:      *database.DefaultConnectionConfig(),
			CreateTablesOnStartup: true,
		},
		Query: QueryConfig{
			PageSize:        types.DefaultPageSize,
			LogicalOperator: types.And.Name(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		NATS: NATSConfig{
			Prefix: natsbridge.DefaultPrefix,
		},
	}
}

// LoadConfig reads the YAML file at path over DefaultConfig and applies
// LISTKIT_* environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Query.PageSize = utils.EnvDefaultInt("LISTKIT_PAGE_SIZE", c.Query.PageSize)
	c.Query.LogicalOperator = utils.EnvDefaultString("LISTKIT_LOGICAL_OPERATOR", c.Query.LogicalOperator)
	c.Logging.Level = utils.EnvDefaultString("LISTKIT_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = utils.EnvDefaultString("LISTKIT_LOG_FORMAT", c.Logging.Format)
	c.NATS.URL = utils.EnvDefaultString("LISTKIT_NATS_URL", c.NATS.URL)
	c.NATS.Prefix = utils.EnvDefaultString("LISTKIT_NATS_PREFIX", c.NATS.Prefix)
	c.Database.CreateTablesOnStartup = utils.EnvDefaultBool("LISTKIT_CREATE_TABLES", c.Database.CreateTablesOnStartup)
}

func (c *Config) Validate() error {
	if c.Query.PageSize < 1 {
		return fmt.Errorf("query.page_size must be positive, got %d", c.Query.PageSize)
	}
	if _, err := types.ParseLogicalOperator(c.Query.LogicalOperator); err != nil {
		return fmt.Errorf("query.logical_operator: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// ApplyLogging configures every logger created through utils.NewLogger.
func (c *Config) ApplyLogging() {
	utils.ConfigureLogLevel(c.Logging.Level)
	utils.ConfigureConsoleLogFormat(c.Logging.Format)
}

// QueryOptions turns the query section into QueryManager options.
func (c *Config) QueryOptions() []query.Option {
	op, _ := types.ParseLogicalOperator(c.Query.LogicalOperator)
	return []query.Option{
		query.WithPageSize(c.Query.PageSize),
		query.WithLogicalOperator(op),
	}
}

// ConnectNATS opens a NATS connection and a bridge on it. It returns nil
// values when no URL is configured.
func (c *Config) ConnectNATS() (*natsbridge.Bridge, *nats.Conn, error) {
	if c.NATS.URL == "" {
		return nil, nil, nil
	}
	nc, err := nats.Connect(c.NATS.URL, nats.Name("listkit"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats %s: %w", c.NATS.URL, err)
	}
	return natsbridge.New(nc, natsbridge.WithPrefix(c.NATS.Prefix)), nc, nil
}
