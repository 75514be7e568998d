// Package database provides connection management, configuration, query
// hooks, health checks, SQL error classification and table creation for
// registered models, built on top of Bun.
package database
