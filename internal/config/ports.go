// Package config provides configuration management for the trading
// control plane. This file centralizes the default port assignments to
// avoid duplication across cmd/ entrypoints.
package config

// Service ports
const (
	// DefaultGatewayPort is the administrative REST/WS surface (spec.md §6).
	DefaultGatewayPort = 8081

	// DefaultMetricsPort is the Prometheus scrape endpoint for the
	// orchestrator process.
	DefaultMetricsPort = 9100
)

// Infrastructure ports
const (
	// DefaultVaultPort is the default port for HashiCorp Vault.
	DefaultVaultPort = 8200

	// DefaultPostgresPort is the default port for PostgreSQL.
	DefaultPostgresPort = 5432

	// DefaultRedisPort is the default port for Redis.
	DefaultRedisPort = 6379

	// DefaultNATSPort is the default port for the Event Bus's NATS backend.
	DefaultNATSPort = 4222
)
