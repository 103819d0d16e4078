// Package migrations embeds the SQL schema for every supported store and applies it with golang-migrate.
package migrations

import "embed"

// PostgresFS embeds the PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickHouseFS embeds the ClickHouse migration files.
//
//go:embed clickhouse/*.sql
var ClickHouseFS embed.FS
