// Package sqlstore provides the durable command store on top of
// database/sql. It speaks two dialects: PostgreSQL through the pgx stdlib
// driver and SQLite through modernc.org/sqlite. Schema changes ship as
// embedded goose migrations and are applied on startup.
package sqlstore
