// Package testdb opens migrated databases for store tests: a private
// in-memory SQLite database for unit tests, and the PostgreSQL database named
// by DATABASE_URL for integration tests.
package testdb
