// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx driver. The schema lives in embedded goose
// migrations applied by Migrate.
package postgres
