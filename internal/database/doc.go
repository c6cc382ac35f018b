// Package database manages the PostgreSQL connection pool backing the
// settlement archive.
package database
