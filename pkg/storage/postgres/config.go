package postgres

import "time"

// Config holds the connection pool settings of the audit store.
type Config struct {
	// DSN is a libpq connection string or URL,
	// e.g. "postgres://codexec:secret@db:5432/codexec?sslmode=require".
	DSN string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// MigrateOnStart applies the embedded schema migrations in New.
	MigrateOnStart bool
}

func (c *Config) applyDefaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 1
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}
