package db

import (
	"context"
	"database/sql"
)

// Database is a relational connection that owns its schema.
type Database interface {
	Connect(ctx context.Context) error
	Close() error
	DB() *sql.DB
}
