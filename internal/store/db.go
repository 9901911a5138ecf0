package store

import (
	"context"
	"database/sql"
)

// Querier abstracts the SQL execution surface shared by *sql.DB and *sql.Tx,
// so status and progress writes can run standalone or inside a surrounding
// transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
